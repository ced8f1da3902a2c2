package generate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hpungsan/storyboard/internal/db"
)

// Payload is one batch of generated data: a whole shot list plus the assets
// the reply introduced.
type Payload struct {
	Shots      []db.Shot  `json:"shots"`
	Characters []db.Asset `json:"characters"`
	Scenes     []db.Asset `json:"scenes"`
	Props      []db.Asset `json:"props"`
}

// Keys that mark a JSON object as a generated batch.
var payloadKeys = [][]string{
	{"storyboards", "shots"},
	{"characters"},
	{"scenes"},
	{"props"},
}

// Field aliases accepted from generation replies, canonical name first.
var (
	shotAliases = map[string][]string{
		"shot_id":          {"shot_id", "mirror_id"},
		"position":         {"position", "sequence_number"},
		"technique":        {"technique", "shot_type"},
		"framing":          {"framing", "shot_size"},
		"duration":         {"duration"},
		"dialogue":         {"dialogue"},
		"description":      {"description"},
		"notes":            {"notes", "remarks"},
		"lead_prompt":      {"lead_prompt", "image_prompt_zh"},
		"lead_prompt_alt":  {"lead_prompt_alt", "image_prompt_en"},
		"tail_prompt":      {"tail_prompt", "image_prompt_tail_zh"},
		"tail_prompt_alt":  {"tail_prompt_alt", "image_prompt_tail_en"},
		"video_prompt":     {"video_prompt", "video_prompt_zh"},
		"video_prompt_alt": {"video_prompt_alt", "video_prompt_en"},
	}
	assetAliases = map[string][]string{
		"name":        {"name"},
		"description": {"description"},
		"prompt":      {"prompt", "image_prompt_zh", "prompt_cn"},
		"prompt_alt":  {"prompt_alt", "image_prompt_en", "prompt_en"},
		"notes":       {"notes", "remarks"},
	}
)

// DecodePayload decodes a generated batch, normalizing field aliases into the
// canonical shapes. Absent fields decode as empty strings.
func DecodePayload(data []byte) (*Payload, error) {
	var top fields
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if top == nil {
		return nil, fmt.Errorf("decode payload: not a JSON object")
	}

	p := &Payload{
		Shots:      []db.Shot{},
		Characters: []db.Asset{},
		Scenes:     []db.Asset{},
		Props:      []db.Asset{},
	}

	rawShots, err := top.list("storyboards", "shots")
	if err != nil {
		return nil, err
	}
	for i, raw := range rawShots {
		shot, err := decodeShot(raw)
		if err != nil {
			return nil, fmt.Errorf("shot %d: %w", i+1, err)
		}
		p.Shots = append(p.Shots, shot)
	}

	for _, kind := range []struct {
		key string
		dst *[]db.Asset
	}{
		{"characters", &p.Characters},
		{"scenes", &p.Scenes},
		{"props", &p.Props},
	} {
		rawAssets, err := top.list(kind.key)
		if err != nil {
			return nil, err
		}
		for i, raw := range rawAssets {
			asset, err := decodeAsset(raw)
			if err != nil {
				return nil, fmt.Errorf("%s %d: %w", kind.key, i+1, err)
			}
			if asset.Name == "" {
				continue
			}
			*kind.dst = append(*kind.dst, asset)
		}
	}
	return p, nil
}

func decodeShot(raw fields) (db.Shot, error) {
	var shot db.Shot
	var err error
	str := func(name string) string {
		if err != nil {
			return ""
		}
		var v string
		v, err = raw.str(shotAliases[name]...)
		return v
	}

	shot.ShotID = str("shot_id")
	shot.Technique = str("technique")
	shot.Framing = str("framing")
	shot.Dialogue = str("dialogue")
	shot.Description = str("description")
	shot.Notes = str("notes")
	shot.LeadPrompt = str("lead_prompt")
	shot.LeadPromptAlt = str("lead_prompt_alt")
	shot.TailPrompt = str("tail_prompt")
	shot.TailPromptAlt = str("tail_prompt_alt")
	shot.VideoPrompt = str("video_prompt")
	shot.VideoPromptAlt = str("video_prompt_alt")
	if err != nil {
		return db.Shot{}, err
	}
	if shot.ShotID == "" {
		return db.Shot{}, fmt.Errorf("missing shot_id")
	}

	if shot.Duration, err = raw.num(shotAliases["duration"]...); err != nil {
		return db.Shot{}, err
	}
	position, err := raw.num(shotAliases["position"]...)
	if err != nil {
		return db.Shot{}, err
	}
	shot.Position = int(position)
	return shot, nil
}

func decodeAsset(raw fields) (db.Asset, error) {
	var a db.Asset
	var err error
	str := func(name string) string {
		if err != nil {
			return ""
		}
		var v string
		v, err = raw.str(assetAliases[name]...)
		return v
	}

	a.Name = str("name")
	a.Description = str("description")
	a.Prompt = str("prompt")
	a.PromptAlt = str("prompt_alt")
	a.Notes = str("notes")
	return a, err
}

// fields is a decoded JSON object with lookups by alias list.
type fields map[string]json.RawMessage

// lookup returns the first alias present with a non-null value.
func (f fields) lookup(aliases ...string) (string, json.RawMessage, bool) {
	for _, key := range aliases {
		raw, ok := f[key]
		if !ok || isNull(raw) {
			continue
		}
		return key, raw, true
	}
	return "", nil, false
}

// str reads a string field. Numbers and booleans are accepted in their JSON
// text form.
func (f fields) str(aliases ...string) (string, error) {
	key, raw, ok := f.lookup(aliases...)
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "", fmt.Errorf("field %s: want a string", key)
	}
	return string(trimmed), nil
}

// num reads a numeric field given as a JSON number or numeric string.
// Empty strings read as zero.
func (f fields) num(aliases ...string) (float64, error) {
	key, raw, ok := f.lookup(aliases...)
	if !ok {
		return 0, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("field %s: want a number", key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.TrimSuffix(strings.TrimSuffix(s, "s"), "秒")
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %q is not a number", key, s)
	}
	return n, nil
}

// list reads an array of objects.
func (f fields) list(aliases ...string) ([]fields, error) {
	key, raw, ok := f.lookup(aliases...)
	if !ok {
		return nil, nil
	}
	var out []fields
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("field %s: want an array of objects", key)
	}
	return out, nil
}

// hasPayloadKey reports whether f looks like a generated batch.
func (f fields) hasPayloadKey() bool {
	for _, aliases := range payloadKeys {
		if _, _, ok := f.lookup(aliases...); ok {
			return true
		}
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
