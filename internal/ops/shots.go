package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/db"
	"github.com/hpungsan/storyboard/internal/errors"
	"github.com/hpungsan/storyboard/internal/generate"
)

// ImagesDir is the folder under a project root that holds generated images.
const ImagesDir = "images"

// ModeAuto picks full or partial replacement from the instruction text.
const ModeAuto = "auto"

// SaveGeneratedInput contains parameters for the SaveGenerated operation.
type SaveGeneratedInput struct {
	Path string
	// Payload is the batch to save. When nil, Text is parsed instead.
	Payload *generate.Payload
	// Text is a JSON batch or a free-text generation reply embedding one.
	Text string
	// Mode is full, partial or auto (default: partial).
	Mode string
	// Instruction is the user request the batch answers; auto mode inspects it.
	Instruction string
}

// SaveGeneratedOutput contains the result of the SaveGenerated operation.
type SaveGeneratedOutput struct {
	Mode       db.ReplaceMode `json:"mode"`
	Shots      int            `json:"shots"`
	Characters int            `json:"characters"`
	Scenes     int            `json:"scenes"`
	Props      int            `json:"props"`
}

// SaveGenerated replaces the project's shot list with a generated batch.
func SaveGenerated(ctx context.Context, d *Deps, input SaveGeneratedInput) (*SaveGeneratedOutput, error) {
	mode, err := resolveMode(input.Mode, input.Instruction)
	if err != nil {
		return nil, err
	}
	payload := input.Payload
	if payload == nil {
		if payload, err = payloadFromText(input.Text); err != nil {
			return nil, err
		}
	}

	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := replace(ctx, store, payload, mode); err != nil {
		return nil, err
	}
	return &SaveGeneratedOutput{
		Mode:       mode,
		Shots:      len(payload.Shots),
		Characters: len(payload.Characters),
		Scenes:     len(payload.Scenes),
		Props:      len(payload.Props),
	}, nil
}

func replace(ctx context.Context, store *db.Store, p *generate.Payload, mode db.ReplaceMode) error {
	return store.ReplaceShots(ctx, db.ReplaceInput{
		Shots:      p.Shots,
		Characters: p.Characters,
		Scenes:     p.Scenes,
		Props:      p.Props,
		Mode:       mode,
	})
}

func resolveMode(mode, instruction string) (db.ReplaceMode, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "":
		return db.ModePartial, nil
	case ModeAuto:
		return generate.DetectMode(instruction), nil
	default:
		return db.ParseReplaceMode(mode)
	}
}

// payloadFromText decodes a bare JSON batch strictly, and otherwise searches
// the text for an embedded one.
func payloadFromText(text string) (*generate.Payload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.NewInvalidRequest("generated data is required")
	}
	if json.Valid([]byte(text)) {
		p, err := generate.DecodePayload([]byte(text))
		if err != nil {
			return nil, errors.NewValidationFailure(err.Error())
		}
		return p, nil
	}
	p, ok := generate.ParseReply(text)
	if !ok {
		return nil, errors.NewValidationFailure("no generated data found in text")
	}
	return p, nil
}

// GetShotsInput contains parameters for the GetShots operation.
type GetShotsInput struct {
	Path string
}

// GetShotsOutput contains the result of the GetShots operation.
type GetShotsOutput struct {
	Shots []db.Shot `json:"shots"`
}

// GetShots returns the shot list in position order.
func GetShots(ctx context.Context, d *Deps, input GetShotsInput) (*GetShotsOutput, error) {
	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	shots, err := store.ListShots(ctx)
	if err != nil {
		return nil, err
	}
	return &GetShotsOutput{Shots: shots}, nil
}

// GetAssetsInput contains parameters for the GetAssets operation.
type GetAssetsInput struct {
	Path string
	// Kind limits the result to one asset kind. Empty means all kinds.
	Kind string
}

// GetAssetsOutput contains the result of the GetAssets operation.
type GetAssetsOutput struct {
	Assets map[db.AssetKind][]db.Asset `json:"assets"`
}

// GetAssets returns characters, scenes and props in insertion order.
func GetAssets(ctx context.Context, d *Deps, input GetAssetsInput) (*GetAssetsOutput, error) {
	kinds := db.AssetKinds
	if strings.TrimSpace(input.Kind) != "" {
		kind, err := db.ParseAssetKind(input.Kind)
		if err != nil {
			return nil, err
		}
		kinds = []db.AssetKind{kind}
	}

	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	out := &GetAssetsOutput{Assets: make(map[db.AssetKind][]db.Asset, len(kinds))}
	for _, kind := range kinds {
		assets, err := store.ListAssets(ctx, kind)
		if err != nil {
			return nil, err
		}
		out.Assets[kind] = assets
	}
	return out, nil
}

// SetShotImageInput contains parameters for the SetShotImage operation.
type SetShotImageInput struct {
	Path      string
	ShotID    string
	Frame     string
	ImagePath string
}

// SetShotImage records an existing image file as a shot's lead or tail frame.
func SetShotImage(ctx context.Context, d *Deps, input SetShotImageInput) (*db.Shot, error) {
	if strings.TrimSpace(input.ShotID) == "" {
		return nil, errors.NewInvalidRequest("shot_id is required")
	}
	if strings.TrimSpace(input.ImagePath) == "" {
		return nil, errors.NewInvalidRequest("image_path is required")
	}

	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := store.SetShotImage(ctx, input.ShotID, db.Frame(input.Frame), input.ImagePath); err != nil {
		return nil, err
	}
	return store.GetShot(ctx, input.ShotID)
}

// GenerateShotImageInput contains parameters for the GenerateShotImage operation.
type GenerateShotImageInput struct {
	Path   string
	ShotID string
	Frame  string
	// APIID selects an image API. Empty means the default image API.
	APIID string
}

// GenerateShotImageOutput contains the result of the GenerateShotImage operation.
type GenerateShotImageOutput struct {
	Prompt string   `json:"prompt"`
	Shot   *db.Shot `json:"shot"`
}

// GenerateShotImage composes the frame's image prompt, generates the image,
// downloads it into the project's images folder and records it on the shot.
func GenerateShotImage(ctx context.Context, d *Deps, input GenerateShotImageInput) (*GenerateShotImageOutput, error) {
	frame := db.Frame(strings.ToLower(strings.TrimSpace(input.Frame)))
	if frame == "" {
		frame = db.FrameLead
	}
	if frame != db.FrameLead && frame != db.FrameTail {
		return nil, errors.NewValidationFailure(fmt.Sprintf("frame must be one of: lead, tail (got %q)", input.Frame))
	}
	gen, err := d.generator()
	if err != nil {
		return nil, err
	}
	api, err := d.resolveAPI(input.APIID, config.APIImage)
	if err != nil {
		return nil, err
	}

	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	shot, err := store.GetShot(ctx, input.ShotID)
	if err != nil {
		return nil, err
	}
	action := framePrompt(shot, frame)
	if action == "" {
		return nil, errors.NewValidationFailure(fmt.Sprintf("shot %s has no %s prompt", shot.ShotID, frame))
	}

	var assets []db.Asset
	for _, kind := range db.AssetKinds {
		list, err := store.ListAssets(ctx, kind)
		if err != nil {
			return nil, err
		}
		assets = append(assets, list...)
	}
	style := store.Style(ctx)
	prompt := generate.ComposeImagePrompt(deref(style.StylePrompt), action, deref(style.QualityPrompt), assets)

	url, err := gen.GenerateImage(ctx, api, prompt)
	if err != nil {
		return nil, errors.NewGenerationFailure(api.Name, err)
	}
	rel := filepath.Join(ImagesDir, imageFileName(shot.ShotID, frame))
	if err := gen.Download(ctx, url, filepath.Join(store.Root(), rel)); err != nil {
		return nil, errors.NewGenerationFailure(api.Name, err)
	}
	if err := store.SetShotImage(ctx, shot.ShotID, frame, filepath.ToSlash(rel)); err != nil {
		return nil, err
	}
	d.logger().Info("shot image generated", "shot_id", shot.ShotID, "frame", frame, "api", api.Name)

	updated, err := store.GetShot(ctx, shot.ShotID)
	if err != nil {
		return nil, err
	}
	return &GenerateShotImageOutput{Prompt: prompt, Shot: updated}, nil
}

// framePrompt prefers the alternate-language prompt, which image models follow best.
func framePrompt(shot *db.Shot, frame db.Frame) string {
	primary, alt := shot.LeadPrompt, shot.LeadPromptAlt
	if frame == db.FrameTail {
		primary, alt = shot.TailPrompt, shot.TailPromptAlt
	}
	if strings.TrimSpace(alt) != "" {
		return alt
	}
	return strings.TrimSpace(primary)
}

// imageFileName maps a shot id to a safe file name.
func imageFileName(shotID string, frame db.Frame) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, shotID)
	return fmt.Sprintf("%s_%s.png", safe, frame)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
