package generate

import (
	"encoding/json"
	"strings"

	"github.com/quailyquaily/uniai"
)

// ParseReply locates a generated batch in a free-text model reply. The JSON
// may sit in a fenced block, be the whole reply, or be embedded in prose;
// malformed candidates are repaired before decoding. ok is false when the
// reply carries no usable batch, which callers treat as plain chat text.
func ParseReply(text string) (*Payload, bool) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, false
	}

	for _, cand := range collectCandidates(raw) {
		for _, variant := range candidateVariants(cand) {
			var obj fields
			if err := json.Unmarshal([]byte(variant), &obj); err != nil || obj == nil {
				continue
			}
			if !obj.hasPayloadKey() {
				continue
			}
			p, err := DecodePayload([]byte(variant))
			if err != nil {
				continue
			}
			return p, true
		}
	}
	return nil, false
}

func collectCandidates(raw string) []string {
	out := make([]string, 0, 8)
	seen := make(map[string]bool, 8)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(raw)
	for _, block := range fencedBlocks(raw) {
		add(block)
	}
	if cands, err := uniai.CollectJSONCandidates(raw); err == nil {
		for _, c := range cands {
			add(c)
		}
	}
	for _, c := range uniai.FindJSONSnippets(raw) {
		add(c)
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		add(raw[start : end+1])
	}
	return out
}

// fencedBlocks returns the bodies of ``` fenced blocks, language tag dropped.
func fencedBlocks(raw string) []string {
	var out []string
	rest := raw
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return out
		}
		rest = rest[start+3:]
		end := strings.Index(rest, "```")
		if end < 0 {
			return out
		}
		body := rest[:end]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
			body = body[nl+1:]
		}
		out = append(out, body)
		rest = rest[end+3:]
	}
}

func candidateVariants(candidate string) []string {
	out := make([]string, 0, 4)
	seen := make(map[string]bool, 4)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(candidate)
	stripped := strings.TrimSpace(uniai.StripNonJSONLines(candidate))
	add(stripped)
	add(uniai.AttemptJSONRepair(candidate))
	if stripped != "" && stripped != candidate {
		add(uniai.AttemptJSONRepair(stripped))
	}
	return out
}
