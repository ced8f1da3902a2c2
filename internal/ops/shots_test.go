package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/db"
	"github.com/hpungsan/storyboard/internal/errors"
	"github.com/hpungsan/storyboard/internal/generate"
)

const batchJSON = `{
  "shots": [
    {"shot_id": "A1", "description": "Mei opens the door", "lead_prompt": "门打开", "lead_prompt_alt": "#Mei opens the door"},
    {"shot_id": "A2", "description": "Mei looks around", "tail_prompt": "环顾四周"}
  ],
  "characters": [{"name": "Mei", "prompt": "十岁女孩", "prompt_alt": "10 year old girl, red scarf"}],
  "scenes": [{"name": "Hallway", "description": "narrow hallway"}]
}`

func TestSaveGenerated_JSON(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	path := createTestProject(t, d, "Save")

	out, err := SaveGenerated(ctx, d, SaveGeneratedInput{Path: path, Text: batchJSON})
	if err != nil {
		t.Fatalf("SaveGenerated() error = %v", err)
	}
	if out.Mode != db.ModePartial {
		t.Errorf("Mode = %q, want partial by default", out.Mode)
	}
	if out.Shots != 2 || out.Characters != 1 || out.Scenes != 1 || out.Props != 0 {
		t.Errorf("counts = %+v", out)
	}

	shots, err := GetShots(ctx, d, GetShotsInput{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(shots.Shots) != 2 || shots.Shots[0].ShotID != "A1" || shots.Shots[1].Position != 2 {
		t.Errorf("shots = %+v", shots.Shots)
	}
}

func TestSaveGenerated_ReplyText(t *testing.T) {
	d := newTestDeps(t)
	path := createTestProject(t, d, "Reply")

	reply := "Here you go:\n```json\n" + batchJSON + "\n```"
	out, err := SaveGenerated(context.Background(), d, SaveGeneratedInput{Path: path, Text: reply, Mode: "full"})
	if err != nil {
		t.Fatalf("SaveGenerated() error = %v", err)
	}
	if out.Mode != db.ModeFull || out.Shots != 2 {
		t.Errorf("SaveGenerated() = %+v", out)
	}
}

func TestSaveGenerated_AutoMode(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	path := createTestProject(t, d, "Auto")

	if _, err := SaveGenerated(ctx, d, SaveGeneratedInput{Path: path, Text: batchJSON}); err != nil {
		t.Fatal(err)
	}

	replacement := &generate.Payload{
		Shots:      []db.Shot{{ShotID: "B1"}},
		Characters: []db.Asset{{Name: "Chen", Prompt: "old fisherman"}},
	}

	// Partial keeps earlier assets
	out, err := SaveGenerated(ctx, d, SaveGeneratedInput{
		Path: path, Payload: replacement, Mode: ModeAuto, Instruction: "add a shot of Chen",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Mode != db.ModePartial {
		t.Errorf("Mode = %q, want partial", out.Mode)
	}
	assets, err := GetAssets(ctx, d, GetAssetsInput{Path: path, Kind: "characters"})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(assets.Assets[db.KindCharacter]); got != 2 {
		t.Errorf("characters after partial = %d, want 2", got)
	}

	// Full clears them
	out, err = SaveGenerated(ctx, d, SaveGeneratedInput{
		Path: path, Payload: replacement, Mode: ModeAuto, Instruction: "please regenerate everything",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Mode != db.ModeFull {
		t.Errorf("Mode = %q, want full", out.Mode)
	}
	assets, err = GetAssets(ctx, d, GetAssetsInput{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if got := assets.Assets[db.KindCharacter]; len(got) != 1 || got[0].Name != "Chen" {
		t.Errorf("characters after full = %+v", got)
	}
	if got := assets.Assets[db.KindScene]; len(got) != 0 {
		t.Errorf("scenes after full = %+v, want none", got)
	}
}

func TestSaveGenerated_Errors(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	path := createTestProject(t, d, "Errors")

	tests := []struct {
		name  string
		input SaveGeneratedInput
		code  errors.ErrorCode
	}{
		{"empty text", SaveGeneratedInput{Path: path}, errors.ErrInvalidRequest},
		{"no batch in prose", SaveGeneratedInput{Path: path, Text: "just chatting"}, errors.ErrValidationFailure},
		{"shot without id", SaveGeneratedInput{Path: path, Text: `{"shots": [{"description": "x"}]}`}, errors.ErrValidationFailure},
		{"bad mode", SaveGeneratedInput{Path: path, Text: batchJSON, Mode: "merge"}, errors.ErrValidationFailure},
		{"duplicate ids", SaveGeneratedInput{Path: path, Text: `{"shots": [{"shot_id": "X"}, {"shot_id": "X"}]}`}, errors.ErrConstraintViolation},
		{"not a project", SaveGeneratedInput{Path: t.TempDir(), Text: batchJSON}, errors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SaveGenerated(ctx, d, tt.input)
			if !errors.Is(err, tt.code) {
				t.Fatalf("SaveGenerated() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestGetAssets_UnknownKind(t *testing.T) {
	d := newTestDeps(t)
	path := createTestProject(t, d, "Kinds")

	_, err := GetAssets(context.Background(), d, GetAssetsInput{Path: path, Kind: "vehicle"})
	if !errors.Is(err, errors.ErrValidationFailure) {
		t.Fatalf("GetAssets() error = %v, want VALIDATION_FAILURE", err)
	}
}

func TestSetShotImage(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	path := createTestProject(t, d, "Images")
	if _, err := SaveGenerated(ctx, d, SaveGeneratedInput{Path: path, Text: batchJSON}); err != nil {
		t.Fatal(err)
	}

	shot, err := SetShotImage(ctx, d, SetShotImageInput{Path: path, ShotID: "A2", Frame: "tail", ImagePath: "images/custom.png"})
	if err != nil {
		t.Fatalf("SetShotImage() error = %v", err)
	}
	if shot.TailImagePath == nil || *shot.TailImagePath != "images/custom.png" {
		t.Errorf("TailImagePath = %v", shot.TailImagePath)
	}
	if shot.ImageStatus != db.ImageStatusGenerated {
		t.Errorf("ImageStatus = %q", shot.ImageStatus)
	}

	_, err = SetShotImage(ctx, d, SetShotImageInput{Path: path, ShotID: "Z9", Frame: "lead", ImagePath: "x.png"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown shot error = %v, want NOT_FOUND", err)
	}
	_, err = SetShotImage(ctx, d, SetShotImageInput{Path: path, ShotID: "A1", Frame: "middle", ImagePath: "x.png"})
	if !errors.Is(err, errors.ErrValidationFailure) {
		t.Errorf("bad frame error = %v, want VALIDATION_FAILURE", err)
	}
	_, err = SetShotImage(ctx, d, SetShotImageInput{Path: path, ShotID: "A1", Frame: "lead"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("missing path error = %v, want INVALID_REQUEST", err)
	}
}

func TestGenerateShotImage(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	gen := &fakeGenerator{imageURL: "https://img.example.com/a1.png"}
	d.Generator = gen
	saveConfig(t, d, config.APIConfig{ID: "img", Name: "images", APIType: config.APIImage, BaseURL: "https://img.example.com"})

	path := createTestProject(t, d, "Generate")
	if _, err := SaveGenerated(ctx, d, SaveGeneratedInput{Path: path, Text: batchJSON}); err != nil {
		t.Fatal(err)
	}
	if _, err := SaveStyle(ctx, d, SaveStyleInput{
		Path: path, StylePrompt: stringPtr("watercolor"), QualityPrompt: stringPtr("8k"),
	}); err != nil {
		t.Fatal(err)
	}

	out, err := GenerateShotImage(ctx, d, GenerateShotImageInput{Path: path, ShotID: "A1"})
	if err != nil {
		t.Fatalf("GenerateShotImage() error = %v", err)
	}
	want := "watercolor, Mei: 十岁女孩, Mei opens the door, 8k"
	if out.Prompt != want || gen.gotPrompt != want {
		t.Errorf("prompt = %q, want %q", out.Prompt, want)
	}
	if gen.gotAPI.ID != "img" {
		t.Errorf("api = %q, want img", gen.gotAPI.ID)
	}
	if out.Shot.LeadImagePath == nil || *out.Shot.LeadImagePath != "images/A1_lead.png" {
		t.Errorf("LeadImagePath = %v", out.Shot.LeadImagePath)
	}
	if _, err := os.Stat(filepath.Join(path, "images", "A1_lead.png")); err != nil {
		t.Errorf("image not downloaded: %v", err)
	}

	// Tail frame falls back to the primary prompt
	out, err = GenerateShotImage(ctx, d, GenerateShotImageInput{Path: path, ShotID: "A2", Frame: "tail"})
	if err != nil {
		t.Fatalf("GenerateShotImage(tail) error = %v", err)
	}
	if !strings.Contains(out.Prompt, "环顾四周") {
		t.Errorf("tail prompt = %q", out.Prompt)
	}

	// No lead prompt on A2
	_, err = GenerateShotImage(ctx, d, GenerateShotImageInput{Path: path, ShotID: "A2", Frame: "lead"})
	if !errors.Is(err, errors.ErrValidationFailure) {
		t.Errorf("missing prompt error = %v, want VALIDATION_FAILURE", err)
	}
}

func TestGenerateShotImage_Failures(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	path := createTestProject(t, d, "Fail")
	if _, err := SaveGenerated(ctx, d, SaveGeneratedInput{Path: path, Text: batchJSON}); err != nil {
		t.Fatal(err)
	}

	d.Generator = &fakeGenerator{imageErr: os.ErrDeadlineExceeded}
	_, err := GenerateShotImage(ctx, d, GenerateShotImageInput{Path: path, ShotID: "A1"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("no image API error = %v, want INVALID_REQUEST", err)
	}

	saveConfig(t, d, config.APIConfig{Name: "images", APIType: config.APIImage, BaseURL: "https://img"})
	_, err = GenerateShotImage(ctx, d, GenerateShotImageInput{Path: path, ShotID: "A1"})
	if !errors.Is(err, errors.ErrGenerationFailure) {
		t.Errorf("image API failure error = %v, want GENERATION_FAILURE", err)
	}

	shots, err := GetShots(ctx, d, GetShotsInput{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if shots.Shots[0].ImageStatus != db.ImageStatusEmpty {
		t.Errorf("ImageStatus = %q after failure, want empty", shots.Shots[0].ImageStatus)
	}
}

func TestImageFileName(t *testing.T) {
	tests := []struct {
		shotID string
		frame  db.Frame
		want   string
	}{
		{"A1", db.FrameLead, "A1_lead.png"},
		{"scene 2/3", db.FrameTail, "scene_2_3_tail.png"},
		{"镜头1", db.FrameLead, "__1_lead.png"},
	}
	for _, tt := range tests {
		if got := imageFileName(tt.shotID, tt.frame); got != tt.want {
			t.Errorf("imageFileName(%q) = %q, want %q", tt.shotID, got, tt.want)
		}
	}
}
