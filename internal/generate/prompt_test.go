package generate

import (
	"strings"
	"testing"

	"github.com/hpungsan/storyboard/internal/db"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		instruction string
		want        db.ReplaceMode
	}{
		{"Please regenerate the whole thing", db.ModeFull},
		{"REDO it with more tension", db.ModeFull},
		{"let's start over", db.ModeFull},
		{"重做一版", db.ModeFull},
		{"请重新生成分镜", db.ModeFull},
		{"覆盖现有分镜", db.ModeFull},
		{"split A3 into two shots", db.ModePartial},
		{"insert a close-up after A8", db.ModePartial},
		{"", db.ModePartial},
	}
	for _, tt := range tests {
		if got := DetectMode(tt.instruction); got != tt.want {
			t.Errorf("DetectMode(%q) = %q, want %q", tt.instruction, got, tt.want)
		}
	}
}

func TestComposeImagePrompt(t *testing.T) {
	assets := []db.Asset{
		{Name: "Mei", Prompt: "10 year old girl, red scarf"},
		{Name: "Kitchen", Description: "small tiled kitchen"},
		{Name: "Unused", Prompt: "should not appear"},
	}

	got := ComposeImagePrompt("watercolor", "Medium shot, #Mei stirring soup in #Kitchen, #Mei smiling", "highly detailed", assets)
	want := "watercolor, Mei: 10 year old girl, red scarf; Kitchen: small tiled kitchen, " +
		"Medium shot, Mei stirring soup in Kitchen, Mei smiling, highly detailed"
	if got != want {
		t.Errorf("ComposeImagePrompt() =\n%q\nwant\n%q", got, want)
	}
}

func TestComposeImagePrompt_SkipsEmptyLayers(t *testing.T) {
	got := ComposeImagePrompt("", "Wide shot of #Harbor", "  ", nil)
	if got != "Wide shot of Harbor" {
		t.Errorf("ComposeImagePrompt() = %q", got)
	}

	got = ComposeImagePrompt("ink", "", "", nil)
	if got != "ink" {
		t.Errorf("ComposeImagePrompt() = %q, want ink", got)
	}
}

func TestComposeImagePrompt_UnicodeAnchors(t *testing.T) {
	assets := []db.Asset{{Name: "张三", Prompt: "25岁亚洲男性"}}

	got := ComposeImagePrompt("", "#张三 坐在沙发上", "", assets)
	if !strings.HasPrefix(got, "张三: 25岁亚洲男性") {
		t.Errorf("ComposeImagePrompt() = %q, want anchor layer first", got)
	}
}

func TestShotListContext(t *testing.T) {
	if got := ShotListContext(nil); !strings.Contains(got, "(none yet)") {
		t.Errorf("empty context = %q", got)
	}

	got := ShotListContext([]db.Shot{
		{ShotID: "A1", Position: 1, Description: "door opens"},
		{ShotID: "A2", Position: 2},
	})
	if !strings.Contains(got, "1. A1: door opens") || !strings.Contains(got, "2. A2: -") {
		t.Errorf("context = %q", got)
	}
}
