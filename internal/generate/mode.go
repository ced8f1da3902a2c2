package generate

import (
	"strings"

	"github.com/hpungsan/storyboard/internal/db"
)

// regenerateKeywords mark an instruction as a request to start the shot list over.
var regenerateKeywords = []string{
	"regenerate",
	"redo",
	"start over",
	"from scratch",
	"重做",
	"重新生成",
	"重新做",
	"覆盖",
}

// DetectMode picks the replacement mode for an instruction: full when it asks
// to regenerate, partial for edits (split, insert, delete, merge).
func DetectMode(instruction string) db.ReplaceMode {
	lower := strings.ToLower(instruction)
	for _, kw := range regenerateKeywords {
		if strings.Contains(lower, kw) {
			return db.ModeFull
		}
	}
	return db.ModePartial
}
