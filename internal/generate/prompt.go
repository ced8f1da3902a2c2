package generate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hpungsan/storyboard/internal/db"
)

// SystemPrompt instructs the text model to answer with a generated batch.
const SystemPrompt = `You are a senior storyboard artist with film and animation experience.
Turn the user's script, copy or plot into a shot list that follows standard film language.
Do not embellish and do not invent plot the script does not contain.

Shot design:
1. Keep the shot count lean. About 25 seconds of content rarely needs more than 6 to 8 shots.
2. One idea per shot, without splitting for its own sake.
3. Choose camera movement and framing to fit the story and the characters' emotions.

Shot ids:
- A first generation uses A1, A2, A3 ...
- A shot inserted after A8 becomes A8-1.
- Splitting A9 into three gives A9-1, A9-2, A9-3.
- Merging A10 and A11 gives A10-1.

When asked to split, insert, delete or merge shots, always return the complete shot list,
not only the changed shots. Ids that were split or merged away must not appear.

Image prompts have four layers and you only write the action layer:
framing + action + expression + spatial relation, for example
"Close-up shot, character tilting head slightly, curious expression".
Refer to assets as #Name (for example "#Mei sits on the sofa, looking toward #LivingRoom");
style and quality keywords are added by the project, never write them yourself.

Answer with a single JSON code block and nothing else:
{
  "shots": [{"shot_id": "A1", "technique": "", "framing": "", "duration": 3, "dialogue": "",
    "description": "", "notes": "", "lead_prompt": "", "lead_prompt_alt": "",
    "tail_prompt": "", "tail_prompt_alt": "", "video_prompt": "", "video_prompt_alt": ""}],
  "characters": [{"name": "", "description": "", "prompt": "", "prompt_alt": "", "notes": ""}],
  "scenes": [{"name": "", "description": "", "prompt": "", "prompt_alt": "", "notes": ""}],
  "props": [{"name": "", "description": "", "prompt": "", "prompt_alt": "", "notes": ""}]
}`

// ShotListContext summarizes the current shot list for the model, so edit
// instructions can refer to existing shot ids.
func ShotListContext(shots []db.Shot) string {
	if len(shots) == 0 {
		return "\n\n[Current shot list]\n(none yet)"
	}
	var b strings.Builder
	b.WriteString("\n\n[Current shot list]")
	for _, s := range shots {
		desc := s.Description
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(&b, "\n%d. %s: %s", s.Position, s.ShotID, desc)
	}
	return b.String()
}

var anchorPattern = regexp.MustCompile(`#([\p{L}\p{N}_-]+)`)

// ComposeImagePrompt layers a shot's action prompt into a full image prompt:
// project style, anchors for every #Name asset the action references, the
// action itself, then quality keywords. Empty layers are skipped.
func ComposeImagePrompt(style, action, quality string, assets []db.Asset) string {
	byName := make(map[string]db.Asset, len(assets))
	for _, a := range assets {
		byName[a.Name] = a
	}

	var anchors []string
	seen := make(map[string]bool)
	for _, m := range anchorPattern.FindAllStringSubmatch(action, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		a, ok := byName[name]
		if !ok {
			continue
		}
		prompt := a.Prompt
		if prompt == "" {
			prompt = a.Description
		}
		if prompt != "" {
			anchors = append(anchors, fmt.Sprintf("%s: %s", a.Name, prompt))
		}
	}

	layers := []string{
		strings.TrimSpace(style),
		strings.Join(anchors, "; "),
		strings.TrimSpace(anchorPattern.ReplaceAllString(action, "$1")),
		strings.TrimSpace(quality),
	}
	parts := make([]string, 0, len(layers))
	for _, layer := range layers {
		if layer != "" {
			parts = append(parts, layer)
		}
	}
	return strings.Join(parts, ", ")
}
