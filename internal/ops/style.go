package ops

import (
	"context"

	"github.com/hpungsan/storyboard/internal/db"
)

// GetStyleInput contains parameters for the GetStyle operation.
type GetStyleInput struct {
	Path string
}

// GetStyle returns the project's style and quality prompts.
func GetStyle(ctx context.Context, d *Deps, input GetStyleInput) (*db.Style, error) {
	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	style := store.Style(ctx)
	return &style, nil
}

// SaveStyleInput contains parameters for the SaveStyle operation.
type SaveStyleInput struct {
	Path          string
	StylePrompt   *string // nil clears the prompt
	QualityPrompt *string // nil clears the prompt
}

// SaveStyle replaces both style prompts.
func SaveStyle(ctx context.Context, d *Deps, input SaveStyleInput) (*db.Style, error) {
	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := store.SetStyle(ctx, db.Style{
		StylePrompt:   input.StylePrompt,
		QualityPrompt: input.QualityPrompt,
	}); err != nil {
		return nil, err
	}
	style := store.Style(ctx)
	return &style, nil
}
