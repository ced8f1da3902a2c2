package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/db"
	"github.com/hpungsan/storyboard/internal/errors"
	"github.com/hpungsan/storyboard/internal/generate"
)

// AppendMessageInput contains parameters for the AppendMessage operation.
type AppendMessageInput struct {
	Path    string
	Role    string
	Content string
}

// AppendMessage adds an entry to the project's conversation log.
func AppendMessage(ctx context.Context, d *Deps, input AppendMessageInput) (*db.Message, error) {
	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.AppendMessage(ctx, input.Role, input.Content)
}

// GetMessagesInput contains parameters for the GetMessages operation.
type GetMessagesInput struct {
	Path  string
	Limit int // default: 20, max: 500
}

// GetMessagesOutput contains the result of the GetMessages operation.
type GetMessagesOutput struct {
	Messages []db.Message `json:"messages"`
}

// GetMessages returns the most recent log entries, oldest first.
func GetMessages(ctx context.Context, d *Deps, input GetMessagesInput) (*GetMessagesOutput, error) {
	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	msgs, err := store.RecentMessages(ctx, input.Limit)
	if err != nil {
		return nil, err
	}
	return &GetMessagesOutput{Messages: msgs}, nil
}

// ChatInput contains parameters for the Chat operation.
type ChatInput struct {
	Path    string
	Message string
	// APIID selects a text API. Empty means the default text API.
	APIID string
	// Mode overrides replacement mode detection (full, partial or auto).
	Mode string
}

// ChatOutput contains the result of the Chat operation.
type ChatOutput struct {
	Reply string `json:"reply"`
	// Saved is set when the reply carried a generated batch.
	Saved *SaveGeneratedOutput `json:"saved,omitempty"`
}

// Chat sends a user message to the text API and logs both sides of the
// exchange. A generated batch found in the reply replaces the shot list.
func Chat(ctx context.Context, d *Deps, input ChatInput) (*ChatOutput, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, errors.NewInvalidRequest("message is required")
	}
	mode := input.Mode
	if strings.TrimSpace(mode) == "" {
		mode = ModeAuto
	}
	replaceMode, err := resolveMode(mode, message)
	if err != nil {
		return nil, err
	}
	gen, err := d.generator()
	if err != nil {
		return nil, err
	}
	api, err := d.resolveAPI(input.APIID, config.APIText)
	if err != nil {
		return nil, err
	}

	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	history, err := store.RecentMessages(ctx, generate.MaxHistory)
	if err != nil {
		return nil, err
	}
	if _, err := store.AppendMessage(ctx, db.RoleUser, message); err != nil {
		return nil, err
	}
	shots, err := store.ListShots(ctx)
	if err != nil {
		return nil, err
	}

	reply, err := gen.Chat(ctx, api, message+generate.ShotListContext(shots), history)
	if err != nil {
		return nil, errors.NewGenerationFailure(api.Name, err)
	}

	out := &ChatOutput{Reply: reply}
	var saveErr error
	if payload, ok := generate.ParseReply(reply); ok {
		if saveErr = replace(ctx, store, payload, replaceMode); saveErr == nil {
			out.Saved = &SaveGeneratedOutput{
				Mode:       replaceMode,
				Shots:      len(payload.Shots),
				Characters: len(payload.Characters),
				Scenes:     len(payload.Scenes),
				Props:      len(payload.Props),
			}
		}
	}

	// The reply is logged even when its batch could not be saved.
	if _, err := store.AppendMessage(ctx, db.RoleAssistant, reply); err != nil {
		return nil, err
	}
	if saveErr != nil {
		return nil, saveErr
	}
	return out, nil
}
