package ops

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/db"
	"github.com/hpungsan/storyboard/internal/errors"
)

func TestMessages_AppendAndRead(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	path := createTestProject(t, d, "Log")

	for i := 1; i <= 3; i++ {
		if _, err := AppendMessage(ctx, d, AppendMessageInput{Path: path, Role: "user", Content: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	out, err := GetMessages(ctx, d, GetMessagesInput{Path: path, Limit: 2})
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	if len(out.Messages) != 2 || out.Messages[0].Content != "m2" || out.Messages[1].Content != "m3" {
		t.Errorf("messages = %+v, want m2, m3", out.Messages)
	}

	_, err = AppendMessage(ctx, d, AppendMessageInput{Path: path, Role: " ", Content: "x"})
	if !errors.Is(err, errors.ErrValidationFailure) {
		t.Errorf("blank role error = %v, want VALIDATION_FAILURE", err)
	}
}

func textAPI() config.APIConfig {
	return config.APIConfig{ID: "txt", Name: "writer", APIType: config.APIText, BaseURL: "https://llm.example.com/v1"}
}

func TestChat_SavesBatch(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	saveConfig(t, d, textAPI())
	path := createTestProject(t, d, "Chat")

	if _, err := AppendMessage(ctx, d, AppendMessageInput{Path: path, Role: db.RoleUser, Content: "earlier"}); err != nil {
		t.Fatal(err)
	}

	gen := &fakeGenerator{reply: "Draft ready.\n```json\n" + batchJSON + "\n```"}
	d.Generator = gen

	out, err := Chat(ctx, d, ChatInput{Path: path, Message: "Write a short scene with Mei"})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if out.Saved == nil || out.Saved.Shots != 2 || out.Saved.Mode != db.ModePartial {
		t.Errorf("Saved = %+v", out.Saved)
	}

	// History excludes the message being sent
	if len(gen.gotHistory) != 1 || gen.gotHistory[0].Content != "earlier" {
		t.Errorf("history = %+v", gen.gotHistory)
	}
	if !strings.HasPrefix(gen.gotMessage, "Write a short scene with Mei") ||
		!strings.Contains(gen.gotMessage, "(none yet)") {
		t.Errorf("message sent = %q", gen.gotMessage)
	}
	if gen.gotAPI.ID != "txt" {
		t.Errorf("api = %q", gen.gotAPI.ID)
	}

	msgs, err := GetMessages(ctx, d, GetMessagesInput{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs.Messages) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(msgs.Messages))
	}
	if msgs.Messages[1].Role != db.RoleUser || msgs.Messages[2].Role != db.RoleAssistant {
		t.Errorf("roles = %s, %s", msgs.Messages[1].Role, msgs.Messages[2].Role)
	}
	if msgs.Messages[2].Content != gen.reply {
		t.Error("assistant message is not the full reply")
	}

	// The next turn sees the current shot list
	gen.reply = "Sounds good."
	out, err = Chat(ctx, d, ChatInput{Path: path, Message: "thanks"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Saved != nil {
		t.Errorf("Saved = %+v for plain reply", out.Saved)
	}
	if !strings.Contains(gen.gotMessage, "1. A1: Mei opens the door") {
		t.Errorf("message sent = %q", gen.gotMessage)
	}
}

func TestChat_RegenerateKeywordReplacesAll(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	saveConfig(t, d, textAPI())
	path := createTestProject(t, d, "Regen")
	if _, err := SaveGenerated(ctx, d, SaveGeneratedInput{Path: path, Text: batchJSON}); err != nil {
		t.Fatal(err)
	}

	d.Generator = &fakeGenerator{reply: `{"shots": [{"shot_id": "N1"}], "characters": [{"name": "Chen"}]}`}
	out, err := Chat(ctx, d, ChatInput{Path: path, Message: "Start over with a new story"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Saved == nil || out.Saved.Mode != db.ModeFull {
		t.Fatalf("Saved = %+v, want full", out.Saved)
	}

	assets, err := GetAssets(ctx, d, GetAssetsInput{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if chars := assets.Assets[db.KindCharacter]; len(chars) != 1 || chars[0].Name != "Chen" {
		t.Errorf("characters = %+v", chars)
	}
}

func TestChat_GenerationFailure(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	saveConfig(t, d, textAPI())
	path := createTestProject(t, d, "Down")
	d.Generator = &fakeGenerator{chatErr: fmt.Errorf("status 503: overloaded")}

	_, err := Chat(ctx, d, ChatInput{Path: path, Message: "hello"})
	if !errors.Is(err, errors.ErrGenerationFailure) {
		t.Fatalf("Chat() error = %v, want GENERATION_FAILURE", err)
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Errorf("error = %q, want upstream message", err)
	}

	// The user message is kept for a retry
	msgs, err := GetMessages(ctx, d, GetMessagesInput{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs.Messages) != 1 || msgs.Messages[0].Role != db.RoleUser {
		t.Errorf("messages = %+v", msgs.Messages)
	}
}

func TestChat_InvalidBatchStillLogsReply(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	saveConfig(t, d, textAPI())
	path := createTestProject(t, d, "Dup")
	if _, err := SaveGenerated(ctx, d, SaveGeneratedInput{Path: path, Text: batchJSON}); err != nil {
		t.Fatal(err)
	}

	d.Generator = &fakeGenerator{reply: `{"shots": [{"shot_id": "X"}, {"shot_id": "X"}]}`}
	_, err := Chat(ctx, d, ChatInput{Path: path, Message: "add X"})
	if !errors.Is(err, errors.ErrConstraintViolation) {
		t.Fatalf("Chat() error = %v, want CONSTRAINT_VIOLATION", err)
	}

	shots, err := GetShots(ctx, d, GetShotsInput{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(shots.Shots) != 2 {
		t.Errorf("shot list changed: %+v", shots.Shots)
	}
	msgs, err := GetMessages(ctx, d, GetMessagesInput{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs.Messages) != 2 || msgs.Messages[1].Role != db.RoleAssistant {
		t.Errorf("messages = %+v", msgs.Messages)
	}
}

func TestChat_Validation(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	path := createTestProject(t, d, "Validation")

	_, err := Chat(ctx, d, ChatInput{Path: path, Message: "  "})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("empty message error = %v, want INVALID_REQUEST", err)
	}

	d.Generator = &fakeGenerator{}
	_, err = Chat(ctx, d, ChatInput{Path: path, Message: "hi"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("no text API error = %v, want INVALID_REQUEST", err)
	}

	saveConfig(t, d, textAPI())
	_, err = Chat(ctx, d, ChatInput{Path: path, Message: "hi", APIID: "missing"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown api error = %v, want NOT_FOUND", err)
	}
}
