package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hpungsan/storyboard/internal/errors"
)

func TestRecentMessages_Ordering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, content := range []string{"m1", "m2", "m3"} {
		if _, err := s.AppendMessage(ctx, RoleUser, content); err != nil {
			t.Fatalf("AppendMessage(%s) error = %v", content, err)
		}
	}

	msgs, err := s.RecentMessages(ctx, 2)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "m2" || msgs[1].Content != "m3" {
		t.Errorf("contents = [%s %s], want [m2 m3]", msgs[0].Content, msgs[1].Content)
	}
}

func TestAppendMessage_IDsAndTimestamps(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(fixedClock(start, time.Second)))

	first, err := s.AppendMessage(ctx, RoleUser, "hello")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.AppendMessage(ctx, RoleAssistant, "hi")
	if err != nil {
		t.Fatal(err)
	}

	if second.ID <= first.ID {
		t.Errorf("IDs not increasing: %d then %d", first.ID, second.ID)
	}
	if second.Timestamp <= first.Timestamp {
		t.Errorf("timestamps not increasing: %d then %d", first.Timestamp, second.Timestamp)
	}
	if first.Timestamp < start.UnixMilli() {
		t.Errorf("Timestamp = %d, want >= %d", first.Timestamp, start.UnixMilli())
	}

	msgs, err := s.RecentMessages(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0] != *first || msgs[1] != *second {
		t.Errorf("RecentMessages() = %+v, want [%+v %+v]", msgs, *first, *second)
	}
}

func TestAppendMessage_FreeFormRole(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	msg, err := s.AppendMessage(ctx, " director ", "note")
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if msg.Role != "director" {
		t.Errorf("Role = %q, want director", msg.Role)
	}

	if _, err := s.AppendMessage(ctx, "", "x"); !errors.Is(err, errors.ErrValidationFailure) {
		t.Errorf("empty role error = %v, want VALIDATION_FAILURE", err)
	}
}

func TestRecentMessages_DefaultLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	total := DefaultMessageLimit + 5
	for i := 1; i <= total; i++ {
		if _, err := s.AppendMessage(ctx, RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.RecentMessages(ctx, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != DefaultMessageLimit {
		t.Fatalf("len(msgs) = %d, want %d", len(msgs), DefaultMessageLimit)
	}
	if msgs[0].Content != "m6" || msgs[len(msgs)-1].Content != fmt.Sprintf("m%d", total) {
		t.Errorf("window = %s..%s, want m6..m%d", msgs[0].Content, msgs[len(msgs)-1].Content, total)
	}

	count, err := s.CountMessages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != total {
		t.Errorf("CountMessages() = %d, want %d", count, total)
	}
}

func TestRecentMessages_Empty(t *testing.T) {
	s := newTestStore(t)

	msgs, err := s.RecentMessages(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("RecentMessages() = %#v, want empty non-nil slice", msgs)
	}
}

func TestRestoreMessages_KeepsTimestamps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.AppendMessage(ctx, RoleUser, "existing"); err != nil {
		t.Fatal(err)
	}
	err := s.RestoreMessages(ctx, []Message{
		{ID: 99, Role: RoleUser, Content: "old question", Timestamp: 1000},
		{ID: 100, Role: RoleAssistant, Content: "old answer", Timestamp: 2000},
	})
	if err != nil {
		t.Fatalf("RestoreMessages() error = %v", err)
	}

	var got []Message
	if err := s.EachMessage(ctx, func(m Message) error {
		got = append(got, m)
		return nil
	}); err != nil {
		t.Fatalf("EachMessage() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[1].Content != "old question" || got[1].Timestamp != 1000 || got[1].ID == 99 {
		t.Errorf("restored = %+v", got[1])
	}
	if got[2].ID <= got[1].ID {
		t.Errorf("ids not increasing: %d then %d", got[1].ID, got[2].ID)
	}
}

func TestRestoreMessages_RejectsEmptyRoleAtomically(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.RestoreMessages(ctx, []Message{
		{Role: RoleUser, Content: "ok"},
		{Role: " ", Content: "bad"},
	})
	if !errors.Is(err, errors.ErrValidationFailure) {
		t.Fatalf("error = %v, want VALIDATION_FAILURE", err)
	}
	n, err := s.CountMessages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("CountMessages() = %d, want 0", n)
	}
}

func TestEachMessage_StopsOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := s.AppendMessage(ctx, RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	stop := fmt.Errorf("stop")
	calls := 0
	err := s.EachMessage(ctx, func(Message) error {
		calls++
		return stop
	})
	if err != stop || calls != 1 {
		t.Errorf("EachMessage() = %v after %d calls", err, calls)
	}
}
