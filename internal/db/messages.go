package db

import (
	"context"
	"strings"

	"github.com/hpungsan/storyboard/internal/errors"
)

// Message log limits.
const (
	DefaultMessageLimit = 20
	MaxMessageLimit     = 500
)

// Roles used by the chat flow. The log itself accepts any non-empty tag.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of the project's conversation log.
type Message struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// AppendMessage adds a message stamped with the store clock. IDs increase
// monotonically and are never reused.
func (s *Store) AppendMessage(ctx context.Context, role, content string) (*Message, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, errors.NewValidationFailure("message role must not be empty")
	}

	msg := &Message{Role: role, Content: content, Timestamp: s.nowMillis()}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		"INSERT INTO messages (role, content, timestamp) VALUES (?, ?, ?)",
		msg.Role, msg.Content, msg.Timestamp)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if msg.ID, err = result.LastInsertId(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := s.touch(ctx, tx); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return msg, nil
}

// RecentMessages returns the newest limit messages, oldest first.
// A limit <= 0 uses DefaultMessageLimit; larger limits are clamped to MaxMessageLimit.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, timestamp
		FROM messages
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, errors.NewInternal(err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountMessages returns the number of logged messages.
func (s *Store) CountMessages(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// EachMessage calls fn for every logged message, oldest first. Iteration
// stops at the first error fn returns.
func (s *Store) EachMessage(ctx context.Context, fn func(Message) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, role, content, timestamp FROM messages ORDER BY id")
	if err != nil {
		return errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return errors.NewInternal(err)
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// RestoreMessages appends msgs in one transaction, keeping their roles and
// timestamps. New IDs are assigned. A message without a timestamp is stamped
// with the store clock.
func (s *Store) RestoreMessages(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, m := range msgs {
		role := strings.TrimSpace(m.Role)
		if role == "" {
			return errors.NewValidationFailure("message role must not be empty")
		}
		ts := m.Timestamp
		if ts <= 0 {
			ts = s.nowMillis()
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages (role, content, timestamp) VALUES (?, ?, ?)",
			role, m.Content, ts); err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := s.touch(ctx, tx); err != nil {
		return errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}
