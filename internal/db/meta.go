package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hpungsan/storyboard/internal/errors"
)

// Well-known metadata keys.
const (
	MetaName          = "name"
	MetaCreatedAt     = "created_at"
	MetaModifiedAt    = "modified_at"
	MetaStylePrompt   = "style_prompt"
	MetaQualityPrompt = "quality_prompt"
)

// Style holds the project-wide prompt layers prepended and appended to image prompts.
type Style struct {
	StylePrompt   *string `json:"style_prompt,omitempty"`
	QualityPrompt *string `json:"quality_prompt,omitempty"`
}

// Info summarizes a project database.
type Info struct {
	Name         string `json:"name"`
	CreatedAt    int64  `json:"created_at"`
	ModifiedAt   int64  `json:"modified_at"`
	ShotCount    int    `json:"shot_count"`
	MessageCount int    `json:"message_count"`
}

// seedMeta records name and creation time on first open.
func (s *Store) seedMeta(ctx context.Context) error {
	now := strconv.FormatInt(s.nowMillis(), 10)
	seeds := []struct{ key, value string }{
		{MetaName, filepath.Base(s.root)},
		{MetaCreatedAt, now},
		{MetaModifiedAt, now},
	}
	for _, seed := range seeds {
		_, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO project_meta (key, value) VALUES (?, ?)", seed.key, seed.value)
		if err != nil {
			return errors.NewSchemaFailure(tableMeta, err)
		}
	}
	return nil
}

// touch refreshes modified_at. Callers run it inside their own transaction.
func (s *Store) touch(ctx context.Context, q querier) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR REPLACE INTO project_meta (key, value) VALUES (?, ?)",
		MetaModifiedAt, strconv.FormatInt(s.nowMillis(), 10))
	return err
}

// GetMeta returns a metadata value. Lookups are best-effort: a read error is
// logged and reported as a missing key.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool) {
	return s.getMeta(ctx, s.db, key)
}

func (s *Store) getMeta(ctx context.Context, q querier, key string) (string, bool) {
	var value sql.NullString
	err := q.QueryRowContext(ctx, "SELECT value FROM project_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		s.logger.Warn("metadata lookup failed", "key", key, "error", err)
		return "", false
	}
	return value.String, value.Valid
}

// metaInt returns a numeric metadata value, or 0 when absent or malformed.
func (s *Store) metaInt(ctx context.Context, key string) int64 {
	raw, ok := s.GetMeta(ctx, key)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		s.logger.Warn("metadata value is not a number", "key", key, "value", raw)
		return 0
	}
	return n
}

// SetMeta stores a metadata value and refreshes modified_at.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.NewValidationFailure("metadata key must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO project_meta (key, value) VALUES (?, ?)", key, value); err != nil {
		return errors.NewInternal(err)
	}
	if key != MetaModifiedAt {
		if err := s.touch(ctx, tx); err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Style returns the project's style prompts; unset prompts are nil.
func (s *Store) Style(ctx context.Context) Style {
	var style Style
	if v, ok := s.GetMeta(ctx, MetaStylePrompt); ok {
		style.StylePrompt = &v
	}
	if v, ok := s.GetMeta(ctx, MetaQualityPrompt); ok {
		style.QualityPrompt = &v
	}
	return style
}

// SetStyle replaces both style prompts. A nil prompt removes the key.
func (s *Store) SetStyle(ctx context.Context, style Style) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	for key, value := range map[string]*string{
		MetaStylePrompt:   style.StylePrompt,
		MetaQualityPrompt: style.QualityPrompt,
	} {
		var err error
		if value == nil {
			_, err = tx.ExecContext(ctx, "DELETE FROM project_meta WHERE key = ?", key)
		} else {
			_, err = tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO project_meta (key, value) VALUES (?, ?)", key, *value)
		}
		if err != nil {
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

// Info returns the project summary. Missing metadata defaults to zero values.
func (s *Store) Info(ctx context.Context) (*Info, error) {
	info := &Info{
		CreatedAt:  s.metaInt(ctx, MetaCreatedAt),
		ModifiedAt: s.metaInt(ctx, MetaModifiedAt),
	}
	if name, ok := s.GetMeta(ctx, MetaName); ok && name != "" {
		info.Name = name
	} else {
		info.Name = filepath.Base(s.root)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM shots").Scan(&info.ShotCount); err != nil {
		return nil, errors.NewInternal(err)
	}
	count, err := s.CountMessages(ctx)
	if err != nil {
		return nil, err
	}
	info.MessageCount = count
	return info, nil
}

// ReadInfo summarizes the project at projectRoot without migrating or writing
// to it. Rows in tables left by earlier releases are counted too, and a
// missing modified_at falls back to the database file's modification time.
func ReadInfo(ctx context.Context, projectRoot string) (*Info, error) {
	dbPath := Path(projectRoot)
	stat, err := os.Stat(dbPath)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFound("project", projectRoot)
	}
	if err != nil {
		return nil, errors.NewIOFailure(dbPath, err)
	}

	database, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		return nil, errors.NewIOFailure(dbPath, err)
	}
	defer database.Close()
	database.SetMaxOpenConns(1)

	info := &Info{Name: filepath.Base(projectRoot)}
	meta, err := tableColumns(ctx, database, tableMeta)
	if err != nil {
		return nil, errors.NewIOFailure(dbPath, err)
	}
	if len(meta) > 0 {
		rows, err := database.QueryContext(ctx,
			"SELECT key, value FROM project_meta WHERE key IN (?, ?, ?)",
			MetaName, MetaCreatedAt, MetaModifiedAt)
		if err != nil {
			return nil, errors.NewIOFailure(dbPath, err)
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var value sql.NullString
			if err := rows.Scan(&key, &value); err != nil {
				return nil, errors.NewIOFailure(dbPath, err)
			}
			raw := strings.TrimSpace(value.String)
			switch key {
			case MetaName:
				if raw != "" {
					info.Name = raw
				}
			case MetaCreatedAt:
				info.CreatedAt, _ = strconv.ParseInt(raw, 10, 64)
			case MetaModifiedAt:
				info.ModifiedAt, _ = strconv.ParseInt(raw, 10, 64)
			}
		}
		if err := rows.Err(); err != nil {
			return nil, errors.NewIOFailure(dbPath, err)
		}
	}
	if info.ModifiedAt == 0 {
		info.ModifiedAt = stat.ModTime().UnixMilli()
	}

	if info.ShotCount, err = countTables(ctx, database, tableShots, tableStoryboards); err != nil {
		return nil, errors.NewIOFailure(dbPath, err)
	}
	if info.MessageCount, err = countTables(ctx, database, tableMessages, tableChatHistory); err != nil {
		return nil, errors.NewIOFailure(dbPath, err)
	}
	return info, nil
}

// countTables sums the rows of the tables that exist.
func countTables(ctx context.Context, q querier, tables ...string) (int, error) {
	total := 0
	for _, table := range tables {
		cols, err := tableColumns(ctx, q, table)
		if err != nil {
			return 0, err
		}
		if len(cols) == 0 {
			continue
		}
		n, err := countRows(ctx, q, table)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
