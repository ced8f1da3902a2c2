package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/storyboard/internal/errors"
	_ "modernc.org/sqlite"
)

const (
	// DirName is the project subdirectory holding the database.
	DirName = ".storyboard"
	// FileName is the database file inside DirName.
	FileName = "project.db"

	ignoreMarker = ".gitignore"
)

// Dir returns the storyboard directory of a project root.
func Dir(projectRoot string) string {
	return filepath.Join(projectRoot, DirName)
}

// Path returns the database file path of a project root.
func Path(projectRoot string) string {
	return filepath.Join(projectRoot, DirName, FileName)
}

// IsProject reports whether projectRoot holds a project database.
func IsProject(projectRoot string) bool {
	info, err := os.Stat(Path(projectRoot))
	return err == nil && !info.IsDir()
}

// Store is an open project database. It owns its connection until Close.
// A Store is meant for sequential use by one caller.
type Store struct {
	db     *sql.DB
	root   string
	now    func() time.Time
	logger *slog.Logger

	// shotCols records which optional shot columns exist in this session.
	shotCols map[string]bool
}

// Option configures Open.
type Option func(*Store)

// WithClock replaces time.Now for created/modified timestamps and message times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for non-fatal migration and metadata problems.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens or creates the database at projectRoot/.storyboard/project.db,
// migrates it to the current schema and seeds project metadata.
func Open(projectRoot string, opts ...Option) (*Store, error) {
	s := &Store{
		root:   projectRoot,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	dir := Dir(projectRoot)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewIOFailure(dir, err)
	}
	if err := writeIgnoreMarker(dir); err != nil {
		return nil, errors.NewIOFailure(filepath.Join(dir, ignoreMarker), err)
	}

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := Path(projectRoot)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewIOFailure(dbPath, err)
	}
	// One connection per handle: the store is used sequentially and
	// transactions must never wait on a second connection of their own.
	database.SetMaxOpenConns(1)
	s.db = database

	if err := verifyWALMode(database); err != nil {
		database.Close()
		return nil, errors.NewIOFailure(dbPath, err)
	}

	ctx := context.Background()
	if err := s.migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}

	if err := s.seedMeta(ctx); err != nil {
		database.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Root returns the project root this store was opened for.
func (s *Store) Root() string {
	return s.root
}

// HasShotColumn reports whether an optional shot column is available in this session.
func (s *Store) HasShotColumn(column string) bool {
	return s.shotCols[column]
}

// writeIgnoreMarker keeps the database out of version control.
func writeIgnoreMarker(dir string) error {
	path := filepath.Join(dir, ignoreMarker)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte("*\n"), 0600)
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nowMillis returns the store clock in Unix milliseconds.
func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}
