package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/storyboard/internal/errors"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
//
//	1: shots keyed by a stable shot_id instead of a numeric id
//	2: image output columns on shots
//	3: storyboards, chat_history and image_prompt_* asset columns folded in
const CurrentSchemaVersion = 3

const (
	tableShots       = "shots"
	tableShotsNew    = "shots_new"
	tableCharacters  = "characters"
	tableScenes      = "scenes"
	tableProps       = "props"
	tableMeta        = "project_meta"
	tableMessages    = "messages"
	tableMessagesNew = "messages_new"

	// Tables written by releases that predate the shots/messages names.
	tableStoryboards = "storyboards"
	tableChatHistory = "chat_history"
)

// Optional shot columns added after the first shipped schema.
const (
	ColLeadImagePath = "lead_image_path"
	ColTailImagePath = "tail_image_path"
	ColImageStatus   = "image_status"
)

// shotColumn describes one column of the current shots table.
type shotColumn struct {
	name     string
	ddl      string // type and constraints, used by CREATE TABLE
	addDDL   string // used by ALTER TABLE ADD COLUMN; empty for required columns
	fallback string // SELECT expression when a legacy table lacks the column
}

// shotColumns is the current shots shape, in table order.
var shotColumns = []shotColumn{
	{name: "shot_id", ddl: "TEXT PRIMARY KEY"},
	{name: "position", ddl: "INTEGER NOT NULL"},
	{name: "technique", ddl: "TEXT", fallback: "NULL"},
	{name: "framing", ddl: "TEXT", fallback: "NULL"},
	{name: "duration", ddl: "REAL", fallback: "NULL"},
	{name: "dialogue", ddl: "TEXT", fallback: "NULL"},
	{name: "description", ddl: "TEXT", fallback: "NULL"},
	{name: "notes", ddl: "TEXT", fallback: "NULL"},
	{name: "lead_prompt", ddl: "TEXT", fallback: "NULL"},
	{name: "lead_prompt_alt", ddl: "TEXT", fallback: "NULL"},
	{name: "tail_prompt", ddl: "TEXT", fallback: "NULL"},
	{name: "tail_prompt_alt", ddl: "TEXT", fallback: "NULL"},
	{name: "video_prompt", ddl: "TEXT", fallback: "NULL"},
	{name: "video_prompt_alt", ddl: "TEXT", fallback: "NULL"},
	{name: ColLeadImagePath, ddl: "TEXT", addDDL: "TEXT", fallback: "NULL"},
	{name: ColTailImagePath, ddl: "TEXT", addDDL: "TEXT", fallback: "NULL"},
	{name: ColImageStatus, ddl: "TEXT NOT NULL DEFAULT 'empty'", addDDL: "TEXT NOT NULL DEFAULT 'empty'", fallback: "'empty'"},
}

// shotsTableDDL returns CREATE TABLE for the current shots shape under the given name.
func shotsTableDDL(table string, ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(table)
	b.WriteString(" (\n")
	for i, col := range shotColumns {
		fmt.Fprintf(&b, "  %-16s %s", col.name, col.ddl)
		if i < len(shotColumns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

func assetTableDDL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
		  name        TEXT PRIMARY KEY,
		  description TEXT,
		  prompt      TEXT,
		  prompt_alt  TEXT,
		  notes       TEXT
		)`, table)
}

const metaTableDDL = `
		CREATE TABLE IF NOT EXISTS project_meta (
		  key   TEXT PRIMARY KEY,
		  value TEXT
		)`

func messagesTableDDL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
		  id        INTEGER PRIMARY KEY AUTOINCREMENT,
		  role      TEXT NOT NULL,
		  content   TEXT NOT NULL,
		  timestamp INTEGER NOT NULL
		)`, table)
}

// migrate brings the database to CurrentSchemaVersion. It runs on every open.
// Every step inspects the schema first, so a current database is left as is
// and a database that lost an optional column gets it back.
func (s *Store) migrate(ctx context.Context) error {
	version, err := GetUserVersion(s.db)
	if err != nil {
		return errors.NewSchemaFailure("user_version", err)
	}

	complete := true

	// A failed copy leaves the original table in place; the usability check
	// below turns that into a SCHEMA_FAILURE for this open.
	if err := s.migrateLegacyShots(ctx); err != nil {
		s.logger.Error("legacy shot table migration failed", "error", err)
		complete = false
	}
	if err := s.migrateStoryboards(ctx); err != nil {
		s.logger.Error("storyboards table migration failed", "error", err)
		return errors.NewSchemaFailure(tableStoryboards, err)
	}

	cols, err := tableColumns(ctx, s.db, tableShots)
	if err != nil {
		return errors.NewSchemaFailure(tableShots, err)
	}
	if len(cols) > 0 && !cols["shot_id"].pk {
		return errors.NewSchemaFailure(tableShots, fmt.Errorf("shot_id primary key missing"))
	}

	for _, table := range []string{tableCharacters, tableScenes, tableProps} {
		if err := s.migrateAssetColumns(ctx, table); err != nil {
			s.logger.Error("asset column migration failed", "table", table, "error", err)
			return errors.NewSchemaFailure(table, err)
		}
	}
	if err := s.migrateChatHistory(ctx); err != nil {
		s.logger.Error("chat_history migration failed", "error", err)
		return errors.NewSchemaFailure(tableChatHistory, err)
	}

	if err := s.createTables(ctx); err != nil {
		return err
	}

	// Additive columns. Each failure only removes that column from this session.
	for _, col := range shotColumns {
		if col.addDDL == "" {
			continue
		}
		if err := addColumnIfMissing(ctx, s.db, tableShots, col.name, col.addDDL); err != nil {
			s.logger.Warn("optional column unavailable", "table", tableShots, "column", col.name, "error", err)
			complete = false
		}
	}

	cols, err = tableColumns(ctx, s.db, tableShots)
	if err != nil {
		return errors.NewSchemaFailure(tableShots, err)
	}
	s.shotCols = make(map[string]bool)
	for _, col := range shotColumns {
		if col.addDDL != "" && cols[col.name].present {
			s.shotCols[col.name] = true
		}
	}

	if complete && version < CurrentSchemaVersion {
		if err := SetUserVersion(s.db, CurrentSchemaVersion); err != nil {
			s.logger.Warn("schema version not recorded", "error", err)
		}
	}

	return nil
}

// createTables creates every table that does not exist yet.
func (s *Store) createTables(ctx context.Context) error {
	steps := []struct {
		table string
		ddl   string
	}{
		{tableShots, shotsTableDDL(tableShots, true)},
		{tableShots, "CREATE INDEX IF NOT EXISTS idx_shots_position ON shots(position)"},
		{tableCharacters, assetTableDDL(tableCharacters)},
		{tableScenes, assetTableDDL(tableScenes)},
		{tableProps, assetTableDDL(tableProps)},
		{tableMeta, metaTableDDL},
		{tableMessages, messagesTableDDL(tableMessages)},
	}
	for _, step := range steps {
		if _, err := s.db.ExecContext(ctx, step.ddl); err != nil {
			return errors.NewSchemaFailure(step.table, err)
		}
	}
	return nil
}

// isLegacyShotTable reports whether the shots table uses a numeric id as its key.
func isLegacyShotTable(cols map[string]columnInfo) bool {
	id, ok := cols["id"]
	if !ok || !id.pk {
		return false
	}
	if !strings.Contains(strings.ToUpper(id.ctype), "INT") {
		return false
	}
	return !cols["shot_id"].pk
}

// migrateLegacyShots rebuilds a numeric-id shots table with the current shape:
// create shots_new, copy, drop shots, rename. All steps share one transaction,
// so a failed copy leaves the original table untouched.
func (s *Store) migrateLegacyShots(ctx context.Context) error {
	cols, err := tableColumns(ctx, s.db, tableShots)
	if err != nil {
		return fmt.Errorf("inspect shots: %w", err)
	}
	if !isLegacyShotTable(cols) {
		return nil
	}

	s.logger.Info("migrating legacy shot table")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migrate shots: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableShotsNew); err != nil {
		return fmt.Errorf("drop stale shots_new: %w", err)
	}
	if _, err := tx.ExecContext(ctx, shotsTableDDL(tableShotsNew, false)); err != nil {
		return fmt.Errorf("create shots_new: %w", err)
	}
	if _, err := tx.ExecContext(ctx, legacyCopySQL(tableShots, cols)); err != nil {
		return fmt.Errorf("copy shots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+tableShots); err != nil {
		return fmt.Errorf("drop legacy shots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "ALTER TABLE "+tableShotsNew+" RENAME TO "+tableShots); err != nil {
		return fmt.Errorf("rename shots_new: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrate shots: %w", err)
	}

	s.logger.Info("legacy shot table migrated")
	return nil
}

// migrateStoryboards folds a storyboards table from earlier releases into
// shots, renaming columns on the way (mirror_id, sequence_number, shot_type,
// image_prompt_zh...). It runs in one transaction. An empty shots table
// created next to storyboards is replaced; a non-empty one wins and the old
// table is left alone.
func (s *Store) migrateStoryboards(ctx context.Context) error {
	legacy, err := tableColumns(ctx, s.db, tableStoryboards)
	if err != nil {
		return fmt.Errorf("inspect storyboards: %w", err)
	}
	if len(legacy) == 0 {
		return nil
	}
	current, err := tableColumns(ctx, s.db, tableShots)
	if err != nil {
		return fmt.Errorf("inspect shots: %w", err)
	}
	if len(current) > 0 {
		n, err := countRows(ctx, s.db, tableShots)
		if err != nil {
			return fmt.Errorf("count shots: %w", err)
		}
		if n > 0 {
			s.logger.Warn("storyboards table left in place, shots already has rows", "shots", n)
			return nil
		}
	}

	s.logger.Info("migrating storyboards table")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migrate storyboards: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableShotsNew); err != nil {
		return fmt.Errorf("drop stale shots_new: %w", err)
	}
	if _, err := tx.ExecContext(ctx, shotsTableDDL(tableShotsNew, false)); err != nil {
		return fmt.Errorf("create shots_new: %w", err)
	}
	if _, err := tx.ExecContext(ctx, legacyCopySQL(tableStoryboards, legacy)); err != nil {
		return fmt.Errorf("copy storyboards: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableShots); err != nil {
		return fmt.Errorf("drop empty shots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+tableStoryboards); err != nil {
		return fmt.Errorf("drop storyboards: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "ALTER TABLE "+tableShotsNew+" RENAME TO "+tableShots); err != nil {
		return fmt.Errorf("rename shots_new: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrate storyboards: %w", err)
	}

	s.logger.Info("storyboards table migrated")
	return nil
}

// legacyShotSources lists, per current shots column, the names earlier
// schemas used for it, most recent first.
var legacyShotSources = map[string][]string{
	"shot_id":          {"shot_id", "mirror_id"},
	"position":         {"position", "sequence_number"},
	"technique":        {"technique", "shot_type"},
	"framing":          {"framing", "shot_size"},
	"lead_prompt":      {"lead_prompt", "image_prompt_zh"},
	"lead_prompt_alt":  {"lead_prompt_alt", "image_prompt_en"},
	"tail_prompt":      {"tail_prompt", "image_prompt_tail_zh"},
	"tail_prompt_alt":  {"tail_prompt_alt", "image_prompt_tail_en"},
	"video_prompt":     {"video_prompt", "video_prompt_zh"},
	"video_prompt_alt": {"video_prompt_alt", "video_prompt_en"},
	ColLeadImagePath:   {ColLeadImagePath, "image_first_path"},
	ColTailImagePath:   {ColTailImagePath, "image_last_path"},
}

// legacySource returns the legacy column holding the data of column, if any.
func legacySource(legacy map[string]columnInfo, column string) (string, bool) {
	names, ok := legacyShotSources[column]
	if !ok {
		names = []string{column}
	}
	for _, name := range names {
		if legacy[name].present {
			return name, true
		}
	}
	return "", false
}

// legacyCopySQL builds the INSERT ... SELECT copying a legacy shot table into shots_new.
func legacyCopySQL(source string, legacy map[string]columnInfo) string {
	rowKey := "rowid"
	if legacy["id"].present {
		rowKey = "id"
	}

	names := make([]string, 0, len(shotColumns))
	exprs := make([]string, 0, len(shotColumns))

	for _, col := range shotColumns {
		names = append(names, col.name)

		src, ok := legacySource(legacy, col.name)
		var expr string
		switch {
		case col.name == "shot_id":
			if ok {
				expr = fmt.Sprintf("COALESCE(NULLIF(TRIM(%s), ''), CAST(%s AS TEXT), '')", src, rowKey)
			} else {
				expr = fmt.Sprintf("CAST(%s AS TEXT)", rowKey)
			}
		case col.name == "position":
			if ok {
				expr = fmt.Sprintf("COALESCE(%s, 0)", src)
			} else {
				expr = rowKey
			}
		case col.name == ColImageStatus:
			if ok {
				expr = fmt.Sprintf("COALESCE(%s, 'empty')", src)
			} else {
				expr = col.fallback
			}
		case ok:
			expr = src
		default:
			expr = col.fallback
		}
		exprs = append(exprs, expr)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		tableShotsNew, strings.Join(names, ", "), strings.Join(exprs, ", "), source)
}

// legacyAssetRenames maps asset prompt columns of earlier releases to the
// current names.
var legacyAssetRenames = []struct{ from, to string }{
	{"image_prompt_zh", "prompt"},
	{"image_prompt_en", "prompt_alt"},
}

// migrateAssetColumns renames legacy prompt columns of one asset table in a
// single transaction.
func (s *Store) migrateAssetColumns(ctx context.Context, table string) error {
	cols, err := tableColumns(ctx, s.db, table)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	var stmts []string
	for _, r := range legacyAssetRenames {
		if cols[r.from].present && !cols[r.to].present {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, r.from, r.to))
		}
	}
	if len(stmts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migrate %s: %w", table, err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rename %s columns: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrate %s: %w", table, err)
	}
	s.logger.Info("asset prompt columns migrated", "table", table)
	return nil
}

// legacyTimestampExpr converts chat_history timestamps to Unix milliseconds.
// Earlier releases stored seconds; any value below 1e11 is read as seconds.
const legacyTimestampExpr = `CASE
		  WHEN CAST(timestamp AS INTEGER) BETWEEN 1 AND 99999999999 THEN CAST(timestamp AS INTEGER) * 1000
		  ELSE COALESCE(CAST(timestamp AS INTEGER), 0)
		END`

// migrateChatHistory moves chat_history rows into messages in one
// transaction. Rows already in messages are merged by timestamp, older
// chat_history rows first on ties.
func (s *Store) migrateChatHistory(ctx context.Context) error {
	legacy, err := tableColumns(ctx, s.db, tableChatHistory)
	if err != nil {
		return fmt.Errorf("inspect chat_history: %w", err)
	}
	if len(legacy) == 0 {
		return nil
	}

	s.logger.Info("migrating chat_history table")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migrate chat_history: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	steps := []string{
		messagesTableDDL(tableMessages),
		"DROP TABLE IF EXISTS " + tableMessagesNew,
		messagesTableDDL(tableMessagesNew),
		`INSERT INTO messages_new (role, content, timestamp)
		SELECT role, content, ts FROM (
		  SELECT 0 AS src, rowid AS rid, COALESCE(role, '') AS role, COALESCE(content, '') AS content,
		    ` + legacyTimestampExpr + ` AS ts
		  FROM chat_history
		  UNION ALL
		  SELECT 1, rowid, role, content, timestamp FROM messages
		)
		ORDER BY ts, src, rid`,
		"DROP TABLE " + tableMessages,
		"DROP TABLE " + tableChatHistory,
		"ALTER TABLE " + tableMessagesNew + " RENAME TO " + tableMessages,
	}
	for _, stmt := range steps {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate chat_history: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrate chat_history: %w", err)
	}

	s.logger.Info("chat_history table migrated")
	return nil
}

func countRows(ctx context.Context, q querier, table string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	return n, err
}

// columnInfo is one row of PRAGMA table_info.
type columnInfo struct {
	present bool
	ctype   string
	pk      bool
}

// tableColumns returns the columns of table keyed by name; empty if the table does not exist.
func tableColumns(ctx context.Context, q querier, table string) (map[string]columnInfo, error) {
	rows, err := q.QueryContext(ctx, `PRAGMA table_info(`+table+`)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]columnInfo)
	for rows.Next() {
		var (
			cid          int
			name         string
			ctype        string
			notNull      int
			defaultValue sql.NullString
			primaryKey   int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultValue, &primaryKey); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = columnInfo{present: true, ctype: ctype, pk: primaryKey > 0}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

// addColumnIfMissing adds column to table unless introspection shows it already exists.
func addColumnIfMissing(ctx context.Context, q querier, table, column, ddl string) error {
	cols, err := tableColumns(ctx, q, table)
	if err != nil {
		return err
	}
	if cols[column].present {
		return nil
	}
	_, err = q.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl))
	if err != nil && isAlreadyExistsError(err) {
		return nil
	}
	return err
}

// isAlreadyExistsError reports whether this error indicates idempotent DDL success.
func isAlreadyExistsError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
