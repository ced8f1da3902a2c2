package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/storyboard/internal/errors"
)

// Image status values.
const (
	ImageStatusEmpty     = "empty"
	ImageStatusGenerated = "generated"
)

// Shot is one row of the ordered shot list. ShotID is the identity;
// Position is derived from list order and rewritten on every replacement.
type Shot struct {
	ShotID         string  `json:"shot_id"`
	Position       int     `json:"position"`
	Technique      string  `json:"technique"`
	Framing        string  `json:"framing"`
	Duration       float64 `json:"duration"`
	Dialogue       string  `json:"dialogue"`
	Description    string  `json:"description"`
	Notes          string  `json:"notes"`
	LeadPrompt     string  `json:"lead_prompt"`
	LeadPromptAlt  string  `json:"lead_prompt_alt"`
	TailPrompt     string  `json:"tail_prompt"`
	TailPromptAlt  string  `json:"tail_prompt_alt"`
	VideoPrompt    string  `json:"video_prompt"`
	VideoPromptAlt string  `json:"video_prompt_alt"`
	LeadImagePath  *string `json:"lead_image_path,omitempty"`
	TailImagePath  *string `json:"tail_image_path,omitempty"`
	ImageStatus    string  `json:"image_status,omitempty"`
}

// ReplaceMode selects between full regeneration and in-place list edits.
type ReplaceMode string

const (
	ModeFull    ReplaceMode = "full"    // shots and all assets are replaced
	ModePartial ReplaceMode = "partial" // shots replaced, assets only added
)

// ParseReplaceMode validates a mode string.
func ParseReplaceMode(s string) (ReplaceMode, error) {
	switch ReplaceMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFull:
		return ModeFull, nil
	case ModePartial:
		return ModePartial, nil
	default:
		return "", errors.NewValidationFailure(fmt.Sprintf("mode must be one of: full, partial (got %q)", s))
	}
}

// ReplaceInput is a whole new shot list plus the assets generated with it.
type ReplaceInput struct {
	Shots      []Shot
	Characters []Asset
	Scenes     []Asset
	Props      []Asset
	Mode       ReplaceMode
}

// Frame selects one of a shot's two image outputs.
type Frame string

const (
	FrameLead Frame = "lead"
	FrameTail Frame = "tail"
)

// ReplaceShots swaps the shot list in one transaction. Positions become 1..N
// in slice order, whatever the caller set. ModeFull also clears and rewrites
// the asset tables; ModePartial only adds assets whose names are new.
func (s *Store) ReplaceShots(ctx context.Context, in ReplaceInput) error {
	mode, err := ParseReplaceMode(string(in.Mode))
	if err != nil {
		return err
	}
	for i, shot := range in.Shots {
		if strings.TrimSpace(shot.ShotID) == "" {
			return errors.NewValidationFailure(fmt.Sprintf("shot %d has an empty shot_id", i+1))
		}
	}
	batches := []struct {
		kind   AssetKind
		assets []Asset
	}{
		{KindCharacter, in.Characters},
		{KindScene, in.Scenes},
		{KindProp, in.Props},
	}
	for _, batch := range batches {
		for _, a := range batch.assets {
			if err := validateAsset(a); err != nil {
				return err
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Partial edits resubmit unchanged shots without their image outputs;
	// keep those outputs attached to the surviving shot ids.
	var kept map[string]imageOutputs
	if mode == ModePartial {
		kept, err = s.imageOutputs(ctx, tx)
		if err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM shots"); err != nil {
		return errors.NewInternal(err)
	}

	policy := PolicyKeepExisting
	if mode == ModeFull {
		policy = PolicyOverwrite
		for _, kind := range AssetKinds {
			table, _ := kind.table()
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return errors.NewInternal(err)
			}
		}
	}

	stmt, err := tx.PrepareContext(ctx, s.insertShotSQL())
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	for i, shot := range in.Shots {
		shot.Position = i + 1
		if prev, ok := kept[shot.ShotID]; ok {
			shot = prev.applyTo(shot)
		}
		if _, err := stmt.ExecContext(ctx, s.insertShotArgs(shot)...); err != nil {
			if isConstraintError(err) {
				return errors.NewConstraintViolation(
					fmt.Sprintf("shot %q at position %d rejected", shot.ShotID, shot.Position), err)
			}
			return errors.NewInternal(err)
		}
	}

	for _, batch := range batches {
		table, _ := batch.kind.table()
		for _, a := range batch.assets {
			if _, err := upsertAsset(ctx, tx, table, a, policy); err != nil {
				return err
			}
		}
	}

	if err := s.touch(ctx, tx); err != nil {
		return errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}

	s.logger.Debug("shot list replaced",
		"mode", string(mode),
		"shots", len(in.Shots),
		"characters", len(in.Characters),
		"scenes", len(in.Scenes),
		"props", len(in.Props))
	return nil
}

// insertShotSQL builds the shot INSERT for the columns available in this session.
func (s *Store) insertShotSQL() string {
	cols := s.shotSelectColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO shots (%s) VALUES (%s)", strings.Join(cols, ", "), placeholders)
}

// shotSelectColumns lists required columns plus the optional ones that exist.
func (s *Store) shotSelectColumns() []string {
	cols := make([]string, 0, len(shotColumns))
	for _, col := range shotColumns {
		if col.addDDL != "" && !s.shotCols[col.name] {
			continue
		}
		cols = append(cols, col.name)
	}
	return cols
}

func (s *Store) insertShotArgs(shot Shot) []any {
	args := []any{
		shot.ShotID, shot.Position, shot.Technique, shot.Framing, shot.Duration,
		shot.Dialogue, shot.Description, shot.Notes,
		shot.LeadPrompt, shot.LeadPromptAlt,
		shot.TailPrompt, shot.TailPromptAlt,
		shot.VideoPrompt, shot.VideoPromptAlt,
	}
	if s.shotCols[ColLeadImagePath] {
		args = append(args, toNullString(shot.LeadImagePath))
	}
	if s.shotCols[ColTailImagePath] {
		args = append(args, toNullString(shot.TailImagePath))
	}
	if s.shotCols[ColImageStatus] {
		status := shot.ImageStatus
		if status == "" {
			status = ImageStatusEmpty
		}
		args = append(args, status)
	}
	return args
}

// ListShots returns the shot list ordered by position.
func (s *Store) ListShots(ctx context.Context) ([]Shot, error) {
	rows, err := s.db.QueryContext(ctx, s.selectShotsSQL()+" ORDER BY position, shot_id")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	shots := make([]Shot, 0)
	for rows.Next() {
		shot, err := s.scanShot(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		shots = append(shots, *shot)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return shots, nil
}

// GetShot returns one shot by id.
func (s *Store) GetShot(ctx context.Context, shotID string) (*Shot, error) {
	row := s.db.QueryRowContext(ctx, s.selectShotsSQL()+" WHERE shot_id = ?", shotID)
	shot, err := s.scanShot(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("shot", shotID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return shot, nil
}

// SetShotImage records an image output path for one frame of a shot and
// marks the shot generated.
func (s *Store) SetShotImage(ctx context.Context, shotID string, frame Frame, path string) error {
	var column string
	switch frame {
	case FrameLead:
		column = ColLeadImagePath
	case FrameTail:
		column = ColTailImagePath
	default:
		return errors.NewValidationFailure(fmt.Sprintf("frame must be one of: lead, tail (got %q)", string(frame)))
	}
	if !s.shotCols[column] || !s.shotCols[ColImageStatus] {
		return errors.NewSchemaFailure(tableShots, fmt.Errorf("image output columns unavailable"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE shots SET %s = ?, image_status = ? WHERE shot_id = ?", column),
		path, ImageStatusGenerated, shotID)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("shot", shotID)
	}
	if err := s.touch(ctx, tx); err != nil {
		return errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// selectShotsSQL selects every shot field; absent optional columns read as defaults.
func (s *Store) selectShotsSQL() string {
	optional := func(col, fallback string) string {
		if s.shotCols[col] {
			return col
		}
		return fallback
	}
	return fmt.Sprintf(`
		SELECT shot_id, position,
			COALESCE(technique, ''), COALESCE(framing, ''), COALESCE(duration, 0),
			COALESCE(dialogue, ''), COALESCE(description, ''), COALESCE(notes, ''),
			COALESCE(lead_prompt, ''), COALESCE(lead_prompt_alt, ''),
			COALESCE(tail_prompt, ''), COALESCE(tail_prompt_alt, ''),
			COALESCE(video_prompt, ''), COALESCE(video_prompt_alt, ''),
			%s, %s, COALESCE(%s, 'empty')
		FROM shots`,
		optional(ColLeadImagePath, "NULL"),
		optional(ColTailImagePath, "NULL"),
		optional(ColImageStatus, "NULL"))
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanShot(row rowScanner) (*Shot, error) {
	var (
		shot     Shot
		leadPath sql.NullString
		tailPath sql.NullString
	)
	err := row.Scan(
		&shot.ShotID, &shot.Position,
		&shot.Technique, &shot.Framing, &shot.Duration,
		&shot.Dialogue, &shot.Description, &shot.Notes,
		&shot.LeadPrompt, &shot.LeadPromptAlt,
		&shot.TailPrompt, &shot.TailPromptAlt,
		&shot.VideoPrompt, &shot.VideoPromptAlt,
		&leadPath, &tailPath, &shot.ImageStatus,
	)
	if err != nil {
		return nil, err
	}
	shot.LeadImagePath = fromNullString(leadPath)
	shot.TailImagePath = fromNullString(tailPath)
	return &shot, nil
}

// imageOutputs is the generated-image state of one shot.
type imageOutputs struct {
	lead   *string
	tail   *string
	status string
}

// applyTo fills image fields the incoming shot left unset.
func (o imageOutputs) applyTo(shot Shot) Shot {
	if shot.LeadImagePath == nil {
		shot.LeadImagePath = o.lead
	}
	if shot.TailImagePath == nil {
		shot.TailImagePath = o.tail
	}
	if shot.ImageStatus == "" || shot.ImageStatus == ImageStatusEmpty {
		shot.ImageStatus = o.status
	}
	return shot
}

// imageOutputs collects existing image outputs keyed by shot id.
func (s *Store) imageOutputs(ctx context.Context, q querier) (map[string]imageOutputs, error) {
	if !s.shotCols[ColLeadImagePath] || !s.shotCols[ColTailImagePath] || !s.shotCols[ColImageStatus] {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT shot_id, lead_image_path, tail_image_path, image_status
		FROM shots
		WHERE lead_image_path IS NOT NULL OR tail_image_path IS NOT NULL`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := make(map[string]imageOutputs)
	for rows.Next() {
		var (
			id         string
			lead, tail sql.NullString
			status     sql.NullString
		)
		if err := rows.Scan(&id, &lead, &tail, &status); err != nil {
			return nil, errors.NewInternal(err)
		}
		out[id] = imageOutputs{
			lead:   fromNullString(lead),
			tail:   fromNullString(tail),
			status: status.String,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
