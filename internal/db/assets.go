package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/storyboard/internal/errors"
)

// AssetKind names one of the three asset tables.
type AssetKind string

const (
	KindCharacter AssetKind = "character"
	KindScene     AssetKind = "scene"
	KindProp      AssetKind = "prop"
)

// AssetKinds lists every kind in display order.
var AssetKinds = []AssetKind{KindCharacter, KindScene, KindProp}

// table returns the table backing the kind.
func (k AssetKind) table() (string, error) {
	switch k {
	case KindCharacter:
		return tableCharacters, nil
	case KindScene:
		return tableScenes, nil
	case KindProp:
		return tableProps, nil
	default:
		return "", errors.NewValidationFailure(fmt.Sprintf("unknown asset kind %q", string(k)))
	}
}

// ParseAssetKind accepts singular or plural kind names.
func ParseAssetKind(s string) (AssetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "character", "characters":
		return KindCharacter, nil
	case "scene", "scenes":
		return KindScene, nil
	case "prop", "props":
		return KindProp, nil
	default:
		return "", errors.NewValidationFailure(
			fmt.Sprintf("unknown asset kind %q (want character, scene or prop)", s))
	}
}

// UpsertPolicy decides what happens when an asset name already exists.
type UpsertPolicy string

const (
	PolicyOverwrite    UpsertPolicy = "overwrite"     // last writer wins
	PolicyKeepExisting UpsertPolicy = "keep_existing" // existing row is left alone
)

// Asset is a reusable named visual entity. Name is case-sensitive and is the identity.
type Asset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
	PromptAlt   string `json:"prompt_alt"`
	Notes       string `json:"notes"`
}

// UpsertAsset inserts an asset under the given policy and refreshes modified_at.
// It reports whether a row was written.
func (s *Store) UpsertAsset(ctx context.Context, kind AssetKind, a Asset, policy UpsertPolicy) (bool, error) {
	table, err := kind.table()
	if err != nil {
		return false, err
	}
	if err := validateAsset(a); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	written, err := upsertAsset(ctx, tx, table, a, policy)
	if err != nil {
		return false, err
	}
	if written {
		if err := s.touch(ctx, tx); err != nil {
			return false, errors.NewInternal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, errors.NewInternal(err)
	}
	return written, nil
}

func validateAsset(a Asset) error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.NewValidationFailure("asset name must not be empty")
	}
	return nil
}

// upsertAsset writes one asset row using q.
func upsertAsset(ctx context.Context, q querier, table string, a Asset, policy UpsertPolicy) (bool, error) {
	var verb string
	switch policy {
	case PolicyOverwrite:
		verb = "INSERT OR REPLACE"
	case PolicyKeepExisting:
		verb = "INSERT OR IGNORE"
	default:
		return false, errors.NewValidationFailure(fmt.Sprintf("unknown upsert policy %q", string(policy)))
	}

	query := fmt.Sprintf(
		"%s INTO %s (name, description, prompt, prompt_alt, notes) VALUES (?, ?, ?, ?, ?)",
		verb, table)
	result, err := q.ExecContext(ctx, query, a.Name, a.Description, a.Prompt, a.PromptAlt, a.Notes)
	if err != nil {
		if isConstraintError(err) {
			return false, errors.NewConstraintViolation(fmt.Sprintf("asset %q rejected", a.Name), err)
		}
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// ListAssets returns every asset of a kind in insertion order.
func (s *Store) ListAssets(ctx context.Context, kind AssetKind) ([]Asset, error) {
	table, err := kind.table()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT name, COALESCE(description, ''), COALESCE(prompt, ''),
			COALESCE(prompt_alt, ''), COALESCE(notes, '')
		FROM %s
		ORDER BY rowid`, table))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	assets := make([]Asset, 0)
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.Name, &a.Description, &a.Prompt, &a.PromptAlt, &a.Notes); err != nil {
			return nil, errors.NewInternal(err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return assets, nil
}

// GetAsset returns one asset by exact name.
func (s *Store) GetAsset(ctx context.Context, kind AssetKind, name string) (*Asset, error) {
	table, err := kind.table()
	if err != nil {
		return nil, err
	}

	var a Asset
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT name, COALESCE(description, ''), COALESCE(prompt, ''),
			COALESCE(prompt_alt, ''), COALESCE(notes, '')
		FROM %s
		WHERE name = ?`, table), name).
		Scan(&a.Name, &a.Description, &a.Prompt, &a.PromptAlt, &a.Notes)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(string(kind), name)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &a, nil
}

// isConstraintError checks if the error is a SQLite constraint violation.
func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." / "NOT NULL constraint failed: ..."
	return strings.Contains(err.Error(), "constraint failed")
}
