package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hpungsan/storyboard/internal/db"
	"github.com/hpungsan/storyboard/internal/errors"
)

// Export file format: one header line, then one record per line.
const (
	ExportSchemaVersion = "1.0"

	RecordShot    = "shot"
	RecordMessage = "message"
	// Asset records use the asset kind ("character", "scene", "prop") as type.
)

// ExportHeader is the first line of an export file.
type ExportHeader struct {
	StoryboardExport bool    `json:"_storyboard_export"`
	SchemaVersion    string  `json:"schema_version"`
	ExportedAt       int64   `json:"exported_at"`
	Name             string  `json:"name"`
	StylePrompt      *string `json:"style_prompt,omitempty"`
	QualityPrompt    *string `json:"quality_prompt,omitempty"`
}

// ExportRecord is one shot, asset or message line of an export file.
type ExportRecord struct {
	Type    string      `json:"type"`
	Shot    *db.Shot    `json:"shot,omitempty"`
	Asset   *db.Asset   `json:"asset,omitempty"`
	Message *db.Message `json:"message,omitempty"`
}

// ExportProjectInput contains parameters for the ExportProject operation.
type ExportProjectInput struct {
	Path string
	// File is the export file; default: <config dir>/exports/<name>-<timestamp>.jsonl
	File string
}

// ExportProjectOutput contains the result of the ExportProject operation.
type ExportProjectOutput struct {
	File       string `json:"file"`
	Shots      int    `json:"shots"`
	Assets     int    `json:"assets"`
	Messages   int    `json:"messages"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportProject writes the project's shot list, assets, style and
// conversation to a JSONL file in the exports folder. The file is written
// to a temp file and renamed into place, so an existing export survives a
// failed run.
func ExportProject(ctx context.Context, d *Deps, input ExportProjectInput) (*ExportProjectOutput, error) {
	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	info, err := store.Info(ctx)
	if err != nil {
		return nil, err
	}
	style := store.Style(ctx)

	now := d.now()
	exportPath := d.exportFile(input.File)
	if exportPath == "" {
		name := fmt.Sprintf("%s-%s.jsonl", SanitizeForFilename(info.Name), now.UTC().Format("2006-01-02T150405"))
		exportPath = filepath.Join(d.ExportsDir(), name)
	}
	exportPath, err = filepath.Abs(exportPath)
	if err != nil {
		return nil, errors.NewInvalidRequest("invalid file: " + err.Error())
	}
	if err := ValidatePath(exportPath, PathCheckWrite, []string{d.ExportsDir()}); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewIOFailure(filepath.Dir(exportPath), err)
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := createExportFile(tempPath)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	out := &ExportProjectOutput{File: exportPath, ExportedAt: now.Unix()}

	header := ExportHeader{
		StoryboardExport: true,
		SchemaVersion:    ExportSchemaVersion,
		ExportedAt:       out.ExportedAt,
		Name:             info.Name,
		StylePrompt:      style.StylePrompt,
		QualityPrompt:    style.QualityPrompt,
	}
	if err := enc.Encode(header); err != nil {
		return nil, errors.NewIOFailure(tempPath, err)
	}

	shots, err := store.ListShots(ctx)
	if err != nil {
		return nil, err
	}
	for i := range shots {
		if err := enc.Encode(ExportRecord{Type: RecordShot, Shot: &shots[i]}); err != nil {
			return nil, errors.NewIOFailure(tempPath, err)
		}
		out.Shots++
	}

	for _, kind := range db.AssetKinds {
		assets, err := store.ListAssets(ctx, kind)
		if err != nil {
			return nil, err
		}
		for i := range assets {
			if err := enc.Encode(ExportRecord{Type: string(kind), Asset: &assets[i]}); err != nil {
				return nil, errors.NewIOFailure(tempPath, err)
			}
			out.Assets++
		}
	}

	err = store.EachMessage(ctx, func(m db.Message) error {
		if err := ctx.Err(); err != nil {
			return errors.NewInternal(err)
		}
		if err := enc.Encode(ExportRecord{Type: RecordMessage, Message: &m}); err != nil {
			return errors.NewIOFailure(tempPath, err)
		}
		out.Messages++
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := w.Flush(); err != nil {
		return nil, errors.NewIOFailure(tempPath, err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewIOFailure(tempPath, err)
	}
	// Close before rename (required on Windows)
	if err := file.Close(); err != nil {
		return nil, errors.NewIOFailure(tempPath, err)
	}
	file = nil

	// os.Rename would follow a symlink at the destination
	if fi, err := os.Lstat(exportPath); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("export file is a symlink")
	}

	// On Windows, os.Rename fails if the destination exists; the existing
	// file is kept rather than deleted first.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export file already exists; overwriting is not supported on Windows")
			}
		}
		return nil, errors.NewIOFailure(exportPath, err)
	}

	success = true
	d.logger().Info("project exported", "path", store.Root(), "file", exportPath,
		"shots", out.Shots, "assets", out.Assets, "messages", out.Messages)
	return out, nil
}
