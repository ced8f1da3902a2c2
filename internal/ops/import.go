package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hpungsan/storyboard/internal/db"
)

// maxImportLine bounds one JSONL line; long chat replies stay well below it.
const maxImportLine = 16 << 20

// ImportProjectInput contains parameters for the ImportProject operation.
type ImportProjectInput struct {
	Path string
	// File is an export file directly inside the exports folder.
	File string
	// Mode is full or partial (default: full). Full also restores the style.
	Mode string
	// IncludeMessages appends the exported conversation to the project's log.
	IncludeMessages bool
}

// ImportProjectOutput contains the result of the ImportProject operation.
type ImportProjectOutput struct {
	Mode       db.ReplaceMode `json:"mode"`
	Shots      int            `json:"shots"`
	Characters int            `json:"characters"`
	Scenes     int            `json:"scenes"`
	Props      int            `json:"props"`
	Messages   int            `json:"messages"`
	Errors     []ImportError  `json:"errors,omitempty"`
}

// ImportError reports a line of the export file that could not be used.
type ImportError struct {
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parsedExport is a parsed export file.
type parsedExport struct {
	header   ExportHeader
	batch    db.ReplaceInput
	messages []db.Message
}

// ImportProject loads an export file into an existing project. The whole
// file is parsed first; any bad line is reported in Errors and nothing is
// changed.
func ImportProject(ctx context.Context, d *Deps, input ImportProjectInput) (*ImportProjectOutput, error) {
	mode := db.ModeFull
	if strings.TrimSpace(input.Mode) != "" {
		var err error
		if mode, err = db.ParseReplaceMode(input.Mode); err != nil {
			return nil, err
		}
	}

	file := d.exportFile(input.File)
	if err := ValidatePath(file, PathCheckRead, []string{d.ExportsDir()}); err != nil {
		return nil, err
	}

	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	f, err := openExportFile(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parsed, parseErrors := parseExportFile(f)
	out := &ImportProjectOutput{Mode: mode}
	if len(parseErrors) > 0 {
		out.Errors = parseErrors
		return out, nil
	}

	parsed.batch.Mode = mode
	if err := store.ReplaceShots(ctx, parsed.batch); err != nil {
		return nil, err
	}
	out.Shots = len(parsed.batch.Shots)
	out.Characters = len(parsed.batch.Characters)
	out.Scenes = len(parsed.batch.Scenes)
	out.Props = len(parsed.batch.Props)

	if mode == db.ModeFull {
		if err := store.SetStyle(ctx, db.Style{
			StylePrompt:   parsed.header.StylePrompt,
			QualityPrompt: parsed.header.QualityPrompt,
		}); err != nil {
			return nil, err
		}
	}
	if input.IncludeMessages {
		if err := store.RestoreMessages(ctx, parsed.messages); err != nil {
			return nil, err
		}
		out.Messages = len(parsed.messages)
	}

	d.logger().Info("project imported", "path", store.Root(), "file", file, "mode", mode,
		"shots", out.Shots, "messages", out.Messages)
	return out, nil
}

// parseExportFile reads a header line followed by records.
func parseExportFile(r io.Reader) (*parsedExport, []ImportError) {
	parsed := &parsedExport{}
	var parseErrors []ImportError
	fail := func(line int, code, format string, args ...any) {
		parseErrors = append(parseErrors, ImportError{Line: line, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0
	sawHeader := false

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		if !sawHeader {
			if err := json.Unmarshal(line, &parsed.header); err != nil || !parsed.header.StoryboardExport {
				fail(lineNum, "INVALID_HEADER", "first line must be a storyboard export header")
				return parsed, parseErrors
			}
			if parsed.header.SchemaVersion != ExportSchemaVersion {
				fail(lineNum, "UNSUPPORTED_VERSION", "unsupported schema version %q", parsed.header.SchemaVersion)
				return parsed, parseErrors
			}
			sawHeader = true
			continue
		}

		var record ExportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			fail(lineNum, "PARSE_ERROR", "invalid JSON: %v", err)
			continue
		}

		switch record.Type {
		case RecordShot:
			if record.Shot == nil {
				fail(lineNum, "INVALID_RECORD", "shot record without shot")
				continue
			}
			parsed.batch.Shots = append(parsed.batch.Shots, *record.Shot)
		case RecordMessage:
			if record.Message == nil {
				fail(lineNum, "INVALID_RECORD", "message record without message")
				continue
			}
			parsed.messages = append(parsed.messages, *record.Message)
		default:
			kind, err := db.ParseAssetKind(record.Type)
			if err != nil {
				fail(lineNum, "INVALID_RECORD", "unknown record type %q", record.Type)
				continue
			}
			if record.Asset == nil {
				fail(lineNum, "INVALID_RECORD", "%s record without asset", kind)
				continue
			}
			switch kind {
			case db.KindCharacter:
				parsed.batch.Characters = append(parsed.batch.Characters, *record.Asset)
			case db.KindScene:
				parsed.batch.Scenes = append(parsed.batch.Scenes, *record.Asset)
			case db.KindProp:
				parsed.batch.Props = append(parsed.batch.Props, *record.Asset)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		fail(lineNum, "READ_ERROR", "failed to read file: %v", err)
	}
	if !sawHeader && len(parseErrors) == 0 {
		fail(lineNum, "INVALID_HEADER", "file is empty")
	}
	return parsed, parseErrors
}
