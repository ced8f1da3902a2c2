//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/storyboard/internal/errors"
)

// createExportFile creates (or truncates) an export temp file. Windows has no
// O_NOFOLLOW; ValidatePath has already rejected symlinks.
func createExportFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewIOFailure(path, err)
	}
	return f, nil
}

// openExportFile opens an export file for reading.
func openExportFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	switch {
	case err == nil:
		return f, nil
	case os.IsNotExist(err):
		return nil, errors.NewNotFound("file", path)
	default:
		return nil, errors.NewIOFailure(path, err)
	}
}
