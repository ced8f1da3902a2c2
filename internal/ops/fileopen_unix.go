//go:build !windows

package ops

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/storyboard/internal/errors"
)

// createExportFile creates (or truncates) an export temp file owned by the
// user. The final path component must not be a symlink; parent directories
// are checked by ValidatePath.
func createExportFile(path string) (*os.File, error) {
	return openNoFollow(path, syscall.O_CREAT|syscall.O_WRONLY|syscall.O_TRUNC, 0600)
}

// openExportFile opens an export file for reading without following a
// symlink in the final path component.
func openExportFile(path string) (*os.File, error) {
	return openNoFollow(path, syscall.O_RDONLY, 0)
}

func openNoFollow(path string, flag int, perm uint32) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, perm)
	switch {
	case err == nil:
		return os.NewFile(uintptr(fd), path), nil
	case stderrors.Is(err, syscall.ELOOP):
		return nil, errors.NewInvalidRequest("export file must not be a symlink: " + path)
	case stderrors.Is(err, syscall.ENOENT):
		return nil, errors.NewNotFound("file", path)
	default:
		return nil, errors.NewIOFailure(path, err)
	}
}
