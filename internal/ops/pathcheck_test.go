package ops

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hpungsan/storyboard/internal/errors"
)

func TestValidatePath_TraversalRejected(t *testing.T) {
	allowed := []string{t.TempDir()}

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../backup.jsonl"},
		{"deep traversal", "../../etc/backup.jsonl"},
		{"mid-path traversal", "/tmp/../etc/backup.jsonl"},
		{"hidden in path", "/tmp/safe/../../../etc/shadow.jsonl"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, PathCheckWrite, allowed)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_ExtensionRequired(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"backup", "backup.json", "backup.txt"} {
		err := ValidatePath(filepath.Join(dir, name), PathCheckWrite, []string{dir})
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("%s: expected ErrInvalidRequest, got: %v", name, err)
		}
	}
}

func TestValidatePath_DirectoryRestriction(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()

	if err := ValidatePath(filepath.Join(dir, "ok.jsonl"), PathCheckWrite, []string{dir}); err != nil {
		t.Errorf("file in allowed dir: unexpected error %v", err)
	}
	if err := ValidatePath(filepath.Join(other, "no.jsonl"), PathCheckWrite, []string{dir}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("file outside allowed dir: got %v", err)
	}
	if err := ValidatePath(filepath.Join(dir, "sub", "no.jsonl"), PathCheckWrite, []string{dir}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("file in subdirectory: got %v", err)
	}
}

func TestValidatePath_ReadRequiresFile(t *testing.T) {
	dir := t.TempDir()
	err := ValidatePath(filepath.Join(dir, "missing.jsonl"), PathCheckRead, []string{dir})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestValidatePath_SymlinkRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "real.jsonl")
	if err := os.WriteFile(target, []byte("{}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		if err := ValidatePath(link, mode, []string{dir}); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("mode %d: expected ErrInvalidRequest, got: %v", mode, err)
		}
	}
}

func TestValidatePath_SymlinkedAllowedDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	realDir := t.TempDir()
	link := filepath.Join(t.TempDir(), "exports")
	if err := os.Symlink(realDir, link); err != nil {
		t.Fatal(err)
	}

	if err := ValidatePath(filepath.Join(realDir, "ok.jsonl"), PathCheckWrite, []string{link}); err != nil {
		t.Errorf("file in resolved allowed dir: unexpected error %v", err)
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Harbor", "Harbor"},
		{"a/b\\c", "a-b-c"},
		{"../../etc", "etc"},
		{"--x--", "x"},
		{"", "unnamed"},
		{"bell\x07ring", "bellring"},
		{"Caf\u00e9 au lait", "Caf\u00e9 au lait"},
	}
	for _, tt := range tests {
		if got := SanitizeForFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContainsTraversal(t *testing.T) {
	if !containsTraversal("a/../b") {
		t.Error("expected traversal in a/../b")
	}
	if containsTraversal("a/..b/c") {
		t.Error("..b is not a traversal component")
	}
}
