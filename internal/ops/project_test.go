package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/db"
	"github.com/hpungsan/storyboard/internal/errors"
)

func TestCreateProject(t *testing.T) {
	d := newTestDeps(t)

	out, err := CreateProject(context.Background(), d, CreateProjectInput{Name: "  Harbor Night  "})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if out.Path != filepath.Join(d.Env.BaseFolder, "Harbor Night") {
		t.Errorf("Path = %q", out.Path)
	}
	if out.Name != "Harbor Night" {
		t.Errorf("Name = %q", out.Name)
	}
	if out.ShotCount != 0 || out.MessageCount != 0 {
		t.Errorf("counts = %d/%d, want 0/0", out.ShotCount, out.MessageCount)
	}
	if !db.IsProject(out.Path) {
		t.Error("project database not created")
	}

	cfg, err := config.Load(d.ConfigDir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LastProject != out.Path {
		t.Errorf("LastProject = %q, want %q", cfg.LastProject, out.Path)
	}
}

func TestCreateProject_NameCollision(t *testing.T) {
	d := newTestDeps(t)
	createTestProject(t, d, "Harbor")

	for _, name := range []string{"Harbor", "harbor", "HARBOR"} {
		_, err := CreateProject(context.Background(), d, CreateProjectInput{Name: name})
		if !errors.Is(err, errors.ErrValidationFailure) {
			t.Errorf("CreateProject(%q) error = %v, want VALIDATION_FAILURE", name, err)
		}
	}
}

func TestCreateProject_InvalidName(t *testing.T) {
	d := newTestDeps(t)
	for _, name := range []string{"", "   ", ".", "..", "a/b", `a\b`, db.DirName} {
		_, err := CreateProject(context.Background(), d, CreateProjectInput{Name: name})
		if !errors.Is(err, errors.ErrValidationFailure) {
			t.Errorf("CreateProject(%q) error = %v, want VALIDATION_FAILURE", name, err)
		}
	}
}

func TestOpenProject(t *testing.T) {
	d := newTestDeps(t)
	path := createTestProject(t, d, "Opened")

	out, err := OpenProject(context.Background(), d, OpenProjectInput{Path: path})
	if err != nil {
		t.Fatalf("OpenProject() error = %v", err)
	}
	if out.Path != path || out.Name != "Opened" {
		t.Errorf("OpenProject() = %+v", out)
	}
	if out.CreatedAt == 0 || out.ModifiedAt < out.CreatedAt {
		t.Errorf("timestamps = %d/%d", out.CreatedAt, out.ModifiedAt)
	}
}

func TestOpenProject_NotAProject(t *testing.T) {
	d := newTestDeps(t)
	plain := t.TempDir()

	_, err := OpenProject(context.Background(), d, OpenProjectInput{Path: plain})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("OpenProject() error = %v, want NOT_FOUND", err)
	}
	if _, statErr := os.Stat(db.Dir(plain)); !os.IsNotExist(statErr) {
		t.Error("opening a plain folder must not create a database")
	}

	_, err = OpenProject(context.Background(), d, OpenProjectInput{Path: " "})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("OpenProject(blank) error = %v, want INVALID_REQUEST", err)
	}
}

func TestIsValidProject(t *testing.T) {
	d := newTestDeps(t)
	path := createTestProject(t, d, "Valid")

	if !IsValidProject(path) {
		t.Error("IsValidProject(project) = false")
	}
	if IsValidProject(t.TempDir()) {
		t.Error("IsValidProject(plain folder) = true")
	}
	if IsValidProject("") {
		t.Error("IsValidProject(\"\") = true")
	}
}

func TestListProjects(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	first := createTestProject(t, d, "First")
	second := createTestProject(t, d, "Second")

	// Plain folders and files are ignored
	if err := os.Mkdir(filepath.Join(d.Env.BaseFolder, "notes"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(d.Env.BaseFolder, "readme.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	// Touch First so it becomes the most recently modified
	if _, err := AppendMessage(ctx, d, AppendMessageInput{Path: first, Role: "user", Content: "hi"}); err != nil {
		t.Fatal(err)
	}

	out, err := ListProjects(ctx, d, ListProjectsInput{})
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(out.Projects) != 2 {
		t.Fatalf("len(Projects) = %d, want 2", len(out.Projects))
	}
	if out.Projects[0].Path != first || out.Projects[1].Path != second {
		t.Errorf("order = %s, %s; want First then Second", out.Projects[0].Path, out.Projects[1].Path)
	}
	if out.Projects[0].MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1", out.Projects[0].MessageCount)
	}
}

func TestListProjects_DoesNotWriteToProjects(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	path := createTestProject(t, d, "Harbor")

	marker := filepath.Join(db.Dir(path), ".gitignore")
	if err := os.Remove(marker); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(db.Path(path))
	if err != nil {
		t.Fatal(err)
	}

	out, err := ListProjects(ctx, d, ListProjectsInput{})
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(out.Projects) != 1 || out.Projects[0].Name != "Harbor" {
		t.Fatalf("Projects = %+v", out.Projects)
	}

	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Errorf("listing recreated .gitignore (err = %v)", err)
	}
	after, err := os.Stat(db.Path(path))
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
		t.Error("listing modified the project database")
	}
}

func TestListProjects_MissingBaseFolder(t *testing.T) {
	d := newTestDeps(t)

	out, err := ListProjects(context.Background(), d, ListProjectsInput{
		BaseFolder: filepath.Join(t.TempDir(), "missing"),
	})
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if out.Projects == nil || len(out.Projects) != 0 {
		t.Errorf("Projects = %v, want empty non-nil", out.Projects)
	}
}

func TestRenameProject(t *testing.T) {
	d := newTestDeps(t)
	path := createTestProject(t, d, "Draft")

	out, err := RenameProject(context.Background(), d, RenameProjectInput{Path: path, NewName: "Final Cut"})
	if err != nil {
		t.Fatalf("RenameProject() error = %v", err)
	}
	want := filepath.Join(d.Env.BaseFolder, "Final Cut")
	if out.Path != want || out.Name != "Final Cut" {
		t.Errorf("RenameProject() = %+v, want path %q", out, want)
	}
	if IsValidProject(path) {
		t.Error("old folder still a project")
	}
	if !IsValidProject(want) {
		t.Error("renamed folder is not a project")
	}

	cfg, err := config.Load(d.ConfigDir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LastProject != want {
		t.Errorf("LastProject = %q, want %q", cfg.LastProject, want)
	}
}

func TestRenameProject_CollidesWithSibling(t *testing.T) {
	d := newTestDeps(t)
	a := createTestProject(t, d, "A")
	createTestProject(t, d, "B")

	for _, name := range []string{"B", "b"} {
		_, err := RenameProject(context.Background(), d, RenameProjectInput{Path: a, NewName: name})
		if !errors.Is(err, errors.ErrValidationFailure) {
			t.Errorf("RenameProject(A -> %q) error = %v, want VALIDATION_FAILURE", name, err)
		}
	}
	if !IsValidProject(a) {
		t.Error("failed rename moved the project")
	}
}

func TestRenameProject_ExcludesItself(t *testing.T) {
	d := newTestDeps(t)
	a := createTestProject(t, d, "A")

	// Renaming to its own name succeeds
	out, err := RenameProject(context.Background(), d, RenameProjectInput{Path: a, NewName: "A"})
	if err != nil {
		t.Fatalf("RenameProject(A -> A) error = %v", err)
	}
	if out.Path != a {
		t.Errorf("Path = %q, want %q", out.Path, a)
	}

	// A case-only change of its own name also succeeds
	out, err = RenameProject(context.Background(), d, RenameProjectInput{Path: a, NewName: "a"})
	if err != nil {
		t.Fatalf("RenameProject(A -> a) error = %v", err)
	}
	if out.Name != "a" {
		t.Errorf("Name = %q, want a", out.Name)
	}
}

func TestRenameProject_NotFound(t *testing.T) {
	d := newTestDeps(t)

	_, err := RenameProject(context.Background(), d, RenameProjectInput{Path: t.TempDir(), NewName: "X"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("RenameProject() error = %v, want NOT_FOUND", err)
	}
}

func TestProjectNameExists(t *testing.T) {
	base := t.TempDir()
	// "Café" with a precomposed é
	if err := os.Mkdir(filepath.Join(base, "Café"), 0755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		exclude string
		want    bool
	}{
		{"Café", "", true},
		{"Cafe\u0301", "", true}, // decomposed form
		{"CAFÉ", "", true},
		{"café", "Café", false},
		{"Cafe", "", false},
	}
	for _, tt := range tests {
		got, err := ProjectNameExists(base, tt.name, tt.exclude)
		if err != nil {
			t.Fatalf("ProjectNameExists(%q) error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("ProjectNameExists(%q, exclude %q) = %v, want %v", tt.name, tt.exclude, got, tt.want)
		}
	}

	got, err := ProjectNameExists(filepath.Join(base, "missing"), "x", "")
	if err != nil || got {
		t.Errorf("ProjectNameExists(missing base) = %v, %v", got, err)
	}
}
