package ops

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/hpungsan/storyboard/internal/db"
	"github.com/hpungsan/storyboard/internal/errors"
)

// CreateProjectInput contains parameters for the CreateProject operation.
type CreateProjectInput struct {
	// BaseFolder is the parent folder. Empty means the configured base folder.
	BaseFolder string
	Name       string
}

// CreateProject creates <base>/<name> with an empty project database.
func CreateProject(ctx context.Context, d *Deps, input CreateProjectInput) (*ProjectInfo, error) {
	name, err := ValidateProjectName(input.Name)
	if err != nil {
		return nil, err
	}
	base, err := d.baseFolder(input.BaseFolder)
	if err != nil {
		return nil, err
	}

	exists, err := ProjectNameExists(base, name, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.NewNameAlreadyExists(name)
	}

	root := filepath.Join(base, name)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.NewIOFailure(root, err)
	}
	store, err := d.openStore(root)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := store.SetMeta(ctx, db.MetaName, name); err != nil {
		return nil, err
	}
	info, err := store.Info(ctx)
	if err != nil {
		return nil, err
	}
	d.rememberProject(root)
	d.logger().Info("project created", "path", root)
	return &ProjectInfo{Path: root, Info: *info}, nil
}

// OpenProjectInput contains parameters for the OpenProject operation.
type OpenProjectInput struct {
	Path string
	// SkipRecent leaves the last-project setting untouched.
	SkipRecent bool
}

// OpenProject opens an existing project, running any pending migration, and
// records it as the last project unless SkipRecent is set.
func OpenProject(ctx context.Context, d *Deps, input OpenProjectInput) (*ProjectInfo, error) {
	store, err := d.openProject(input.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	info, err := store.Info(ctx)
	if err != nil {
		return nil, err
	}
	if !input.SkipRecent {
		d.rememberProject(store.Root())
	}
	return &ProjectInfo{Path: store.Root(), Info: *info}, nil
}

// IsValidProject reports whether path holds a project database.
func IsValidProject(path string) bool {
	root, err := projectPath(path)
	if err != nil {
		return false
	}
	return db.IsProject(root)
}

// ListProjectsInput contains parameters for the ListProjects operation.
type ListProjectsInput struct {
	// BaseFolder is the folder to scan. Empty means the configured base folder.
	BaseFolder string
}

// ListProjectsOutput contains the result of the ListProjects operation.
type ListProjectsOutput struct {
	BaseFolder string        `json:"base_folder"`
	Projects   []ProjectInfo `json:"projects"`
}

// ListProjects returns the projects directly under the base folder, most
// recently modified first. A missing base folder yields an empty list and
// projects that cannot be read are skipped. Listing never writes to a project.
func ListProjects(ctx context.Context, d *Deps, input ListProjectsInput) (*ListProjectsOutput, error) {
	base, err := d.baseFolder(input.BaseFolder)
	if err != nil {
		return nil, err
	}
	out := &ListProjectsOutput{BaseFolder: base, Projects: []ProjectInfo{}}

	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, errors.NewIOFailure(base, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		root := filepath.Join(base, entry.Name())
		if !db.IsProject(root) {
			continue
		}
		info, err := db.ReadInfo(ctx, root)
		if err != nil {
			d.logger().Warn("skipping unreadable project", "path", root, "error", err)
			continue
		}
		out.Projects = append(out.Projects, ProjectInfo{Path: root, Info: *info})
	}

	sort.SliceStable(out.Projects, func(i, j int) bool {
		return out.Projects[i].ModifiedAt > out.Projects[j].ModifiedAt
	})
	return out, nil
}

// RenameProjectInput contains parameters for the RenameProject operation.
type RenameProjectInput struct {
	Path    string
	NewName string
}

// RenameProject renames the project folder and its recorded name. The new
// name must not collide with any sibling folder other than the project itself.
func RenameProject(ctx context.Context, d *Deps, input RenameProjectInput) (*ProjectInfo, error) {
	name, err := ValidateProjectName(input.NewName)
	if err != nil {
		return nil, err
	}
	oldRoot, err := projectPath(input.Path)
	if err != nil {
		return nil, err
	}
	if !db.IsProject(oldRoot) {
		return nil, errors.NewNotFound("project", oldRoot)
	}

	parent := filepath.Dir(oldRoot)
	exists, err := ProjectNameExists(parent, name, filepath.Base(oldRoot))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.NewNameAlreadyExists(name)
	}

	newRoot := filepath.Join(parent, name)
	if newRoot != oldRoot {
		if err := os.Rename(oldRoot, newRoot); err != nil {
			return nil, errors.NewIOFailure(oldRoot, err)
		}
	}

	store, err := d.openStore(newRoot)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := store.SetMeta(ctx, db.MetaName, name); err != nil {
		return nil, err
	}
	info, err := store.Info(ctx)
	if err != nil {
		return nil, err
	}

	if cfg, err := d.loadConfig(); err == nil && cfg.LastProject == oldRoot {
		d.rememberProject(newRoot)
	}
	d.logger().Info("project renamed", "from", oldRoot, "to", newRoot)
	return &ProjectInfo{Path: newRoot, Info: *info}, nil
}

// ProjectNameExists reports whether a folder under base already uses name.
// Names compare after NFC normalization and case folding; a sibling whose
// folder name equals exclude is ignored.
func ProjectNameExists(base, name, exclude string) (bool, error) {
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.NewIOFailure(base, err)
	}

	key := nameKey(name)
	for _, entry := range entries {
		if exclude != "" && entry.Name() == exclude {
			continue
		}
		if nameKey(entry.Name()) == key {
			return true, nil
		}
	}
	return false, nil
}

func nameKey(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// ValidateProjectName trims name and rejects names that are not a single
// folder name.
func ValidateProjectName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	switch {
	case name == "":
		return "", errors.NewValidationFailure("project name is required")
	case name == "." || name == "..":
		return "", errors.NewValidationFailure("project name must not be . or ..")
	case strings.ContainsAny(name, `/\`):
		return "", errors.NewValidationFailure("project name must not contain path separators")
	case name == db.DirName:
		return "", errors.NewValidationFailure("project name is reserved: " + name)
	}
	return name, nil
}

// baseFolder resolves an explicit base folder or the configured one.
func (d *Deps) baseFolder(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return filepath.Abs(explicit)
	}
	cfg, err := d.loadConfig()
	if err != nil {
		return "", err
	}
	base, err := cfg.ResolveBaseFolder(d.Env)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return filepath.Abs(base)
}
