package ops

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/db"
	"github.com/hpungsan/storyboard/internal/errors"
)

// Generator is the external text/image generation collaborator.
type Generator interface {
	Chat(ctx context.Context, api config.APIConfig, message string, history []db.Message) (string, error)
	GenerateImage(ctx context.Context, api config.APIConfig, prompt string) (string, error)
	Download(ctx context.Context, url, path string) error
}

// Deps carries the process-wide collaborators every operation needs.
type Deps struct {
	// ConfigDir holds config.json. Tests point it at t.TempDir().
	ConfigDir string
	Env       config.Env
	Logger    *slog.Logger
	// Now overrides the store clock; nil means time.Now.
	Now       func() time.Time
	Generator Generator
}

func (d *Deps) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Deps) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// ProjectInfo describes an opened project.
type ProjectInfo struct {
	Path string `json:"path"`
	db.Info
}

// projectPath validates and absolutizes a project root argument.
func projectPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.NewInvalidRequest("path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.NewInvalidRequest("invalid path: " + err.Error())
	}
	return abs, nil
}

// openStore opens the store at root, creating it if needed.
func (d *Deps) openStore(root string) (*db.Store, error) {
	opts := []db.Option{db.WithLogger(d.logger())}
	if d != nil && d.Now != nil {
		opts = append(opts, db.WithClock(d.Now))
	}
	return db.Open(root, opts...)
}

// openProject opens an existing project; a folder without a database is NOT_FOUND.
func (d *Deps) openProject(path string) (*db.Store, error) {
	root, err := projectPath(path)
	if err != nil {
		return nil, err
	}
	if !db.IsProject(root) {
		return nil, errors.NewNotFound("project", root)
	}
	return d.openStore(root)
}

func (d *Deps) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(d.ConfigDir)
	if err != nil {
		return nil, errors.NewIOFailure(filepath.Join(d.ConfigDir, config.FileName), err)
	}
	return cfg, nil
}

// rememberProject records root as the last opened project. Failures are logged only.
func (d *Deps) rememberProject(root string) {
	cfg, err := d.loadConfig()
	if err != nil {
		d.logger().Warn("last project not recorded", "error", err)
		return
	}
	if cfg.LastProject == root {
		return
	}
	cfg.LastProject = root
	if err := config.Save(d.ConfigDir, cfg); err != nil {
		d.logger().Warn("last project not recorded", "error", err)
	}
}

// resolveAPI picks an API by id, or the default API of the given type.
func (d *Deps) resolveAPI(id string, t config.APIType) (config.APIConfig, error) {
	cfg, err := d.loadConfig()
	if err != nil {
		return config.APIConfig{}, err
	}
	if id = strings.TrimSpace(id); id != "" {
		api, ok := cfg.FindAPI(id)
		if !ok {
			return config.APIConfig{}, errors.NewNotFound("api", id)
		}
		if api.APIType != t {
			return config.APIConfig{}, errors.NewInvalidRequest(
				"api " + id + " is a " + string(api.APIType) + " API, want " + string(t))
		}
		return *api, nil
	}
	api, ok := cfg.DefaultAPI(t)
	if !ok {
		return config.APIConfig{}, errors.NewInvalidRequest("no " + string(t) + " API configured")
	}
	return *api, nil
}

func (d *Deps) generator() (Generator, error) {
	if d == nil || d.Generator == nil {
		return nil, errors.NewInternal(nil)
	}
	return d.Generator, nil
}
