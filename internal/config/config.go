package config

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DirName is the per-user configuration directory under the home directory.
	DirName = ".storyboard"
	// FileName is the configuration document inside the configuration directory.
	FileName = "config.json"
)

// APIType tags what an endpoint generates.
type APIType string

const (
	APIText  APIType = "text"
	APIImage APIType = "image"
	APIVideo APIType = "video"
)

// Valid reports whether t is a known API type.
func (t APIType) Valid() bool {
	switch t {
	case APIText, APIImage, APIVideo:
		return true
	}
	return false
}

// APIConfig is one named generation endpoint.
type APIConfig struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	APIType   APIType `json:"api_type"`
	BaseURL   string  `json:"base_url"`
	APIKey    string  `json:"api_key"`
	Model     string  `json:"model,omitempty"`
	IsDefault bool    `json:"is_default"`
	// SystemPrompt replaces the built-in storyboard prompt for text APIs.
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Config is the global configuration document.
type Config struct {
	// APIs lists configured generation endpoints.
	APIs []APIConfig `json:"apis"`

	// BaseFolder is where projects are created and listed.
	// Empty means ~/Documents/StoryboardProjects.
	BaseFolder string `json:"base_folder,omitempty"`

	// LastProject is the root of the most recently opened project.
	LastProject string `json:"last_project,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// All tools are enabled by default. Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() *Config {
	return &Config{APIs: []APIConfig{}}
}

// DefaultDir returns the configuration directory: $STORYBOARD_HOME if set,
// otherwise ~/.storyboard.
func DefaultDir(env Env) (string, error) {
	if env.Home != "" {
		return env.Home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Load loads configuration from dir/config.json.
// A missing file means no configuration yet and yields DefaultConfig.
// The dir parameter allows tests to use t.TempDir() instead of ~/.storyboard.
func Load(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	if cfg.APIs == nil {
		cfg.APIs = []APIConfig{}
	}
	return cfg, nil
}

// Save replaces dir/config.json with cfg. The document is written to a
// temporary file first and renamed into place.
func Save(dir string, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	_ = os.Chmod(tmpPath, 0600)
	if err := os.Rename(tmpPath, filepath.Join(dir, FileName)); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Normalize trims fields, assigns ids to new APIs and keeps at most one
// default per API type (the last one flagged wins).
func (c *Config) Normalize() error {
	if c.APIs == nil {
		c.APIs = []APIConfig{}
	}
	c.BaseFolder = strings.TrimSpace(c.BaseFolder)
	c.LastProject = strings.TrimSpace(c.LastProject)

	seenIDs := make(map[string]bool)
	defaults := make(map[APIType]int)
	for i := range c.APIs {
		api := &c.APIs[i]
		api.ID = strings.TrimSpace(api.ID)
		api.Name = strings.TrimSpace(api.Name)
		api.BaseURL = strings.TrimRight(strings.TrimSpace(api.BaseURL), "/")
		api.Model = strings.TrimSpace(api.Model)
		api.APIType = APIType(strings.ToLower(strings.TrimSpace(string(api.APIType))))

		if !api.APIType.Valid() {
			return fmt.Errorf("api %q: api_type must be one of: text, image, video (got %q)", api.Name, api.APIType)
		}
		if api.ID == "" {
			api.ID = NewID()
		}
		if seenIDs[api.ID] {
			return fmt.Errorf("api %q: duplicate id %s", api.Name, api.ID)
		}
		seenIDs[api.ID] = true

		if api.IsDefault {
			if prev, ok := defaults[api.APIType]; ok {
				c.APIs[prev].IsDefault = false
			}
			defaults[api.APIType] = i
		}
	}
	return nil
}

// DefaultAPI returns the default API of a type, or the first one of that type
// when none is flagged.
func (c *Config) DefaultAPI(t APIType) (*APIConfig, bool) {
	var first *APIConfig
	for i := range c.APIs {
		api := &c.APIs[i]
		if api.APIType != t {
			continue
		}
		if api.IsDefault {
			return api, true
		}
		if first == nil {
			first = api
		}
	}
	return first, first != nil
}

// FindAPI returns the API with the given id.
func (c *Config) FindAPI(id string) (*APIConfig, bool) {
	for i := range c.APIs {
		if c.APIs[i].ID == id {
			return &c.APIs[i], true
		}
	}
	return nil, false
}

// ResolveBaseFolder returns the projects folder: the environment override,
// then the configured folder, then ~/Documents/StoryboardProjects.
func (c *Config) ResolveBaseFolder(env Env) (string, error) {
	if env.BaseFolder != "" {
		return env.BaseFolder, nil
	}
	if c.BaseFolder != "" {
		return c.BaseFolder, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, "Documents", "StoryboardProjects"), nil
}

// NewID generates a ULID for a configuration entry.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
