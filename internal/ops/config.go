package ops

import (
	"path/filepath"
	"strings"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/errors"
)

const redactedPrefix = "****"

// GetConfigInput contains parameters for the GetConfig operation.
type GetConfigInput struct {
	// ShowSecrets returns API keys in full instead of redacted.
	ShowSecrets bool
}

// GetConfig returns the global configuration.
func GetConfig(d *Deps, input GetConfigInput) (*config.Config, error) {
	cfg, err := d.loadConfig()
	if err != nil {
		return nil, err
	}
	if !input.ShowSecrets {
		redact(cfg)
	}
	return cfg, nil
}

// SaveConfigInput contains parameters for the SaveConfig operation.
type SaveConfigInput struct {
	Config *config.Config
}

// SaveConfig replaces the global configuration document. An API key equal to
// the redacted form of the stored key for the same id keeps the stored key,
// so a document read with GetConfig can be edited and saved back. An empty
// last_project keeps the stored one.
func SaveConfig(d *Deps, input SaveConfigInput) (*config.Config, error) {
	if input.Config == nil {
		return nil, errors.NewInvalidRequest("config is required")
	}
	current, err := d.loadConfig()
	if err != nil {
		return nil, err
	}

	cfg := *input.Config
	cfg.APIs = append([]config.APIConfig(nil), input.Config.APIs...)
	if strings.TrimSpace(cfg.LastProject) == "" {
		cfg.LastProject = current.LastProject
	}
	for i := range cfg.APIs {
		api := &cfg.APIs[i]
		if prev, ok := current.FindAPI(api.ID); ok && api.APIKey == RedactKey(prev.APIKey) {
			api.APIKey = prev.APIKey
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, errors.NewValidationFailure(err.Error())
	}
	if err := config.Save(d.ConfigDir, &cfg); err != nil {
		return nil, errors.NewIOFailure(filepath.Join(d.ConfigDir, config.FileName), err)
	}
	d.logger().Info("config saved", "apis", len(cfg.APIs))

	redact(&cfg)
	return &cfg, nil
}

// RedactKey masks all but the last four characters of an API key.
func RedactKey(key string) string {
	if key == "" {
		return ""
	}
	r := []rune(key)
	if len(r) <= 4 {
		return redactedPrefix
	}
	return redactedPrefix + string(r[len(r)-4:])
}

func redact(cfg *config.Config) {
	for i := range cfg.APIs {
		cfg.APIs[i].APIKey = RedactKey(cfg.APIs[i].APIKey)
	}
}
