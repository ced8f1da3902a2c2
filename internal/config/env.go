package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Env holds process-level overrides read from the environment.
type Env struct {
	Home       string `env:"STORYBOARD_HOME"`
	BaseFolder string `env:"STORYBOARD_BASE_FOLDER"`
	LogLevel   string `env:"STORYBOARD_LOG_LEVEL"  envDefault:"info"`
	LogFormat  string `env:"STORYBOARD_LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads overrides from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// NewLogger builds the process logger. Output goes to w (stderr in practice;
// stdout carries JSON results and the MCP protocol).
func (e Env) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(e.LogLevel)}
	if strings.EqualFold(strings.TrimSpace(e.LogFormat), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
