package ops

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/db"
)

// newTestDeps returns deps with an isolated config dir and base folder and a
// clock that advances one second per reading.
func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	var mu sync.Mutex
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Deps{
		ConfigDir: t.TempDir(),
		Env:       config.Env{BaseFolder: t.TempDir()},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Second)
			return now
		},
	}
}

func createTestProject(t *testing.T, d *Deps, name string) string {
	t.Helper()
	out, err := CreateProject(context.Background(), d, CreateProjectInput{Name: name})
	if err != nil {
		t.Fatalf("CreateProject(%q) error = %v", name, err)
	}
	return out.Path
}

func stringPtr(s string) *string {
	return &s
}

func saveConfig(t *testing.T, d *Deps, apis ...config.APIConfig) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.APIs = apis
	if err := config.Save(d.ConfigDir, cfg); err != nil {
		t.Fatalf("config.Save() error = %v", err)
	}
}

type fakeGenerator struct {
	reply    string
	chatErr  error
	imageURL string
	imageErr error

	gotMessage string
	gotHistory []db.Message
	gotAPI     config.APIConfig
	gotPrompt  string
	downloaded map[string]string // url -> path
}

func (f *fakeGenerator) Chat(ctx context.Context, api config.APIConfig, message string, history []db.Message) (string, error) {
	f.gotAPI = api
	f.gotMessage = message
	f.gotHistory = history
	return f.reply, f.chatErr
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, api config.APIConfig, prompt string) (string, error) {
	f.gotAPI = api
	f.gotPrompt = prompt
	return f.imageURL, f.imageErr
}

func (f *fakeGenerator) Download(ctx context.Context, url, path string) error {
	if f.downloaded == nil {
		f.downloaded = make(map[string]string)
	}
	f.downloaded[url] = path
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("PNG"), 0644)
}
