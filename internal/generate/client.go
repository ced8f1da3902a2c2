package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/db"
)

const (
	// DefaultChatModel is used when an API has no model configured.
	DefaultChatModel = "gpt-3.5-turbo"
	// DefaultImageModel is used when an image API has no model configured.
	DefaultImageModel = "dall-e-3"
	// MaxHistory caps the conversation entries sent with a chat request.
	MaxHistory = 10
	// DefaultTimeout bounds a single generation request.
	DefaultTimeout = 120 * time.Second

	errorBodyLimit = 4096
)

// ChatMessage is one turn sent to the text model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls OpenAI-compatible text and image endpoints.
type Client struct {
	HTTPClient *http.Client
}

// NewClient returns a client with the default request timeout.
func NewClient() *Client {
	return &Client{HTTPClient: &http.Client{Timeout: DefaultTimeout}}
}

func (c *Client) httpClient() *http.Client {
	if c == nil || c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

// Chat sends message with the system prompt and the most recent history
// entries, returning the model's reply text. The API's own system prompt,
// when set, replaces SystemPrompt.
func (c *Client) Chat(ctx context.Context, api config.APIConfig, message string, history []db.Message) (string, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(api.BaseURL), "/")
	if baseURL == "" {
		return "", fmt.Errorf("api %q has no base_url", api.Name)
	}
	model := strings.TrimSpace(api.Model)
	if model == "" {
		model = DefaultChatModel
	}

	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	system := SystemPrompt
	if custom := strings.TrimSpace(api.SystemPrompt); custom != "" {
		system = custom
	}

	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{Role: db.RoleSystem, Content: system})
	for _, m := range history {
		messages = append(messages, ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, ChatMessage{Role: db.RoleUser, Content: message})

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	err := c.postJSON(ctx, baseURL+"/chat/completions", api.APIKey, map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": 0.7,
	}, &payload)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	if len(payload.Choices) == 0 || strings.TrimSpace(payload.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("chat response is empty")
	}
	return payload.Choices[0].Message.Content, nil
}

// GenerateImage requests one image for prompt and returns its URL.
func (c *Client) GenerateImage(ctx context.Context, api config.APIConfig, prompt string) (string, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(api.BaseURL), "/")
	if baseURL == "" {
		return "", fmt.Errorf("api %q has no base_url", api.Name)
	}
	model := strings.TrimSpace(api.Model)
	if model == "" {
		model = DefaultImageModel
	}

	var payload struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
		URL string `json:"url"`
	}
	err := c.postJSON(ctx, baseURL+"/v1/images/generations", api.APIKey, map[string]any{
		"model":  model,
		"prompt": prompt,
		"n":      1,
		"size":   "1024x1024",
	}, &payload)
	if err != nil {
		return "", fmt.Errorf("image request: %w", err)
	}
	if len(payload.Data) > 0 && payload.Data[0].URL != "" {
		return payload.Data[0].URL, nil
	}
	if payload.URL != "" {
		return payload.URL, nil
	}
	return "", fmt.Errorf("image response has no url")
}

// Download fetches url into path, creating parent directories.
func (c *Client) Download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	res, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer res.Body.Close()
	if err := checkStatus(res); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(f, res.Body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write image file: %w", err)
	}
	return f.Close()
}

func (c *Client) postJSON(ctx context.Context, url, apiKey string, body any, dst any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	res, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := checkStatus(res); err != nil {
		return err
	}
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus turns a 4xx/5xx response into an error carrying the body.
func checkStatus(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, errorBodyLimit))
	if err != nil {
		return fmt.Errorf("status %d (body unreadable: %v)", res.StatusCode, err)
	}
	return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
}
