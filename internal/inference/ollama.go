package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaEndpoint = "http://localhost:11434"
	maxErrorBodyBytes = 512
)

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	Endpoint string
	Model    string
	// HTTPClient defaults to a client without its own timeout; Infer's
	// timeout bounds each request.
	HTTPClient *http.Client
}

// OllamaClient calls the /api/generate endpoint with streaming disabled
// and JSON output requested.
type OllamaClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewOllamaClient returns a client for cfg.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("ollama: model is required")
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &OllamaClient{endpoint: endpoint, model: cfg.Model, httpClient: hc}, nil
}

// Infer implements Client.
func (c *OllamaClient) Infer(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Format:  "json",
		Options: generateOptions{Temperature: 0},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", classify(ctx, "ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classify(ctx, "ollama generate", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", classify(ctx, "ollama generate",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", classify(ctx, "ollama decode", err)
	}
	if out.Error != "" {
		return "", classify(ctx, "ollama generate", errors.New(out.Error))
	}
	return out.Response, nil
}

// Health checks that the server answers /api/tags.
func (c *OllamaClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(ctx, "ollama health", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return classify(ctx, "ollama health", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}
