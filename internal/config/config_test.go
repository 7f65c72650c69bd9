package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	infraconfig "github.com/north-cloud/huv-matcher/infrastructure/config"
	"github.com/north-cloud/huv-matcher/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	if cfg.Matching.AcceptanceThreshold != 50 || cfg.Matching.ShortCircuitThreshold != 95 || cfg.Matching.RunnerUps != 3 {
		t.Errorf("Matching = %+v, want 50/95/3", cfg.Matching)
	}
	if cfg.Matching.NarrowByFirstLetter {
		t.Error("first-letter narrowing should default off")
	}
	if cfg.AI.Timeout != 30*time.Second || cfg.AI.MinConfidence != 60 {
		t.Errorf("AI = %+v, want 30s/60", cfg.AI)
	}
	if cfg.Batch.ChunkSize != 10 || cfg.Batch.Concurrency != 10 {
		t.Errorf("Batch = %+v, want 10/10", cfg.Batch)
	}
	if cfg.AI.Provider != config.ProviderOllama || cfg.AI.Endpoint == "" {
		t.Errorf("AI provider = %q endpoint = %q", cfg.AI.Provider, cfg.AI.Endpoint)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
service:
  port: 9001
matching:
  acceptance_threshold: 65
  first_letter_narrowing: true
ai:
  provider: anthropic
  api_key: test-key
  timeout: 5s
  min_confidence: 70
batch:
  chunk_size: 4
reference:
  driver: sqlite3
`)
	t.Setenv("BATCH_CONCURRENCY", "2")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Port != 9001 {
		t.Errorf("Port = %d, want 9001", cfg.Service.Port)
	}
	if cfg.Matching.AcceptanceThreshold != 65 || !cfg.Matching.NarrowByFirstLetter {
		t.Errorf("Matching = %+v", cfg.Matching)
	}
	if cfg.Matching.ShortCircuitThreshold != 95 {
		t.Errorf("ShortCircuitThreshold = %v, want default 95", cfg.Matching.ShortCircuitThreshold)
	}
	if cfg.AI.Timeout != 5*time.Second || cfg.AI.MinConfidence != 70 {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if cfg.AI.Model == "" || cfg.AI.Endpoint != "" {
		t.Errorf("anthropic model = %q endpoint = %q", cfg.AI.Model, cfg.AI.Endpoint)
	}
	if cfg.Batch.ChunkSize != 4 || cfg.Batch.Concurrency != 2 {
		t.Errorf("Batch = %+v, want 4/2", cfg.Batch)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := map[string]func(*config.Config){
		"threshold above 100": func(c *config.Config) { c.Matching.AcceptanceThreshold = 120 },
		"negative short":      func(c *config.Config) { c.Matching.ShortCircuitThreshold = -1 },
		"ai min out of range": func(c *config.Config) { c.AI.MinConfidence = 101 },
		"unknown provider":    func(c *config.Config) { c.AI.Provider = "openai" },
		"anthropic no key":    func(c *config.Config) { c.AI.Provider = config.ProviderAnthropic },
		"memory no dataset":   func(c *config.Config) { c.Reference.Driver = "memory" },
		"negative runner-ups": func(c *config.Config) { c.Matching.RunnerUps = -2 },
		"unknown sched mode":  func(c *config.Config) { c.Scheduler.Mode = "fuzzy" },
		"port out of range":   func(c *config.Config) { c.Service.Port = 70000 },
		"unknown ref driver":  func(c *config.Config) { c.Reference.Driver = "mongo" },
		"short below accept": func(c *config.Config) {
			c.Matching.AcceptanceThreshold = 90
			c.Matching.ShortCircuitThreshold = 80
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(cfg)
			err := cfg.Validate()
			var vErr *infraconfig.ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("Validate() = %v, want ValidationError", err)
			}
		})
	}
}

func TestLoad_InvalidFileFails(t *testing.T) {
	path := writeConfig(t, "matching:\n  acceptance_threshold: 150\n")
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load() error = nil, want validation failure")
	}
}
