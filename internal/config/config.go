// Package config defines the matcher's configuration file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/north-cloud/huv-matcher/infrastructure/circuitbreaker"
	infraconfig "github.com/north-cloud/huv-matcher/infrastructure/config"
	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/aimatch"
	"github.com/north-cloud/huv-matcher/internal/batch"
	"github.com/north-cloud/huv-matcher/internal/matching"
	"github.com/north-cloud/huv-matcher/internal/reference"
)

// Default configuration values.
const (
	defaultServiceName     = "huv-matcher"
	defaultServiceVersion  = "1.0.0"
	defaultServicePort     = 8095
	defaultAIProvider      = ProviderOllama
	defaultOllamaEndpoint  = "http://localhost:11434"
	defaultOllamaModel     = "llama3.1"
	defaultAnthropicModel  = "claude-3-5-haiku-latest"
	defaultAIRatePerSecond = 2.0
	defaultAIBurst         = 2
	defaultReferenceDriver = "postgres"
	defaultSchedulerCron   = "0 */6 * * *"
	defaultSchedulerLimit  = 200
)

// Inference providers.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration for the matcher.
type Config struct {
	Service       ServiceConfig                   `yaml:"service"`
	Logging       logger.Config                   `yaml:"logging"`
	Matching      matching.Options                `yaml:"matching"`
	AI            AIConfig                        `yaml:"ai"`
	Batch         BatchConfig                     `yaml:"batch"`
	Reference     ReferenceConfig                 `yaml:"reference"`
	Database      infraconfig.DatabaseConfig      `yaml:"database"`
	Redis         infraconfig.RedisConfig         `yaml:"redis"`
	Elasticsearch infraconfig.ElasticsearchConfig `yaml:"elasticsearch"`
	Auth          AuthConfig                      `yaml:"auth"`
	Scheduler     SchedulerConfig                 `yaml:"scheduler"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"HUV_PORT"  yaml:"port"`
	Debug   bool   `env:"APP_DEBUG" yaml:"debug"`
}

// AIConfig selects and tunes the inference client.
type AIConfig struct {
	Provider string `env:"AI_PROVIDER" yaml:"provider"`
	Endpoint string `env:"AI_ENDPOINT" yaml:"endpoint"`
	Model    string `env:"AI_MODEL"    yaml:"model"`
	APIKey   string `env:"AI_API_KEY"  yaml:"api_key"`

	// Matching defaults for the state machine.
	aimatch.Config `yaml:",inline"`

	RateLimit float64               `yaml:"rate_limit"`
	Burst     int                   `yaml:"burst"`
	Breaker   circuitbreaker.Config `yaml:"breaker"`
}

// BatchConfig tunes the batch processor. Zero concurrency means chunk size.
type BatchConfig struct {
	ChunkSize   int `env:"BATCH_CHUNK_SIZE"  yaml:"chunk_size"`
	Concurrency int `env:"BATCH_CONCURRENCY" yaml:"concurrency"`
}

// ReferenceConfig selects where source items and candidates come from.
// Driver "memory" reads DatasetPath; other drivers use the database section.
type ReferenceConfig struct {
	Driver      string        `env:"REFERENCE_DRIVER"  yaml:"driver"`
	DatasetPath string        `env:"REFERENCE_DATASET" yaml:"dataset_path"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	// CacheEnabled wraps the provider with the Redis candidate cache.
	CacheEnabled bool `env:"REFERENCE_CACHE" yaml:"cache_enabled"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// SchedulerConfig controls the periodic re-run of unmatched items.
type SchedulerConfig struct {
	Enabled bool   `env:"SCHEDULER_ENABLED" yaml:"enabled"`
	Spec    string `env:"SCHEDULER_CRON"    yaml:"spec"`
	Limit   int    `yaml:"limit"`
	// Mode is heuristic or ai.
	Mode string `yaml:"mode"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	cfg, err := infraconfig.LoadWithDefaults[Config](path, setDefaults)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	cfg.Logging.SetDefaults()
	setMatchingDefaults(&cfg.Matching)
	setAIDefaults(&cfg.AI)
	setBatchDefaults(&cfg.Batch)
	setReferenceDefaults(&cfg.Reference)
	cfg.Database.SetDefaults()
	cfg.Elasticsearch.SetDefaults()
	setSchedulerDefaults(&cfg.Scheduler)
	// Auth and Redis have no defaults; empty disables them.
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
}

func setMatchingDefaults(m *matching.Options) {
	def := matching.DefaultOptions()
	if m.AcceptanceThreshold == 0 {
		m.AcceptanceThreshold = def.AcceptanceThreshold
	}
	if m.ShortCircuitThreshold == 0 {
		m.ShortCircuitThreshold = def.ShortCircuitThreshold
	}
	if m.RunnerUps == 0 {
		m.RunnerUps = def.RunnerUps
	}
}

func setAIDefaults(a *AIConfig) {
	if a.Provider == "" {
		a.Provider = defaultAIProvider
	}
	if a.Provider == ProviderOllama && a.Endpoint == "" {
		a.Endpoint = defaultOllamaEndpoint
	}
	if a.Model == "" {
		a.Model = defaultOllamaModel
		if a.Provider == ProviderAnthropic {
			a.Model = defaultAnthropicModel
		}
	}
	if a.Timeout == 0 {
		a.Timeout = aimatch.DefaultTimeout
	}
	if a.MinConfidence == 0 {
		a.MinConfidence = aimatch.DefaultMinConfidence
	}
	if a.MaxCandidates == 0 {
		a.MaxCandidates = aimatch.DefaultMaxCandidates
	}
	if a.RateLimit == 0 {
		a.RateLimit = defaultAIRatePerSecond
	}
	if a.Burst == 0 {
		a.Burst = defaultAIBurst
	}
}

func setBatchDefaults(b *BatchConfig) {
	if b.ChunkSize == 0 {
		b.ChunkSize = batch.DefaultChunkSize
	}
	if b.Concurrency == 0 {
		b.Concurrency = b.ChunkSize
	}
}

func setReferenceDefaults(r *ReferenceConfig) {
	if r.Driver == "" {
		r.Driver = defaultReferenceDriver
	}
	if r.CacheTTL == 0 {
		r.CacheTTL = reference.DefaultCacheTTL
	}
}

func setSchedulerDefaults(s *SchedulerConfig) {
	if s.Spec == "" {
		s.Spec = defaultSchedulerCron
	}
	if s.Limit == 0 {
		s.Limit = defaultSchedulerLimit
	}
	if s.Mode == "" {
		s.Mode = "heuristic"
	}
}

// Validate rejects values the matcher cannot run with.
func (c *Config) Validate() error {
	errs := []error{
		infraconfig.ValidatePort("service.port", c.Service.Port),
		infraconfig.ValidateRange("matching.acceptance_threshold", c.Matching.AcceptanceThreshold, 0, 100),
		infraconfig.ValidateRange("matching.short_circuit_threshold", c.Matching.ShortCircuitThreshold, 0, 100),
		infraconfig.ValidateRange("ai.min_confidence", c.AI.MinConfidence, 0, 100),
		infraconfig.ValidateOneOf("ai.provider", c.AI.Provider, ProviderOllama, ProviderAnthropic),
		infraconfig.ValidateOneOf("reference.driver", c.Reference.Driver, "postgres", "sqlite3", "memory"),
		infraconfig.ValidateOneOf("scheduler.mode", c.Scheduler.Mode, "heuristic", "ai"),
	}
	if c.Matching.ShortCircuitThreshold < c.Matching.AcceptanceThreshold {
		errs = append(errs, &infraconfig.ValidationError{
			Field:   "matching.short_circuit_threshold",
			Message: "must not be below matching.acceptance_threshold",
		})
	}
	if c.Matching.RunnerUps < 0 {
		errs = append(errs, &infraconfig.ValidationError{Field: "matching.runner_ups", Message: "must not be negative"})
	}
	if c.Batch.ChunkSize < 1 {
		errs = append(errs, &infraconfig.ValidationError{Field: "batch.chunk_size", Message: "must be at least 1"})
	}
	if c.AI.Provider == ProviderAnthropic {
		errs = append(errs, infraconfig.ValidateRequired("ai.api_key", c.AI.APIKey))
	}
	if c.Reference.Driver == "memory" {
		errs = append(errs, infraconfig.ValidateRequired("reference.dataset_path", c.Reference.DatasetPath))
	}
	return errors.Join(errs...)
}
