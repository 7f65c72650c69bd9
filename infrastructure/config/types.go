package config

import (
	"fmt"
	"time"
)

// DatabaseConfig describes a sqlx connection. Driver is "postgres" or "sqlite3".
type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER"   yaml:"driver"`
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	Database        string        `env:"DB_NAME"     yaml:"database"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	Path            string        `env:"DB_PATH"     yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// DSN returns the driver-specific data source name.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite3" {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// SetDefaults fills unset connection values.
func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "postgres"
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Path == "" {
		c.Path = "file:huv.db?cache=shared"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// ElasticsearchConfig describes the results index cluster.
type ElasticsearchConfig struct {
	URL          string `env:"ELASTICSEARCH_URL"   yaml:"url"`
	Username     string `env:"ELASTICSEARCH_USER"  yaml:"username"`
	Password     string `env:"ELASTICSEARCH_PASS"  yaml:"password"`
	ResultsIndex string `env:"ELASTICSEARCH_INDEX" yaml:"results_index"`
	MaxRetries   int    `yaml:"max_retries"`
}

// SetDefaults fills unset cluster values.
func (c *ElasticsearchConfig) SetDefaults() {
	if c.ResultsIndex == "" {
		c.ResultsIndex = "huv_match_results"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// RedisConfig describes the candidate cache connection.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}
