// Package bootstrap builds the matcher's components from configuration.
package bootstrap

import (
	"fmt"

	infraconfig "github.com/north-cloud/huv-matcher/infrastructure/config"
	infralogger "github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/config"
)

// LoadConfig loads configuration from path, or from CONFIG_PATH and then
// config.yml when path is empty. A missing file yields the defaults.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = infraconfig.GetConfigPath("config.yml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// CreateLogger creates a logger instance from configuration.
func CreateLogger(cfg *config.Config) (infralogger.Logger, error) {
	logCfg := cfg.Logging
	logCfg.Development = logCfg.Development || cfg.Service.Debug

	logger, err := infralogger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger.With(infralogger.String("service", cfg.Service.Name)), nil
}
