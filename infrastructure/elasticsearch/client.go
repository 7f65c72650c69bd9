// Package elasticsearch opens go-elasticsearch clients whose connection is
// verified before use.
package elasticsearch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/north-cloud/huv-matcher/infrastructure/config"
	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/infrastructure/retry"
)

const (
	defaultURL         = "http://localhost:9200"
	defaultPingTimeout = 5 * time.Second
)

// NewClient creates a client for cfg and pings the cluster, retrying with
// retryCfg while the ping fails.
func NewClient(ctx context.Context, cfg config.ElasticsearchConfig, retryCfg retry.Config, log logger.Logger) (*es.Client, error) {
	cfg.SetDefaults()
	log = logger.OrNop(log)

	url := normalizeURL(cfg.URL)
	clientConfig := es.Config{
		Addresses:  []string{url},
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.Username != "" && cfg.Password != "" {
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	esClient, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	log.Info("Verifying Elasticsearch connection", logger.String("url", url))

	retryCfg.IsRetryable = func(error) bool { return true }
	if err := retry.Do(ctx, retryCfg, func() error {
		return Ping(ctx, esClient, defaultPingTimeout)
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}

	log.Info("Elasticsearch connection established", logger.String("url", url))
	return esClient, nil
}

// normalizeURL adds http:// when the scheme is missing.
func normalizeURL(url string) string {
	if url == "" {
		return defaultURL
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "http://" + url
	}
	return url
}

// Ping checks the cluster answers within timeout.
func Ping(ctx context.Context, client *es.Client, timeout time.Duration) error {
	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		body, readErr := io.ReadAll(res.Body)
		errMsg := string(body)
		if readErr != nil {
			errMsg = fmt.Sprintf("error reading response body: %v", readErr)
		}
		return fmt.Errorf("ping returned error [%s]: %s", res.Status(), errMsg)
	}
	return nil
}
