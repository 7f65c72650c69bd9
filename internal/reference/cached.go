package reference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/domain"
)

const (
	cacheKeyPrefix  = "huv:candidates:"
	DefaultCacheTTL = time.Hour
)

// CachedProvider caches ListCandidates in Redis under the wrapped
// provider's snapshot version. An entry is written once and never changed;
// a new snapshot version simply uses new keys. Redis failures degrade to
// reading the wrapped provider.
type CachedProvider struct {
	next   Provider
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewCachedProvider wraps next. ttl <= 0 means DefaultCacheTTL.
func NewCachedProvider(next Provider, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedProvider{next: next, client: client, ttl: ttl, logger: logger.OrNop(log)}
}

// GetSourceItem implements Provider without caching.
func (c *CachedProvider) GetSourceItem(ctx context.Context, id string) (*domain.SourceItem, error) {
	return c.next.GetSourceItem(ctx, id)
}

// SnapshotVersion implements Provider.
func (c *CachedProvider) SnapshotVersion(ctx context.Context) (string, error) {
	return c.next.SnapshotVersion(ctx)
}

// ListCandidates implements Provider.
func (c *CachedProvider) ListCandidates(ctx context.Context, filter Filter) ([]domain.CandidateTarget, error) {
	version, err := c.next.SnapshotVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot version: %w", err)
	}
	key, err := cacheKey(version, filter)
	if err != nil {
		return nil, err
	}

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []domain.CandidateTarget
		if unmarshalErr := json.Unmarshal(data, &cached); unmarshalErr == nil {
			return cached, nil
		}
		c.logger.Warn("Discarding unreadable candidate cache entry", logger.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Candidate cache read failed", logger.String("key", key), logger.Error(err))
	}

	candidates, err := c.next.ListCandidates(ctx, filter)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("encode candidates: %w", err)
	}
	if setErr := c.client.SetNX(ctx, key, payload, c.ttl).Err(); setErr != nil {
		c.logger.Warn("Candidate cache write failed", logger.String("key", key), logger.Error(setErr))
	}
	return candidates, nil
}

func cacheKey(version string, filter Filter) (string, error) {
	raw, err := json.Marshal(filter)
	if err != nil {
		return "", fmt.Errorf("encode filter: %w", err)
	}
	sum := sha256.Sum256(raw)
	return cacheKeyPrefix + version + ":" + hex.EncodeToString(sum[:8]), nil
}
