package reference_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/reference"
)

// countingProvider counts ListCandidates calls and serves a settable version.
type countingProvider struct {
	reference.Provider
	lists   atomic.Int32
	version atomic.Value
}

func (c *countingProvider) ListCandidates(ctx context.Context, f reference.Filter) ([]domain.CandidateTarget, error) {
	c.lists.Add(1)
	return c.Provider.ListCandidates(ctx, f)
}

func (c *countingProvider) SnapshotVersion(context.Context) (string, error) {
	return c.version.Load().(string), nil
}

func newCached(t *testing.T) (*reference.CachedProvider, *countingProvider, *miniredis.Miniredis) {
	t.Helper()
	sources, candidates := fixture()
	mem, err := reference.NewMemoryProvider(sources, candidates)
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	counting := &countingProvider{Provider: mem}
	counting.version.Store("v1")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return reference.NewCachedProvider(counting, client, time.Minute, logger.NewNop()), counting, mr
}

func TestCachedProvider_HitsCacheForSameSnapshot(t *testing.T) {
	t.Parallel()

	cached, counting, mr := newCached(t)
	ctx := context.Background()

	first, err := cached.ListCandidates(ctx, reference.Filter{})
	if err != nil {
		t.Fatalf("ListCandidates() error = %v", err)
	}
	second, err := cached.ListCandidates(ctx, reference.Filter{})
	if err != nil {
		t.Fatalf("ListCandidates() error = %v", err)
	}
	if counting.lists.Load() != 1 {
		t.Errorf("underlying calls = %d, want 1", counting.lists.Load())
	}
	if len(first) != 3 || len(second) != 3 || second[1].Tags[0] != domain.TagRadiology {
		t.Errorf("cached candidates = %+v", second)
	}
	if keys := mr.Keys(); len(keys) != 1 || mr.TTL(keys[0]) != time.Minute {
		t.Errorf("keys = %v", keys)
	}

	if _, err := cached.ListCandidates(ctx, reference.Filter{MainBranch: "Cerrahi"}); err != nil {
		t.Fatalf("ListCandidates() error = %v", err)
	}
	if counting.lists.Load() != 2 {
		t.Errorf("different filter should miss, calls = %d", counting.lists.Load())
	}
}

func TestCachedProvider_NewSnapshotUsesNewKeys(t *testing.T) {
	t.Parallel()

	cached, counting, mr := newCached(t)
	ctx := context.Background()

	if _, err := cached.ListCandidates(ctx, reference.Filter{}); err != nil {
		t.Fatal(err)
	}
	counting.version.Store("v2")
	if _, err := cached.ListCandidates(ctx, reference.Filter{}); err != nil {
		t.Fatal(err)
	}
	if counting.lists.Load() != 2 {
		t.Errorf("underlying calls = %d, want 2", counting.lists.Load())
	}
	if len(mr.Keys()) != 2 {
		t.Errorf("keys = %v", mr.Keys())
	}
}

func TestCachedProvider_RedisDownFallsThrough(t *testing.T) {
	t.Parallel()

	cached, counting, mr := newCached(t)
	mr.Close()

	got, err := cached.ListCandidates(context.Background(), reference.Filter{})
	if err != nil {
		t.Fatalf("ListCandidates() error = %v", err)
	}
	if len(got) != 3 || counting.lists.Load() != 1 {
		t.Errorf("got %d candidates, %d calls", len(got), counting.lists.Load())
	}
}
