package redis_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/north-cloud/huv-matcher/infrastructure/redis"
)

func TestNewClient_EmptyAddress(t *testing.T) {
	t.Parallel()

	client, err := redis.NewClient(context.Background(), redis.Config{})
	if !errors.Is(err, redis.ErrEmptyAddress) {
		t.Fatalf("NewClient() error = %v, want ErrEmptyAddress", err)
	}
	if client != nil {
		t.Error("NewClient() returned a client for an empty address")
	}
}

func TestNewClient_Pings(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient(context.Background(), redis.Config{Address: mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("k") {
		t.Error("key not written to miniredis")
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := redis.NewClient(context.Background(), redis.Config{Address: addr}); err == nil {
		t.Fatal("NewClient() error = nil for closed server")
	}
}
