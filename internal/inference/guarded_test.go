package inference_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/north-cloud/huv-matcher/infrastructure/circuitbreaker"
	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/inference"
)

func TestGuarded_OpenCircuitIsTransport(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	failing := inference.ClientFunc(func(context.Context, string, time.Duration) (string, error) {
		calls.Add(1)
		return "", fmt.Errorf("dial: %w", domain.ErrTransport)
	})
	g := inference.NewGuarded(failing, inference.GuardConfig{
		Breaker: circuitbreaker.Config{FailureThreshold: 2, Cooldown: time.Hour},
	}, logger.NewNop())

	for range 2 {
		if _, err := g.Infer(context.Background(), "p", time.Second); !errors.Is(err, domain.ErrTransport) {
			t.Fatalf("error = %v, want ErrTransport", err)
		}
	}
	if g.BreakerState() != circuitbreaker.StateOpen {
		t.Fatalf("state = %s, want open", g.BreakerState())
	}

	_, err := g.Infer(context.Background(), "p", time.Second)
	if !errors.Is(err, domain.ErrTransport) || !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("error = %v, want open-circuit transport error", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestGuarded_TimeoutsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	slow := inference.ClientFunc(func(context.Context, string, time.Duration) (string, error) {
		return "", domain.ErrTimeout
	})
	g := inference.NewGuarded(slow, inference.GuardConfig{
		Breaker: circuitbreaker.Config{FailureThreshold: 1},
	}, nil)

	for range 3 {
		if _, err := g.Infer(context.Background(), "p", time.Second); !errors.Is(err, domain.ErrTimeout) {
			t.Fatalf("error = %v, want ErrTimeout", err)
		}
	}
	if g.BreakerState() != circuitbreaker.StateClosed {
		t.Errorf("state = %s, want closed", g.BreakerState())
	}
}

func TestGuarded_RateLimitWaitExceedingTimeout(t *testing.T) {
	t.Parallel()

	ok := inference.ClientFunc(func(context.Context, string, time.Duration) (string, error) {
		return "reply", nil
	})
	g := inference.NewGuarded(ok, inference.GuardConfig{RequestsPerSecond: 0.01, Burst: 1}, nil)

	if reply, err := g.Infer(context.Background(), "p", time.Second); err != nil || reply != "reply" {
		t.Fatalf("first call = %q, %v", reply, err)
	}
	if _, err := g.Infer(context.Background(), "p", 20*time.Millisecond); !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}
