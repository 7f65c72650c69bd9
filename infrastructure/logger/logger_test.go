package logger_test

import (
	"context"
	"testing"

	"github.com/north-cloud/huv-matcher/infrastructure/logger"
)

func TestFromContext_ReturnsStoredLogger(t *testing.T) {
	t.Parallel()

	l, err := logger.New(logger.Config{Level: "debug", OutputPaths: []string{"stderr"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := logger.WithContext(context.Background(), l)
	if got := logger.FromContext(ctx); got != l {
		t.Errorf("FromContext() returned a different logger")
	}
}

func TestFromContext_FallbackIsUsable(t *testing.T) {
	t.Parallel()

	l := logger.FromContext(context.Background())
	if l == nil {
		t.Fatal("FromContext() on empty context returned nil")
	}
	l.Debug("filtered")
	l.Warn("fallback warning", logger.SourceID("S-1"), logger.Confidence(42))
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	if logger.OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	nop := logger.NewNop()
	if got := logger.OrNop(nop); got != nop {
		t.Error("OrNop() replaced a non-nil logger")
	}
	if err := nop.With(logger.String("k", "v")).Sync(); err != nil {
		t.Errorf("nop Sync() error = %v", err)
	}
}
