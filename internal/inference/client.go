// Package inference talks to the language model that backs the AI matching
// path. Every client reports failures as domain.ErrTimeout or
// domain.ErrTransport so callers can fall back without inspecting transports.
package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/north-cloud/huv-matcher/internal/domain"
)

// Client sends one prompt and returns the raw reply text. Implementations
// must return promptly once ctx is done: callers stop waiting at the
// deadline, and a call that keeps running holds its goroutine until it
// returns.
type Client interface {
	Infer(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, prompt string, timeout time.Duration) (string, error)

// Infer calls f.
func (f ClientFunc) Infer(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	return f(ctx, prompt, timeout)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// classify wraps err with ErrTimeout when the deadline passed or the
// network reported a timeout, and with ErrTransport otherwise.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, domain.ErrTransport) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransport, err)
}
