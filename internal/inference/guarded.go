package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/north-cloud/huv-matcher/infrastructure/circuitbreaker"
	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/domain"
)

// GuardConfig configures a Guarded client.
type GuardConfig struct {
	// RequestsPerSecond limits outgoing calls. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	Breaker           circuitbreaker.Config
}

// Guarded wraps a Client with a token-bucket limiter and a circuit breaker.
// An open circuit is reported as domain.ErrTransport. Only transport
// failures trip the breaker; timeouts of a slow but reachable model do not.
type Guarded struct {
	next    Client
	limiter *rate.Limiter
	breaker *circuitbreaker.Breaker
	logger  logger.Logger
}

// NewGuarded wraps next.
func NewGuarded(next Client, cfg GuardConfig, log logger.Logger) *Guarded {
	log = logger.OrNop(log)

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	bc := cfg.Breaker
	if bc.IsFailure == nil {
		bc.IsFailure = func(err error) bool { return errors.Is(err, domain.ErrTransport) }
	}
	onChange := bc.OnStateChange
	bc.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("Inference circuit changed state",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
		if onChange != nil {
			onChange(from, to)
		}
	}

	return &Guarded{
		next:    next,
		limiter: limiter,
		breaker: circuitbreaker.New(bc),
		logger:  log,
	}
}

// Infer implements Client. Time spent waiting for the limiter counts
// against timeout.
func (g *Guarded) Infer(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	start := time.Now()
	if g.limiter != nil {
		waitCtx, cancel := withTimeout(ctx, timeout)
		err := g.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return "", classify(ctx, "rate limiter", err)
			}
			return "", fmt.Errorf("rate limiter: %w: %w", domain.ErrTimeout, err)
		}
	}
	if timeout > 0 {
		timeout -= time.Since(start)
		if timeout <= 0 {
			return "", fmt.Errorf("rate limiter: %w", domain.ErrTimeout)
		}
	}

	var reply string
	err := g.breaker.Execute(func() error {
		var inferErr error
		reply, inferErr = g.next.Infer(ctx, prompt, timeout)
		return inferErr
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return "", fmt.Errorf("inference: %w: %w", domain.ErrTransport, err)
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// BreakerState exposes the circuit state for health reporting.
func (g *Guarded) BreakerState() circuitbreaker.State {
	return g.breaker.State()
}
