// Package runner executes batch runs: it resolves reference data, runs the
// heuristic engine or the AI service per item through the batch processor,
// then computes statistics and hands the run to the configured sinks.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/aimatch"
	"github.com/north-cloud/huv-matcher/internal/batch"
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/matching"
	"github.com/north-cloud/huv-matcher/internal/reference"
	"github.com/north-cloud/huv-matcher/internal/statistics"
	"github.com/north-cloud/huv-matcher/internal/storage"
)

const tracerName = "github.com/north-cloud/huv-matcher/internal/runner"

var (
	// ErrUnknownMode is returned for a mode other than heuristic or ai.
	ErrUnknownMode = errors.New("unknown batch mode")
	// ErrAIUnavailable is returned for ai runs when no AI service is configured.
	ErrAIUnavailable = errors.New("ai matching is not configured")
)

// Config tunes the runner.
type Config struct {
	ChunkSize   int
	Concurrency int
	// FilterByBranch restricts heuristic candidates to the source's main branch.
	FilterByBranch bool
}

// Observer receives every finished run.
type Observer interface {
	ObserveBatch(run *domain.BatchRun)
}

// Request describes one batch.
type Request struct {
	IDs  []string
	Mode domain.Mode
	// OnProgress is called once per finished item, never concurrently.
	OnProgress func(batch.Progress)
}

// Runner is safe for concurrent use.
type Runner struct {
	provider reference.Provider
	engine   *matching.Engine
	ai       *aimatch.Service
	sink     storage.ResultSink
	observer Observer
	cfg      Config
	logger   logger.Logger
	tracer   trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink persists every completed run.
func WithSink(s storage.ResultSink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithAI enables ai mode.
func WithAI(s *aimatch.Service) Option {
	return func(r *Runner) { r.ai = s }
}

// WithObserver attaches metrics.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// New creates a runner.
func New(provider reference.Provider, engine *matching.Engine, cfg Config, log logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		provider: provider,
		engine:   engine,
		cfg:      cfg,
		logger:   logger.OrNop(log),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AIEnabled reports whether ai mode is available.
func (r *Runner) AIEnabled() bool {
	return r.ai != nil
}

// MatchHeuristic loads sourceID and its candidates and runs the engine.
func (r *Runner) MatchHeuristic(ctx context.Context, sourceID string, opts ...matching.Option) (domain.MatchResult, error) {
	src, err := r.provider.GetSourceItem(ctx, sourceID)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("load source %s: %w", sourceID, err)
	}
	candidates, err := r.provider.ListCandidates(ctx, reference.FilterFor(src, r.cfg.FilterByBranch))
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("load candidates for %s: %w", sourceID, err)
	}
	return r.engine.Match(ctx, src, candidates, opts...)
}

// MatchAI runs the AI state machine for sourceID.
func (r *Runner) MatchAI(ctx context.Context, sourceID string, opts aimatch.Options) (aimatch.Outcome, error) {
	if r.ai == nil {
		return aimatch.Outcome{}, ErrAIUnavailable
	}
	return r.ai.MatchSingle(ctx, sourceID, opts)
}

// Run matches every id in order. Item failures become failed results. When
// ctx ends mid-run the partial run is returned with ctx's error, unstarted
// items are recorded as failed and nothing is persisted.
func (r *Runner) Run(ctx context.Context, req Request) (*domain.BatchRun, error) {
	unit, err := r.unitFor(req.Mode)
	if err != nil {
		return nil, err
	}

	run := &domain.BatchRun{
		ID:        uuid.NewString(),
		Mode:      req.Mode,
		StartedAt: time.Now().UTC(),
	}

	ctx, span := r.tracer.Start(ctx, "runner.Run", trace.WithAttributes(
		attribute.String("batch.id", run.ID),
		attribute.String("batch.mode", string(req.Mode)),
		attribute.Int("batch.size", len(req.IDs)),
	))
	defer span.End()

	log := r.logger.With(logger.String("batch_id", run.ID), logger.String("mode", string(req.Mode)))
	log.Info("Batch run started", logger.Int("items", len(req.IDs)))

	items, procErr := batch.Process(ctx, req.IDs, unit, batch.Options{
		ChunkSize:   r.cfg.ChunkSize,
		Concurrency: r.cfg.Concurrency,
		OnProgress:  req.OnProgress,
	})

	run.Results = make([]domain.MatchResult, len(items))
	for i, item := range items {
		if item.Err != nil {
			if !item.Skipped {
				log.Warn("Batch item failed", logger.SourceID(req.IDs[i]), logger.Error(item.Err))
			}
			run.Results[i] = domain.FailedResult(req.IDs[i], item.Err)
			continue
		}
		run.Results[i] = item.Value
	}
	run.FinishedAt = time.Now().UTC()
	run.Stats = statistics.Compute(run.Results)

	if r.observer != nil {
		r.observer.ObserveBatch(run)
	}

	span.SetAttributes(
		attribute.Int("batch.matched", run.Stats.Matched),
		attribute.Int("batch.failed", run.Stats.Failed),
	)

	if procErr != nil {
		span.SetStatus(codes.Error, procErr.Error())
		log.Warn("Batch run interrupted", logger.Error(procErr), logger.Int("matched", run.Stats.Matched))
		return run, fmt.Errorf("batch %s interrupted: %w", run.ID, procErr)
	}

	r.persist(ctx, run, log)

	log.Info("Batch run finished",
		logger.Int("matched", run.Stats.Matched),
		logger.Int("unmatched", run.Stats.Unmatched),
		logger.Int("failed", run.Stats.Failed),
		logger.Float64("average_confidence", run.Stats.AverageConfidence),
		logger.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	)
	return run, nil
}

func (r *Runner) unitFor(mode domain.Mode) (func(context.Context, string) (domain.MatchResult, error), error) {
	switch mode {
	case domain.ModeHeuristic:
		return func(ctx context.Context, id string) (domain.MatchResult, error) {
			return r.MatchHeuristic(ctx, id)
		}, nil
	case domain.ModeAI:
		if r.ai == nil {
			return nil, ErrAIUnavailable
		}
		return func(ctx context.Context, id string) (domain.MatchResult, error) {
			outcome, err := r.ai.MatchSingle(ctx, id, aimatch.Options{})
			if err != nil {
				return domain.MatchResult{}, err
			}
			return outcome.Result, nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// persist never changes the run; sink failures are logged only.
func (r *Runner) persist(ctx context.Context, run *domain.BatchRun, log logger.Logger) {
	if r.sink == nil {
		return
	}
	if err := r.sink.SaveRun(ctx, run); err != nil {
		log.Error("Failed to persist batch run", logger.Error(err))
	}
}
