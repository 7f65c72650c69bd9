// Package aimatch matches one source item with the language model and falls
// back to the heuristic engine whenever the model cannot be trusted.
package aimatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/inference"
	"github.com/north-cloud/huv-matcher/internal/matching"
	"github.com/north-cloud/huv-matcher/internal/prompt"
	"github.com/north-cloud/huv-matcher/internal/reference"
)

const tracerName = "github.com/north-cloud/huv-matcher/internal/aimatch"

// Defaults for Config.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMinConfidence = 60.0
	DefaultMaxCandidates = 30
)

// Config holds service-wide defaults.
type Config struct {
	Timeout       time.Duration `yaml:"timeout"`
	MinConfidence float64       `yaml:"min_confidence"`
	// MaxCandidates caps the candidates put in the prompt. Larger sets are
	// shortlisted by heuristic rank.
	MaxCandidates int `yaml:"max_candidates"`
	// FilterByBranch restricts candidates to the source's main branch.
	FilterByBranch bool `yaml:"filter_by_branch"`
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = DefaultMinConfidence
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = DefaultMaxCandidates
	}
}

// Options override Config for one call.
type Options struct {
	// Timeout bounds the inference call. Non-positive keeps the default;
	// the call is never unbounded.
	Timeout time.Duration
	// MinConfidence replaces the default when set, including 0.
	MinConfidence *float64
	// Engine options are passed to the fallback match.
	Engine []matching.Option
}

// Observer receives the terminal state of every call.
type Observer interface {
	ObserveAI(terminal State, elapsed time.Duration)
}

// Service runs the AI matching state machine. It is safe for concurrent use.
type Service struct {
	provider reference.Provider
	client   inference.Client
	engine   *matching.Engine
	builder  *prompt.Builder
	cfg      Config
	logger   logger.Logger
	observer Observer
	tracer   trace.Tracer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithObserver attaches metrics.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// NewService wires the collaborators.
func NewService(
	provider reference.Provider,
	client inference.Client,
	engine *matching.Engine,
	cfg Config,
	log logger.Logger,
	opts ...ServiceOption,
) *Service {
	cfg.setDefaults()
	s := &Service{
		provider: provider,
		client:   client,
		engine:   engine,
		builder:  prompt.NewBuilder(),
		cfg:      cfg,
		logger:   logger.OrNop(log),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MatchSingle matches sourceID. The outcome always carries a result: model
// timeouts, transport failures and unusable replies fall back to the
// heuristic engine. Only lookup failures, invalid reference data and
// cancellation of ctx are returned as errors.
func (s *Service) MatchSingle(ctx context.Context, sourceID string, opts Options) (Outcome, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "aimatch.MatchSingle", trace.WithAttributes(attribute.String("source_id", sourceID)))
	defer span.End()

	timeout := s.cfg.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	minConfidence := s.cfg.MinConfidence
	if opts.MinConfidence != nil {
		minConfidence = *opts.MinConfidence
	}

	m := &machine{}
	m.to(StateBuilding)

	src, candidates, err := s.load(ctx, sourceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, err
	}

	if len(candidates) == 0 {
		m.to(StateRejectedNoCandidates)
		return s.finish(ctx, span, start, m, src, nil, nil, domain.ErrNoCandidate, opts)
	}

	shortlist, err := s.shortlist(ctx, src, candidates, opts)
	if err != nil {
		return Outcome{}, err
	}
	text, err := s.builder.Build(src, shortlist, prompt.Options{MinConfidence: minConfidence})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, err
	}

	m.to(StateRequesting)
	raw, err := s.request(ctx, text, timeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, domain.ErrTimeout) {
			return Outcome{}, ctxErr
		}
		if errors.Is(err, domain.ErrTimeout) {
			m.to(StateRejectedTimeout)
		} else {
			m.to(StateRejectedTransport)
		}
		return s.finish(ctx, span, start, m, src, candidates, nil, err, opts)
	}

	m.to(StateParsingReply)
	answer, err := parseReply(raw, shortlist)
	if err != nil {
		m.to(StateRejectedMalformedReply)
		return s.finish(ctx, span, start, m, src, candidates, nil, err, opts)
	}

	if answer.Confidence < minConfidence {
		m.to(StateRejectedLowConfidence)
		cause := fmt.Errorf("ai confidence %.2f below minimum %.2f", answer.Confidence, minConfidence)
		return s.finish(ctx, span, start, m, src, candidates, answer, cause, opts)
	}

	m.to(StateAccepted)
	return s.finish(ctx, span, start, m, src, candidates, answer, nil, opts)
}

func (s *Service) load(ctx context.Context, sourceID string) (*domain.SourceItem, []domain.CandidateTarget, error) {
	src, err := s.provider.GetSourceItem(ctx, sourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("load source %s: %w", sourceID, err)
	}
	if err := src.Validate(); err != nil {
		return nil, nil, err
	}
	candidates, err := s.provider.ListCandidates(ctx, reference.FilterFor(src, s.cfg.FilterByBranch))
	if err != nil {
		return nil, nil, fmt.Errorf("load candidates for %s: %w", sourceID, err)
	}
	if err := domain.ValidateCandidates(candidates); err != nil {
		return nil, nil, fmt.Errorf("source %s: %w", sourceID, err)
	}
	return src, candidates, nil
}

// shortlist keeps the MaxCandidates best candidates by heuristic rank,
// followed by unranked ones in input order if room remains.
func (s *Service) shortlist(ctx context.Context, src *domain.SourceItem, candidates []domain.CandidateTarget, opts Options) ([]domain.CandidateTarget, error) {
	if len(candidates) <= s.cfg.MaxCandidates {
		return candidates, nil
	}
	ranked, err := s.engine.Rank(ctx, src, candidates, opts.Engine...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CandidateTarget, 0, s.cfg.MaxCandidates)
	picked := make(map[string]struct{}, s.cfg.MaxCandidates)
	for _, r := range ranked {
		if len(out) == s.cfg.MaxCandidates {
			break
		}
		out = append(out, *r.Candidate)
		picked[r.Candidate.ID] = struct{}{}
	}
	for i := range candidates {
		if len(out) == s.cfg.MaxCandidates {
			break
		}
		if _, ok := picked[candidates[i].ID]; !ok {
			out = append(out, candidates[i])
		}
	}
	return out, nil
}

type inferResult struct {
	reply string
	err   error
}

// request returns within timeout even if the client ignores its context.
// Such a client's goroutine outlives the call; see inference.Client.
func (s *Service) request(ctx context.Context, text string, timeout time.Duration) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan inferResult, 1)
	go func() {
		reply, err := s.client.Infer(reqCtx, text, timeout)
		done <- inferResult{reply: reply, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && !errors.Is(r.err, domain.ErrTimeout) && !errors.Is(r.err, domain.ErrTransport) {
			if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: %w", domain.ErrTimeout, r.err)
			}
			return "", fmt.Errorf("%w: %w", domain.ErrTransport, r.err)
		}
		return r.reply, r.err
	case <-reqCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("inference exceeded %s: %w", timeout, domain.ErrTimeout)
	}
}

func (s *Service) finish(
	ctx context.Context,
	span trace.Span,
	start time.Time,
	m *machine,
	src *domain.SourceItem,
	candidates []domain.CandidateTarget,
	answer *Answer,
	cause error,
	opts Options,
) (Outcome, error) {
	out := Outcome{
		Terminal:    m.state,
		Transitions: m.transitions,
		Answer:      answer,
		Cause:       cause,
	}

	if m.state == StateAccepted {
		out.Path = PathAccepted
		out.Result = domain.MatchResult{
			SourceID:   src.ID,
			TargetID:   answer.CandidateID,
			Confidence: answer.Confidence,
			Strategy:   domain.StrategyAI,
			Method:     domain.MethodAI,
			Reason:     answer.Reasoning,
			Warnings:   answer.Warnings,
			MatchedAt:  time.Now().UTC(),
		}
		s.logger.Debug("AI match accepted",
			logger.SourceID(src.ID),
			logger.TargetID(answer.CandidateID),
			logger.Confidence(answer.Confidence),
		)
	} else {
		result, err := s.engine.Match(ctx, src, candidates, opts.Engine...)
		if err != nil {
			span.RecordError(err)
			return Outcome{}, err
		}
		result.Method = domain.MethodAIFallback
		result.Warnings = append(result.Warnings, fmt.Sprintf("ai path %s: %v", m.state, cause))
		if answer != nil {
			result.Warnings = append(result.Warnings, answer.Warnings...)
			result.RunnerUps = append(result.RunnerUps, domain.RunnerUp{
				TargetID:   answer.CandidateID,
				Confidence: answer.Confidence,
				Strategy:   domain.StrategyAI,
				Reason:     answer.Reasoning,
			})
		}
		out.Path = PathFellBackToHeuristic
		out.Result = result
		s.logger.Warn("AI match fell back to heuristic engine",
			logger.SourceID(src.ID),
			logger.String("state", string(m.state)),
			logger.Error(cause),
		)
	}

	span.SetAttributes(
		attribute.String("terminal_state", string(m.state)),
		attribute.String("path", string(out.Path)),
	)
	if s.observer != nil {
		s.observer.ObserveAI(m.state, time.Since(start))
	}
	return out, nil
}
