package matching

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/domain"
)

// EngineName is the strategy recorded on engine-level no-match results.
const EngineName = "MatchingEngine"

// scoreEpsilon treats aggregate scores this close as tied.
const scoreEpsilon = 1e-9

// Observer receives one callback per finished Match call.
type Observer interface {
	ObserveMatch(result *domain.MatchResult, shortCircuited bool, elapsed time.Duration)
}

// Engine runs the strategy pipeline. It holds no per-call state and is safe
// to share between goroutines.
type Engine struct {
	stages   []Stage
	defaults Options
	logger   logger.Logger
	observer Observer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPipeline replaces the default stages.
func WithPipeline(stages []Stage) EngineOption {
	return func(e *Engine) { e.stages = stages }
}

// WithObserver attaches metrics.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// NewEngine returns an engine over DefaultPipeline(DefaultWeights()) unless
// WithPipeline is given.
func NewEngine(defaults Options, log logger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		defaults: defaults,
		logger:   logger.OrNop(log),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.stages == nil {
		e.stages = DefaultPipeline(DefaultWeights())
	}
	return e
}

// Ranked is one candidate's aggregate after all votes.
type Ranked struct {
	Candidate *domain.CandidateTarget
	Score     float64
	// HierarchyMatch is set when HierarchyMatching voted for the candidate.
	HierarchyMatch bool
	// Strategy contributed the most weighted points.
	Strategy string
	Reasons  []string
	index    int
}

type evaluation struct {
	votes        []domain.StrategyVote
	warnings     []string
	shortCircuit *domain.StrategyVote
	ranked       []Ranked
}

// Match returns the decision for src. Only ErrInvalidInput (or a done ctx)
// is returned as an error; an empty candidate set is a no-match.
func (e *Engine) Match(ctx context.Context, src *domain.SourceItem, candidates []domain.CandidateTarget, opts ...Option) (domain.MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.MatchResult{}, err
	}
	if err := src.Validate(); err != nil {
		return domain.MatchResult{}, err
	}
	if err := domain.ValidateCandidates(candidates); err != nil {
		return domain.MatchResult{}, fmt.Errorf("source %s: %w", src.ID, err)
	}

	start := time.Now()
	o := e.defaults.apply(opts)

	if len(candidates) == 0 {
		result := domain.NoMatch(src.ID, EngineName, domain.ReasonNoCandidates)
		e.observe(&result, false, start)
		return result, nil
	}

	ev := e.evaluate(src, candidates, o, true)
	if ev.shortCircuit != nil {
		result := e.shortCircuitResult(src, ev, o)
		e.logger.Debug("Direct code short-circuit",
			logger.SourceID(src.ID),
			logger.TargetID(result.TargetID),
			logger.Confidence(result.Confidence),
		)
		e.observe(&result, true, start)
		return result, nil
	}

	result := e.decide(src, ev, o)
	e.observe(&result, false, start)
	return result, nil
}

// Rank runs the whole pipeline without short-circuiting or thresholds and
// returns every candidate that received a vote, best first.
func (e *Engine) Rank(ctx context.Context, src *domain.SourceItem, candidates []domain.CandidateTarget, opts ...Option) ([]Ranked, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateCandidates(candidates); err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}
	return e.evaluate(src, candidates, e.defaults.apply(opts), false).ranked, nil
}

func (e *Engine) evaluate(src *domain.SourceItem, candidates []domain.CandidateTarget, o Options, allowShortCircuit bool) evaluation {
	var ev evaluation
	weights := make(map[string]float64, len(e.stages))
	input := candidates
	// A short-circuit vote is final, so it must also clear acceptance.
	shortCircuitAt := max(o.ShortCircuitThreshold, o.AcceptanceThreshold)

	for _, stage := range e.stages {
		name := stage.Strategy.Name()
		weights[name] = stage.Strategy.Weight()

		stageVotes := stage.Strategy.Evaluate(src, input)
		for i := range stageVotes {
			score, warn := domain.ClampConfidence(stageVotes[i].Score)
			if warn != "" {
				ev.warnings = append(ev.warnings, fmt.Sprintf("%s vote for %s: %s", name, stageVotes[i].CandidateID, warn))
			}
			stageVotes[i].Score = score
		}
		ev.votes = append(ev.votes, stageVotes...)

		if allowShortCircuit && stage.ShortCircuits {
			if best := strongestVote(stageVotes); best != nil && best.Score >= shortCircuitAt {
				ev.shortCircuit = best
				return ev
			}
		}
		if stage.Narrows && o.NarrowByFirstLetter && len(stageVotes) > 0 {
			input = narrow(candidates, stageVotes)
		}
	}

	ev.ranked = rank(candidates, ev.votes, weights)
	return ev
}

// strongestVote returns the highest vote, the earliest one on ties.
func strongestVote(votes []domain.StrategyVote) *domain.StrategyVote {
	var best *domain.StrategyVote
	for i := range votes {
		if best == nil || votes[i].Score > best.Score+scoreEpsilon {
			best = &votes[i]
		}
	}
	return best
}

func narrow(candidates []domain.CandidateTarget, votes []domain.StrategyVote) []domain.CandidateTarget {
	keep := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		keep[v.CandidateID] = struct{}{}
	}
	out := make([]domain.CandidateTarget, 0, len(keep))
	for i := range candidates {
		if _, ok := keep[candidates[i].ID]; ok {
			out = append(out, candidates[i])
		}
	}
	return out
}

func rank(candidates []domain.CandidateTarget, votes []domain.StrategyVote, weights map[string]float64) []Ranked {
	byID := make(map[string]*Ranked, len(candidates))
	contrib := make(map[string]float64)
	for i := range candidates {
		byID[candidates[i].ID] = &Ranked{Candidate: &candidates[i], index: i}
	}

	for _, v := range votes {
		r, ok := byID[v.CandidateID]
		if !ok {
			continue
		}
		points := weights[v.Strategy] * v.Score
		r.Score += points
		if v.Strategy == NameHierarchyMatching && v.Score > 0 {
			r.HierarchyMatch = true
		}
		if v.Rationale != "" {
			r.Reasons = append(r.Reasons, v.Strategy+": "+v.Rationale)
		}
		key := v.CandidateID + "\x00" + v.Strategy
		contrib[key] += points
		if r.Strategy == "" || contrib[key] > contrib[v.CandidateID+"\x00"+r.Strategy] {
			r.Strategy = v.Strategy
		}
	}

	ranked := make([]Ranked, 0, len(byID))
	for i := range candidates {
		if r := byID[candidates[i].ID]; r.Strategy != "" {
			ranked = append(ranked, *r)
		}
	}
	slices.SortStableFunc(ranked, compareRanked)
	return ranked
}

// compareRanked orders by score, then hierarchy match, then input order.
func compareRanked(a, b Ranked) int {
	if math.Abs(a.Score-b.Score) > scoreEpsilon {
		return cmp.Compare(b.Score, a.Score)
	}
	if a.HierarchyMatch != b.HierarchyMatch {
		if a.HierarchyMatch {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.index, b.index)
}

func (e *Engine) shortCircuitResult(src *domain.SourceItem, ev evaluation, o Options) domain.MatchResult {
	best := ev.shortCircuit
	result := domain.MatchResult{
		SourceID:    src.ID,
		TargetID:    best.CandidateID,
		Confidence:  best.Score,
		Strategy:    best.Strategy,
		Method:      domain.MethodHeuristic,
		Reason:      best.Rationale,
		Diagnostics: ev.votes,
		Warnings:    ev.warnings,
		MatchedAt:   time.Now().UTC(),
	}

	others := make([]domain.StrategyVote, 0, len(ev.votes))
	for _, v := range ev.votes {
		if v.CandidateID != best.CandidateID {
			others = append(others, v)
		}
	}
	slices.SortStableFunc(others, func(a, b domain.StrategyVote) int { return cmp.Compare(b.Score, a.Score) })
	for _, v := range others[:min(len(others), o.RunnerUps)] {
		result.RunnerUps = append(result.RunnerUps, domain.RunnerUp{
			TargetID:   v.CandidateID,
			Confidence: v.Score,
			Strategy:   v.Strategy,
			Reason:     v.Rationale,
		})
	}
	return result
}

func (e *Engine) decide(src *domain.SourceItem, ev evaluation, o Options) domain.MatchResult {
	ranked := ev.ranked
	if len(ranked) == 0 || ranked[0].Score < o.AcceptanceThreshold {
		result := domain.NoMatch(src.ID, EngineName, domain.ReasonBelowThreshold)
		result.Diagnostics = ev.votes
		result.Warnings = ev.warnings
		result.RunnerUps = runnerUps(ranked, o.RunnerUps)
		top := 0.0
		if len(ranked) > 0 {
			top = ranked[0].Score
		}
		e.logger.Debug("No candidate met threshold",
			logger.SourceID(src.ID),
			logger.Float64("top_score", top),
			logger.Float64("threshold", o.AcceptanceThreshold),
		)
		return result
	}

	top := ranked[0]
	confidence, warn := domain.ClampConfidence(top.Score)
	warnings := ev.warnings
	if warn != "" {
		warnings = append(warnings, "aggregate for "+top.Candidate.ID+": "+warn)
	}

	return domain.MatchResult{
		SourceID:    src.ID,
		TargetID:    top.Candidate.ID,
		Confidence:  confidence,
		Strategy:    top.Strategy,
		Method:      domain.MethodHeuristic,
		Reason:      strings.Join(top.Reasons, "; "),
		RunnerUps:   runnerUps(ranked[1:], o.RunnerUps),
		Diagnostics: ev.votes,
		Warnings:    warnings,
		MatchedAt:   time.Now().UTC(),
	}
}

func runnerUps(ranked []Ranked, n int) []domain.RunnerUp {
	n = min(n, len(ranked))
	if n == 0 {
		return nil
	}
	out := make([]domain.RunnerUp, 0, n)
	for _, r := range ranked[:n] {
		conf, _ := domain.ClampConfidence(r.Score)
		out = append(out, domain.RunnerUp{
			TargetID:   r.Candidate.ID,
			Confidence: conf,
			Strategy:   r.Strategy,
			Reason:     strings.Join(r.Reasons, "; "),
		})
	}
	return out
}

func (e *Engine) observe(result *domain.MatchResult, shortCircuited bool, start time.Time) {
	if e.observer != nil {
		e.observer.ObserveMatch(result, shortCircuited, time.Since(start))
	}
}
