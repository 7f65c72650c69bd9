package domain

import (
	"fmt"
	"math"
	"time"
)

// Method records which path produced a result.
type Method string

const (
	MethodHeuristic  Method = "heuristic"
	MethodAI         Method = "ai"
	MethodAIFallback Method = "ai_fallback"
)

// StrategyAI is the strategy name on results accepted from the model.
const StrategyAI = "AI"

// Confidence bounds.
const (
	MinConfidence = 0.0
	MaxConfidence = 100.0
)

// Reasons used on no-match results.
const (
	ReasonBelowThreshold = "no candidate met threshold"
	ReasonNoCandidates   = "no candidates supplied"
)

// StrategyVote is one strategy's opinion on one candidate. Votes live only
// inside a single match call; they are returned as diagnostics, never stored.
type StrategyVote struct {
	Strategy    string  `json:"strategy"`
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
	Rationale   string  `json:"rationale,omitempty"`
}

// RunnerUp is a ranked alternative kept for audit.
type RunnerUp struct {
	TargetID   string  `json:"target_id"`
	Confidence float64 `json:"confidence"`
	Strategy   string  `json:"strategy"`
	Reason     string  `json:"reason,omitempty"`
}

// MatchResult is the decision for one source item. An empty TargetID means
// no match, in which case Confidence is 0 and Reason explains why.
type MatchResult struct {
	SourceID    string         `json:"source_id"`
	TargetID    string         `json:"target_id,omitempty"`
	Confidence  float64        `json:"confidence"`
	Strategy    string         `json:"strategy"`
	Method      Method         `json:"method"`
	Reason      string         `json:"reason"`
	RunnerUps   []RunnerUp     `json:"runner_ups,omitempty"`
	Diagnostics []StrategyVote `json:"diagnostics,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	Error       string         `json:"error,omitempty"`
	MatchedAt   time.Time      `json:"matched_at"`
}

// Matched reports whether a target was chosen.
func (r *MatchResult) Matched() bool {
	return r.TargetID != ""
}

// Failed reports whether the unit of work errored before producing a decision.
func (r *MatchResult) Failed() bool {
	return r.Error != ""
}

// NoMatch builds a no-match result.
func NoMatch(sourceID, strategy, reason string) MatchResult {
	return MatchResult{
		SourceID:  sourceID,
		Strategy:  strategy,
		Method:    MethodHeuristic,
		Reason:    reason,
		MatchedAt: time.Now().UTC(),
	}
}

// FailedResult records an item whose match call returned an error.
func FailedResult(sourceID string, err error) MatchResult {
	return MatchResult{
		SourceID:  sourceID,
		Reason:    "match failed",
		Error:     err.Error(),
		MatchedAt: time.Now().UTC(),
	}
}

// ClampConfidence forces v into [0,100]. The second return is a warning
// when v had to be changed, "" otherwise.
func ClampConfidence(v float64) (float64, string) {
	switch {
	case math.IsNaN(v):
		return MinConfidence, "confidence NaN replaced with 0"
	case v < MinConfidence:
		return MinConfidence, fmt.Sprintf("confidence %.2f clamped to 0", v)
	case v > MaxConfidence:
		return MaxConfidence, fmt.Sprintf("confidence %.2f clamped to 100", v)
	default:
		return v, ""
	}
}
