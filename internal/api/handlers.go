// Package api exposes the matcher over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/aimatch"
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/matching"
	"github.com/north-cloud/huv-matcher/internal/runner"
	"github.com/north-cloud/huv-matcher/internal/statistics"
)

const maxBatchIDs = 1000

// Handler handles HTTP requests for the matcher API
type Handler struct {
	runner *runner.Runner
	engine *matching.Engine
	logger logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(r *runner.Runner, engine *matching.Engine, log logger.Logger) *Handler {
	return &Handler{
		runner: r,
		engine: engine,
		logger: logger.OrNop(log),
	}
}

// MatchOptions overrides engine defaults for one request.
type MatchOptions struct {
	AcceptanceThreshold   *float64 `json:"acceptance_threshold"`
	ShortCircuitThreshold *float64 `json:"short_circuit_threshold"`
	RunnerUps             *int     `json:"runner_ups"`
	FirstLetterNarrowing  *bool    `json:"first_letter_narrowing"`
}

func (o *MatchOptions) engineOptions() []matching.Option {
	if o == nil {
		return nil
	}
	var opts []matching.Option
	if o.AcceptanceThreshold != nil {
		opts = append(opts, matching.WithAcceptanceThreshold(*o.AcceptanceThreshold))
	}
	if o.ShortCircuitThreshold != nil {
		opts = append(opts, matching.WithShortCircuitThreshold(*o.ShortCircuitThreshold))
	}
	if o.RunnerUps != nil {
		opts = append(opts, matching.WithRunnerUps(*o.RunnerUps))
	}
	if o.FirstLetterNarrowing != nil {
		opts = append(opts, matching.WithFirstLetterNarrowing(*o.FirstLetterNarrowing))
	}
	return opts
}

// MatchRequest is an inline heuristic match.
type MatchRequest struct {
	Source     *domain.SourceItem       `binding:"required" json:"source"`
	Candidates []domain.CandidateTarget `json:"candidates"`
	Options    *MatchOptions            `json:"options"`
}

// AIMatchRequest tunes one AI match. The body is optional.
type AIMatchRequest struct {
	TimeoutMS     int           `json:"timeout_ms"`
	MinConfidence *float64      `json:"min_confidence"`
	Options       *MatchOptions `json:"options"`
}

// AIMatchResponse carries the result and the state machine trail.
type AIMatchResponse struct {
	Result      domain.MatchResult   `json:"result"`
	Path        aimatch.Path         `json:"path"`
	Terminal    aimatch.State        `json:"terminal"`
	Transitions []aimatch.Transition `json:"transitions"`
	Answer      *aimatch.Answer      `json:"answer,omitempty"`
	Cause       string               `json:"cause,omitempty"`
}

// BatchRequest starts a batch run.
type BatchRequest struct {
	IDs  []string    `binding:"required,min=1" json:"ids"`
	Mode domain.Mode `json:"mode"`
}

// StatsRequest carries results to summarise.
type StatsRequest struct {
	Results []domain.MatchResult `json:"results"`
}

// Match handles POST /api/v1/match
func (h *Handler) Match(c *gin.Context) {
	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid match request", logger.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Match(c.Request.Context(), req.Source, req.Candidates, req.Options.engineOptions()...)
	if err != nil {
		h.respondError(c, "Match failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// MatchAI handles POST /api/v1/match/ai/:source_id
func (h *Handler) MatchAI(c *gin.Context) {
	sourceID := c.Param("source_id")

	var req AIMatchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if m := req.MinConfidence; m != nil && (*m < domain.MinConfidence || *m > domain.MaxConfidence) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "min_confidence must be between 0 and 100"})
		return
	}

	opts := aimatch.Options{
		Timeout:       time.Duration(req.TimeoutMS) * time.Millisecond,
		MinConfidence: req.MinConfidence,
		Engine:        req.Options.engineOptions(),
	}

	out, err := h.runner.MatchAI(c.Request.Context(), sourceID, opts)
	if err != nil {
		h.respondError(c, "AI match failed", err)
		return
	}

	resp := AIMatchResponse{
		Result:      out.Result,
		Path:        out.Path,
		Terminal:    out.Terminal,
		Transitions: out.Transitions,
		Answer:      out.Answer,
	}
	if out.Cause != nil {
		resp.Cause = out.Cause.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// RunBatch handles POST /api/v1/batches
func (h *Handler) RunBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.IDs) > maxBatchIDs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many ids"})
		return
	}
	if req.Mode == "" {
		req.Mode = domain.ModeHeuristic
	}

	h.logger.Info("Batch requested", logger.Int("items", len(req.IDs)), logger.String("mode", string(req.Mode)))

	run, err := h.runner.Run(c.Request.Context(), runner.Request{IDs: req.IDs, Mode: req.Mode})
	if err != nil {
		h.respondError(c, "Batch failed", err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// Stats handles POST /api/v1/stats
func (h *Handler) Stats(c *gin.Context) {
	var req StatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stats := statistics.Compute(req.Results)
	c.JSON(http.StatusOK, gin.H{
		"stats":      stats,
		"match_rate": statistics.MatchRate(stats),
	})
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, runner.ErrUnknownMode):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, runner.ErrAIUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(msg, logger.Error(err))
	} else {
		h.logger.Warn(msg, logger.Error(err), logger.Int("status", status))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
