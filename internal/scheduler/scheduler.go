// Package scheduler periodically re-runs matching for source items whose
// latest stored result has no target.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/runner"
)

// ErrAlreadyRunning is returned by RunOnce while a previous run is active.
var ErrAlreadyRunning = errors.New("unmatched re-run already in progress")

// UnmatchedLister lists source ids without a target.
type UnmatchedLister interface {
	ListUnmatchedSourceIDs(ctx context.Context, limit int) ([]string, error)
}

// BatchRunner runs a batch.
type BatchRunner interface {
	Run(ctx context.Context, req runner.Request) (*domain.BatchRun, error)
}

// Config controls the schedule.
type Config struct {
	// Spec is a standard five-field cron expression.
	Spec  string
	Limit int
	Mode  domain.Mode
}

// Scheduler owns a cron instance with a single entry.
type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	lister  UnmatchedLister
	runner  BatchRunner
	cfg     Config
	logger  logger.Logger
	running atomic.Bool

	mu      sync.Mutex
	entryID cron.EntryID
	cancel  context.CancelFunc
}

// New validates cfg.Spec and returns a stopped scheduler.
func New(lister UnmatchedLister, r BatchRunner, cfg Config, log logger.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", cfg.Spec, err)
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeHeuristic
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", runner.ErrUnknownMode, cfg.Mode)
	}

	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		parser: parser,
		lister: lister,
		runner: r,
		cfg:    cfg,
		logger: logger.OrNop(log),
	}, nil
}

// Start registers the job and starts the cron loop. Runs use a context
// derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	entryID, err := s.cron.AddFunc(s.cfg.Spec, func() {
		if _, runErr := s.RunOnce(runCtx); runErr != nil && !errors.Is(runErr, ErrAlreadyRunning) {
			s.logger.Error("Scheduled unmatched re-run failed", logger.Error(runErr))
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule unmatched re-run: %w", err)
	}

	s.entryID = entryID
	s.cancel = cancel
	s.cron.Start()

	s.logger.Info("Scheduler started",
		logger.String("spec", s.cfg.Spec),
		logger.Int("limit", s.cfg.Limit),
		logger.String("mode", string(s.cfg.Mode)),
		logger.String("next_run", s.cron.Entry(entryID).Next.Format(time.RFC3339)),
	)
	return nil
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Next returns the next scheduled run, zero before Start.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// RunOnce re-runs up to Limit unmatched items. It returns nil, nil when
// there is nothing to do.
func (s *Scheduler) RunOnce(ctx context.Context) (*domain.BatchRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Skipping unmatched re-run, previous run still active")
		return nil, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	ids, err := s.lister.ListUnmatchedSourceIDs(ctx, s.cfg.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched items: %w", err)
	}
	if len(ids) == 0 {
		s.logger.Debug("No unmatched items to re-run")
		return nil, nil
	}

	s.logger.Info("Re-running unmatched items", logger.Int("count", len(ids)))
	return s.runner.Run(ctx, runner.Request{IDs: ids, Mode: s.cfg.Mode})
}
