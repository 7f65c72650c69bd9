package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/runner"
	"github.com/north-cloud/huv-matcher/internal/scheduler"
)

type staticLister struct {
	ids   []string
	err   error
	limit int
}

func (l *staticLister) ListUnmatchedSourceIDs(_ context.Context, limit int) ([]string, error) {
	l.limit = limit
	return l.ids, l.err
}

type fakeRunner struct {
	mu      sync.Mutex
	reqs    []runner.Request
	block   chan struct{}
	started chan struct{}
}

func (r *fakeRunner) Run(_ context.Context, req runner.Request) (*domain.BatchRun, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	if r.started != nil {
		close(r.started)
	}
	if r.block != nil {
		<-r.block
	}
	return &domain.BatchRun{ID: "run", Mode: req.Mode}, nil
}

func TestNew_RejectsBadConfig(t *testing.T) {
	if _, err := scheduler.New(&staticLister{}, &fakeRunner{}, scheduler.Config{Spec: "not a spec"}, logger.NewNop()); err == nil {
		t.Error("New() with bad spec error = nil")
	}
	_, err := scheduler.New(&staticLister{}, &fakeRunner{}, scheduler.Config{Spec: "@hourly", Mode: "fuzzy"}, logger.NewNop())
	if !errors.Is(err, runner.ErrUnknownMode) {
		t.Errorf("New() with bad mode error = %v, want ErrUnknownMode", err)
	}
}

func TestRunOnce_PassesUnmatchedIDs(t *testing.T) {
	lister := &staticLister{ids: []string{"S2", "S3"}}
	r := &fakeRunner{}
	s, err := scheduler.New(lister, r, scheduler.Config{Spec: "@hourly", Limit: 50, Mode: domain.ModeAI}, logger.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	run, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if run == nil || run.Mode != domain.ModeAI {
		t.Errorf("run = %+v, want ai run", run)
	}
	if lister.limit != 50 {
		t.Errorf("limit = %d, want 50", lister.limit)
	}
	if len(r.reqs) != 1 || len(r.reqs[0].IDs) != 2 || r.reqs[0].IDs[0] != "S2" {
		t.Errorf("requests = %+v", r.reqs)
	}
}

func TestRunOnce_NothingToDo(t *testing.T) {
	r := &fakeRunner{}
	s, err := scheduler.New(&staticLister{}, r, scheduler.Config{Spec: "@hourly"}, logger.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	run, err := s.RunOnce(context.Background())
	if err != nil || run != nil {
		t.Errorf("RunOnce() = %v, %v, want nil, nil", run, err)
	}
	if len(r.reqs) != 0 {
		t.Errorf("runner called %d times", len(r.reqs))
	}
}

func TestRunOnce_ListerError(t *testing.T) {
	boom := errors.New("db gone")
	s, err := scheduler.New(&staticLister{err: boom}, &fakeRunner{}, scheduler.Config{Spec: "@hourly"}, logger.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Errorf("RunOnce() error = %v, want wrapped lister error", err)
	}
}

func TestRunOnce_SkipsOverlappingRuns(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{}), started: make(chan struct{})}
	s, err := scheduler.New(&staticLister{ids: []string{"S1"}}, r, scheduler.Config{Spec: "@hourly"}, logger.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, runErr := s.RunOnce(context.Background())
		done <- runErr
	}()
	<-r.started

	if _, err := s.RunOnce(context.Background()); !errors.Is(err, scheduler.ErrAlreadyRunning) {
		t.Errorf("second RunOnce() error = %v, want ErrAlreadyRunning", err)
	}

	close(r.block)
	if err := <-done; err != nil {
		t.Errorf("first RunOnce() error = %v", err)
	}
}

func TestStartStop(t *testing.T) {
	s, err := scheduler.New(&staticLister{}, &fakeRunner{}, scheduler.Config{Spec: "@every 1h"}, logger.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !s.Next().IsZero() {
		t.Error("Next() before Start should be zero")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// the entry's next time is computed when the cron loop starts
	deadline := time.Now().Add(time.Second)
	for s.Next().IsZero() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if next := s.Next(); next.IsZero() || next.Before(time.Now()) {
		t.Errorf("Next() = %v, want a future time", next)
	}
	s.Stop()
}
