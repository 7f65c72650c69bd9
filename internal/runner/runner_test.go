package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/aimatch"
	"github.com/north-cloud/huv-matcher/internal/batch"
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/inference"
	"github.com/north-cloud/huv-matcher/internal/matching"
	"github.com/north-cloud/huv-matcher/internal/reference"
	"github.com/north-cloud/huv-matcher/internal/runner"
)

type recordingSink struct {
	mu   sync.Mutex
	runs []*domain.BatchRun
	err  error
}

func (s *recordingSink) SaveRun(_ context.Context, run *domain.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return s.err
}

type runObserver struct{ runs int }

func (o *runObserver) ObserveBatch(*domain.BatchRun) { o.runs++ }

func testProvider(t *testing.T) *reference.MemoryProvider {
	t.Helper()
	p, err := reference.NewMemoryProvider(
		[]domain.SourceItem{
			{ID: "S1", Code: "89.03", Name: "Yatak Ücreti"},
			{ID: "S2", Name: "Toraks BT"},
			{ID: "S4", Name: "Xylophone"},
		},
		[]domain.CandidateTarget{
			{ID: "H1", Code: "89.03", Name: "Yatak"},
			{ID: "H2", Code: "99.99", Name: "Ameliyat"},
			{ID: "H3", Name: "Toraks Bilgisayarlı Tomografi", Tags: []string{domain.TagRadiology}},
		},
	)
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	return p
}

func newRunner(t *testing.T, opts ...runner.Option) *runner.Runner {
	t.Helper()
	engine := matching.NewEngine(matching.DefaultOptions(), logger.NewNop())
	return runner.New(testProvider(t), engine, runner.Config{ChunkSize: 2}, logger.NewNop(), opts...)
}

func TestRun_HeuristicKeepsOrderAndIsolatesFailures(t *testing.T) {
	sink := &recordingSink{}
	obs := &runObserver{}
	r := newRunner(t, runner.WithSink(sink), runner.WithObserver(obs))

	var progress []batch.Progress
	run, err := r.Run(context.Background(), runner.Request{
		IDs:        []string{"S1", "missing", "S4"},
		Mode:       domain.ModeHeuristic,
		OnProgress: func(p batch.Progress) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if run.ID == "" || run.Mode != domain.ModeHeuristic {
		t.Errorf("run id = %q, mode = %s", run.ID, run.Mode)
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}
	if len(run.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(run.Results))
	}
	for i, id := range []string{"S1", "missing", "S4"} {
		if run.Results[i].SourceID != id {
			t.Errorf("Results[%d].SourceID = %s, want %s", i, run.Results[i].SourceID, id)
		}
	}

	if run.Results[0].TargetID != "H1" || run.Results[0].Confidence < 95 {
		t.Errorf("S1 = %+v, want H1 >= 95", run.Results[0])
	}
	if !run.Results[1].Failed() {
		t.Errorf("missing = %+v, want failed", run.Results[1])
	}
	if run.Results[2].Failed() {
		t.Errorf("S4 = %+v, want a decision", run.Results[2])
	}

	if run.Stats.Total != 3 || run.Stats.Failed != 1 || run.Stats.Matched < 1 {
		t.Errorf("Stats = %+v", run.Stats)
	}
	if len(progress) != 3 || progress[2].Done != 3 {
		t.Errorf("progress = %+v, want 3 reports", progress)
	}
	if len(sink.runs) != 1 || sink.runs[0] != run {
		t.Errorf("sink runs = %d, want the returned run", len(sink.runs))
	}
	if obs.runs != 1 {
		t.Errorf("observer runs = %d, want 1", obs.runs)
	}
}

func TestRun_SinkFailureDoesNotChangeResult(t *testing.T) {
	sink := &recordingSink{err: errors.New("db down")}
	r := newRunner(t, runner.WithSink(sink))

	run, err := r.Run(context.Background(), runner.Request{IDs: []string{"S1"}, Mode: domain.ModeHeuristic})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if run.Results[0].TargetID != "H1" {
		t.Errorf("result = %+v", run.Results[0])
	}
}

func TestRun_ModeErrors(t *testing.T) {
	r := newRunner(t)

	if _, err := r.Run(context.Background(), runner.Request{IDs: []string{"S1"}, Mode: domain.ModeAI}); !errors.Is(err, runner.ErrAIUnavailable) {
		t.Errorf("ai without service error = %v, want ErrAIUnavailable", err)
	}
	if _, err := r.Run(context.Background(), runner.Request{IDs: []string{"S1"}, Mode: "fuzzy"}); !errors.Is(err, runner.ErrUnknownMode) {
		t.Errorf("unknown mode error = %v, want ErrUnknownMode", err)
	}
	if _, err := r.MatchAI(context.Background(), "S1", aimatch.Options{}); !errors.Is(err, runner.ErrAIUnavailable) {
		t.Errorf("MatchAI() error = %v, want ErrAIUnavailable", err)
	}
}

func TestRun_AIMode(t *testing.T) {
	provider := testProvider(t)
	engine := matching.NewEngine(matching.DefaultOptions(), logger.NewNop())
	client := inference.ClientFunc(func(context.Context, string, time.Duration) (string, error) {
		return `{"candidate_id":"H3","confidence":91,"reasoning":"thorax CT"}`, nil
	})
	ai := aimatch.NewService(provider, client, engine, aimatch.Config{Timeout: time.Second}, logger.NewNop())
	r := runner.New(provider, engine, runner.Config{}, logger.NewNop(), runner.WithAI(ai))

	if !r.AIEnabled() {
		t.Fatal("AIEnabled() = false")
	}

	run, err := r.Run(context.Background(), runner.Request{IDs: []string{"S2"}, Mode: domain.ModeAI})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := run.Results[0]
	if got.TargetID != "H3" || got.Method != domain.MethodAI {
		t.Errorf("result = %+v, want H3 via ai", got)
	}
	if run.Stats.AIAccepted != 1 {
		t.Errorf("AIAccepted = %d, want 1", run.Stats.AIAccepted)
	}
}

func TestRun_CancelledSkipsAndDoesNotPersist(t *testing.T) {
	sink := &recordingSink{}
	r := newRunner(t, runner.WithSink(sink))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := r.Run(ctx, runner.Request{IDs: []string{"S1", "S2", "S4"}, Mode: domain.ModeHeuristic})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if run == nil || len(run.Results) != 3 {
		t.Fatalf("run = %+v, want partial run with 3 results", run)
	}
	for _, res := range run.Results {
		if !res.Failed() {
			t.Errorf("%s = %+v, want failed", res.SourceID, res)
		}
	}
	if len(sink.runs) != 0 {
		t.Errorf("sink called %d times, want 0", len(sink.runs))
	}
}

func TestMatchHeuristic_UnknownSource(t *testing.T) {
	r := newRunner(t)
	if _, err := r.MatchHeuristic(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("MatchHeuristic() error = %v, want ErrNotFound", err)
	}
}
