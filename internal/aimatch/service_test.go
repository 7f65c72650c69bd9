package aimatch_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/aimatch"
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/inference"
	"github.com/north-cloud/huv-matcher/internal/matching"
	"github.com/north-cloud/huv-matcher/internal/reference"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []aimatch.State
}

func (r *stateRecorder) ObserveAI(terminal aimatch.State, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, terminal)
}

func testProvider(t *testing.T) *reference.MemoryProvider {
	t.Helper()
	p, err := reference.NewMemoryProvider(
		[]domain.SourceItem{
			{ID: "S1", Code: "89.03", Name: "Yatak Ücreti"},
			{ID: "S2", Name: "Toraks BT"},
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

func reply(body string) inference.Client {
	return inference.ClientFunc(func(context.Context, string, time.Duration) (string, error) {
		return body, nil
	})
}

func newService(t *testing.T, client inference.Client, opts ...aimatch.ServiceOption) *aimatch.Service {
	t.Helper()
	engine := matching.NewEngine(matching.DefaultOptions(), logger.NewNop())
	return aimatch.NewService(testProvider(t), client, engine, aimatch.Config{Timeout: time.Second}, logger.NewNop(), opts...)
}

func terminalStates(o aimatch.Outcome) []aimatch.State {
	out := make([]aimatch.State, 0, len(o.Transitions))
	for _, tr := range o.Transitions {
		out = append(out, tr.To)
	}
	return out
}

func TestMatchSingle_Accepted(t *testing.T) {
	t.Parallel()

	rec := &stateRecorder{}
	svc := newService(t, reply("```json\n{\"candidate_id\":\"H3\",\"confidence\":88,\"reasoning\":\"chest CT\"}\n```"), aimatch.WithObserver(rec))

	out, err := svc.MatchSingle(context.Background(), "S2", aimatch.Options{})
	if err != nil {
		t.Fatalf("MatchSingle() error = %v", err)
	}
	if out.Path != aimatch.PathAccepted || out.Terminal != aimatch.StateAccepted {
		t.Fatalf("path = %s, terminal = %s", out.Path, out.Terminal)
	}
	if out.Result.TargetID != "H3" || out.Result.Confidence != 88 {
		t.Errorf("result = %+v", out.Result)
	}
	if out.Result.Method != domain.MethodAI || out.Result.Strategy != domain.StrategyAI {
		t.Errorf("method = %s, strategy = %s", out.Result.Method, out.Result.Strategy)
	}
	want := []aimatch.State{aimatch.StateBuilding, aimatch.StateRequesting, aimatch.StateParsingReply, aimatch.StateAccepted}
	if got := terminalStates(out); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
	if len(rec.states) != 1 || rec.states[0] != aimatch.StateAccepted {
		t.Errorf("observer saw %v", rec.states)
	}
}

func TestMatchSingle_LowConfidenceFallsBack(t *testing.T) {
	t.Parallel()

	svc := newService(t, reply(`{"candidate_id":"H2","confidence":40,"reasoning":"unsure"}`))

	out, err := svc.MatchSingle(context.Background(), "S1", aimatch.Options{})
	if err != nil {
		t.Fatalf("MatchSingle() error = %v", err)
	}
	if !out.FellBack() || out.Terminal != aimatch.StateRejectedLowConfidence {
		t.Fatalf("path = %s, terminal = %s", out.Path, out.Terminal)
	}
	if out.Result.TargetID != "H1" || out.Result.Strategy != matching.NameDirectCode {
		t.Errorf("fallback result = %+v", out.Result)
	}
	if out.Result.Method != domain.MethodAIFallback {
		t.Errorf("method = %s", out.Result.Method)
	}

	var kept bool
	for _, ru := range out.Result.RunnerUps {
		if ru.Strategy == domain.StrategyAI && ru.TargetID == "H2" && ru.Confidence == 40 {
			kept = true
		}
	}
	if !kept {
		t.Errorf("AI answer not kept as runner-up: %+v", out.Result.RunnerUps)
	}
	if out.Answer == nil || out.Answer.CandidateID != "H2" {
		t.Errorf("answer = %+v", out.Answer)
	}
}

func TestMatchSingle_ExplicitZeroMinConfidence(t *testing.T) {
	t.Parallel()

	svc := newService(t, reply(`{"candidate_id":"H2","confidence":40,"reasoning":"unsure"}`))
	zero := 0.0

	out, err := svc.MatchSingle(context.Background(), "S1", aimatch.Options{MinConfidence: &zero})
	if err != nil {
		t.Fatalf("MatchSingle() error = %v", err)
	}
	if out.Terminal != aimatch.StateAccepted || out.Result.TargetID != "H2" {
		t.Errorf("terminal = %s, result = %+v", out.Terminal, out.Result)
	}
}

func TestMatchSingle_PromptUnsafeCandidateIDIsInvalidInput(t *testing.T) {
	t.Parallel()

	p, err := reference.NewMemoryProvider(
		[]domain.SourceItem{{ID: "S1", Name: "Yatak Ücreti"}},
		[]domain.CandidateTarget{
			{ID: "HUV|510.010", Name: "Yatak"},
			{ID: "HUV/510.010", Name: "Yatak"},
		},
	)
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	called := false
	client := inference.ClientFunc(func(context.Context, string, time.Duration) (string, error) {
		called = true
		return `{"candidate_id":"HUV/510.010","confidence":95,"reasoning":"x"}`, nil
	})
	svc := aimatch.NewService(p, client, matching.NewEngine(matching.DefaultOptions(), nil), aimatch.Config{}, nil)

	_, err = svc.MatchSingle(context.Background(), "S1", aimatch.Options{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
	if called {
		t.Error("inference called with an id the prompt cannot carry")
	}
}

func TestMatchSingle_MalformedRepliesFallBack(t *testing.T) {
	t.Parallel()

	replies := map[string]string{
		"not json":           "I think it is H1",
		"missing confidence": `{"candidate_id":"H1","reasoning":"x"}`,
		"non-numeric":        `{"candidate_id":"H1","confidence":"high","reasoning":"x"}`,
		"unknown candidate":  `{"candidate_id":"H9","confidence":90,"reasoning":"x"}`,
		"null candidate":     `{"candidate_id":null,"confidence":90,"reasoning":"x"}`,
		"missing reasoning":  `{"candidate_id":"H1","confidence":90}`,
	}
	for name, body := range replies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			out, err := newService(t, reply(body)).MatchSingle(context.Background(), "S1", aimatch.Options{})
			if err != nil {
				t.Fatalf("MatchSingle() error = %v", err)
			}
			if out.Terminal != aimatch.StateRejectedMalformedReply || !out.FellBack() {
				t.Errorf("terminal = %s, path = %s", out.Terminal, out.Path)
			}
			if !errors.Is(out.Cause, domain.ErrMalformedReply) {
				t.Errorf("cause = %v", out.Cause)
			}
			if len(out.Result.Warnings) == 0 {
				t.Error("AI attempt not recorded in warnings")
			}
		})
	}
}

func TestMatchSingle_ToleratedReplyShapes(t *testing.T) {
	t.Parallel()

	replies := map[string]string{
		"string confidence": `{"candidate_id":"H1","confidence":"85","reasoning":"x"}`,
		"percent":           `{"candidate_id":"H1","confidence":"85%","reasoning":"x"}`,
		"surrounding text":  `Sure! {"candidate_id":"H1","confidence":85,"reasoning":"x"} Hope it helps.`,
	}
	for name, body := range replies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			out, err := newService(t, reply(body)).MatchSingle(context.Background(), "S1", aimatch.Options{})
			if err != nil {
				t.Fatalf("MatchSingle() error = %v", err)
			}
			if out.Path != aimatch.PathAccepted || out.Result.Confidence != 85 {
				t.Errorf("path = %s, confidence = %v", out.Path, out.Result.Confidence)
			}
		})
	}
}

func TestMatchSingle_OutOfRangeConfidenceClamped(t *testing.T) {
	t.Parallel()

	out, err := newService(t, reply(`{"candidate_id":"H1","confidence":140,"reasoning":"x"}`)).
		MatchSingle(context.Background(), "S1", aimatch.Options{})
	if err != nil {
		t.Fatalf("MatchSingle() error = %v", err)
	}
	if out.Result.Confidence != 100 || len(out.Result.Warnings) == 0 {
		t.Errorf("confidence = %v, warnings = %v", out.Result.Confidence, out.Result.Warnings)
	}
}

func TestMatchSingle_HungClientFallsBackWithinTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	hung := inference.ClientFunc(func(context.Context, string, time.Duration) (string, error) {
		<-release
		return "", nil
	})

	svc := newService(t, hung)
	start := time.Now()
	out, err := svc.MatchSingle(context.Background(), "S1", aimatch.Options{Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("MatchSingle() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("MatchSingle took %s", elapsed)
	}
	if out.Terminal != aimatch.StateRejectedTimeout || !out.FellBack() {
		t.Errorf("terminal = %s, path = %s", out.Terminal, out.Path)
	}
	if out.Result.TargetID != "H1" {
		t.Errorf("fallback target = %q, want H1", out.Result.TargetID)
	}
}

func TestMatchSingle_TransportErrorFallsBack(t *testing.T) {
	t.Parallel()

	down := inference.ClientFunc(func(context.Context, string, time.Duration) (string, error) {
		return "", fmt.Errorf("connection refused: %w", domain.ErrTransport)
	})
	out, err := newService(t, down).MatchSingle(context.Background(), "S1", aimatch.Options{})
	if err != nil {
		t.Fatalf("MatchSingle() error = %v", err)
	}
	if out.Terminal != aimatch.StateRejectedTransport || out.Result.TargetID != "H1" {
		t.Errorf("terminal = %s, result = %+v", out.Terminal, out.Result)
	}

	untyped := inference.ClientFunc(func(context.Context, string, time.Duration) (string, error) {
		return "", errors.New("boom")
	})
	out, err = newService(t, untyped).MatchSingle(context.Background(), "S1", aimatch.Options{})
	if err != nil {
		t.Fatalf("MatchSingle() error = %v", err)
	}
	if out.Terminal != aimatch.StateRejectedTransport {
		t.Errorf("untyped error terminal = %s", out.Terminal)
	}
}

func TestMatchSingle_NoCandidatesDegradesToNoMatch(t *testing.T) {
	t.Parallel()

	p, err := reference.NewMemoryProvider([]domain.SourceItem{{ID: "S1", Name: "x"}}, nil)
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	called := false
	client := inference.ClientFunc(func(context.Context, string, time.Duration) (string, error) {
		called = true
		return "", nil
	})
	engine := matching.NewEngine(matching.DefaultOptions(), nil)
	svc := aimatch.NewService(p, client, engine, aimatch.Config{}, nil)

	out, err := svc.MatchSingle(context.Background(), "S1", aimatch.Options{})
	if err != nil {
		t.Fatalf("MatchSingle() error = %v", err)
	}
	if called {
		t.Error("inference called without candidates")
	}
	if out.Result.Matched() || out.Result.Reason != domain.ReasonNoCandidates {
		t.Errorf("result = %+v", out.Result)
	}
	if out.Terminal != aimatch.StateRejectedNoCandidates {
		t.Errorf("terminal = %s", out.Terminal)
	}
}

func TestMatchSingle_UnknownSourceIsError(t *testing.T) {
	t.Parallel()

	_, err := newService(t, reply("{}")).MatchSingle(context.Background(), "missing", aimatch.Options{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMatchSingle_ShortlistsLargeCandidateSets(t *testing.T) {
	t.Parallel()

	candidates := []domain.CandidateTarget{{ID: "H0", Code: "89.03", Name: "Yatak"}}
	for i := 1; i < 10; i++ {
		candidates = append(candidates, domain.CandidateTarget{ID: fmt.Sprintf("X%d", i), Name: fmt.Sprintf("Gözlük %d", i)})
	}
	p, err := reference.NewMemoryProvider([]domain.SourceItem{{ID: "S1", Code: "89.03", Name: "Yatak Ücreti"}}, candidates)
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}

	var seen string
	client := inference.ClientFunc(func(_ context.Context, text string, _ time.Duration) (string, error) {
		seen = text
		return `{"candidate_id":"H0","confidence":90,"reasoning":"x"}`, nil
	})
	svc := aimatch.NewService(p, client, matching.NewEngine(matching.DefaultOptions(), nil), aimatch.Config{MaxCandidates: 3}, nil)

	out, err := svc.MatchSingle(context.Background(), "S1", aimatch.Options{})
	if err != nil {
		t.Fatalf("MatchSingle() error = %v", err)
	}
	if out.Path != aimatch.PathAccepted {
		t.Errorf("path = %s", out.Path)
	}
	if n := strings.Count(seen, "- id: "); n != 3 {
		t.Errorf("prompt lists %d candidates, want 3", n)
	}
	if !strings.Contains(seen, "- id: H0 ") {
		t.Error("best heuristic candidate missing from shortlist")
	}
}

func TestMatchSingle_CancelledContextIsError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	client := inference.ClientFunc(func(ctx context.Context, _ string, _ time.Duration) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	_, err := newService(t, client).MatchSingle(ctx, "S1", aimatch.Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
