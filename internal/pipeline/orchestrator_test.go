package pipeline_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sampleforge/sampleforge/internal/events"
	"github.com/sampleforge/sampleforge/internal/pipeline"
	"github.com/sampleforge/sampleforge/internal/resultcache"
	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
	"github.com/sampleforge/sampleforge/pkg/scoring"
	"github.com/sampleforge/sampleforge/pkg/selection"
	"github.com/sampleforge/sampleforge/pkg/strategy"
)

// fixed is a strategy whose candidate carries a predetermined score.
type fixed struct {
	name  string
	score int
	err   error
	block bool
	calls *atomic.Int32
}

func (f *fixed) Name() string            { return f.name }
func (f *fixed) Kinds() []artifact.Kind  { return []artifact.Kind{artifact.KindAnalysis} }
func (f *fixed) Describe() strategy.Info { return strategy.Info{Name: f.name, Kinds: f.Kinds()} }

func (f *fixed) Generate(ctx context.Context, _ artifact.Context) (strategy.Output, error) {
	if f.calls != nil {
		f.calls.Add(1)
	}
	if f.block {
		<-ctx.Done()
		return strategy.Output{}, ctx.Err()
	}
	if f.err != nil {
		return strategy.Output{}, f.err
	}
	return strategy.Output{
		Content:  "## Overview\n" + f.name,
		Features: []string{f.name},
		Metadata: map[string]any{"score": f.score},
	}, nil
}

// metadataScore reads the subscore straight from candidate metadata.
type metadataScore struct{}

func (metadataScore) Criterion() string { return "quality" }

func (metadataScore) Analyze(c artifact.Candidate, _ artifact.Context) (scoring.Assessment, error) {
	s, ok := c.Metadata["score"].(float64)
	if !ok {
		return scoring.Assessment{}, errors.New("no score")
	}
	if s < 0 {
		return scoring.Assessment{}, errors.New("unscorable")
	}
	return scoring.Assessment{Score: int(s)}, nil
}

var quality = sampling.Criteria{"quality": {Weight: 1}}

type harness struct {
	orch   *pipeline.Orchestrator
	events *events.Recorder
	cache  *resultcache.Cache
	spans  *tracetest.SpanRecorder
	clock  *time.Time
}

func newHarness(t *testing.T, strategies []*fixed, opts ...pipeline.Option) *harness {
	t.Helper()
	reg := strategy.NewRegistry()
	for _, s := range strategies {
		if err := reg.Register(s); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &harness{events: &events.Recorder{}, spans: tracetest.NewSpanRecorder(), clock: &now}
	h.cache = resultcache.New(resultcache.NewMemoryBackend(func() time.Time { return *h.clock }))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))

	gen := strategy.NewGenerator(reg, strategy.WithClock(func() time.Time { return *h.clock }))
	engine := scoring.NewEngine(scoring.WithAnalyzers(artifact.KindAnalysis, metadataScore{}))
	base := []pipeline.Option{
		pipeline.WithCache(h.cache),
		pipeline.WithEvents(h.events),
		pipeline.WithTracer(tp.Tracer("test")),
		pipeline.WithClock(func() time.Time { return *h.clock }),
	}
	h.orch = pipeline.New(gen, engine, append(base, opts...)...)
	return h
}

func gctx(session string) artifact.Context {
	return artifact.Context{Kind: artifact.KindAnalysis, SessionID: session, Language: "go"}
}

func TestScenarioPartialFailure(t *testing.T) {
	boom := errors.New("boom")
	h := newHarness(t, []*fixed{
		{name: "s1", score: 70},
		{name: "s2", err: boom},
		{name: "s3", score: 90},
		{name: "s4", err: boom},
		{name: "s5", score: 60},
	})

	res, err := h.orch.GenerateBest(context.Background(), gctx("sess"), pipeline.Options{Criteria: quality})
	if err != nil {
		t.Fatalf("GenerateBest: %v", err)
	}
	if len(res.Candidates) != 3 {
		t.Errorf("got %d candidates, want 3", len(res.Candidates))
	}
	if diff := cmp.Diff([]string{"s1", "s3", "s5"}, res.Metadata.StrategiesUsed); diff != "" {
		t.Errorf("strategies used (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"s2", "s4"}, res.Metadata.StrategiesFailed); diff != "" {
		t.Errorf("strategies failed (-want +got):\n%s", diff)
	}
	if res.Best.StrategyName != "s3" {
		t.Errorf("best = %s, want s3", res.Best.StrategyName)
	}
	if n := len(h.events.OfType(events.TypeStrategyFailed)); n != 2 {
		t.Errorf("strategy_failed events = %d, want 2", n)
	}
	if res.Metadata.TotalCandidates != 3 {
		t.Errorf("total candidates = %d", res.Metadata.TotalCandidates)
	}
}

func TestScenarioTotalFailure(t *testing.T) {
	boom := errors.New("boom")
	h := newHarness(t, []*fixed{{name: "a", err: boom}, {name: "b", err: boom}})

	res, err := h.orch.GenerateBest(context.Background(), gctx("sess"), pipeline.Options{Criteria: quality})
	var nce *sampling.NoCandidatesError
	if !errors.As(err, &nce) {
		t.Fatalf("want NoCandidatesError, got %v", err)
	}
	if res != nil {
		t.Error("expected no result")
	}
	if len(nce.Failures) != 2 {
		t.Errorf("failures = %v", nce.Failures)
	}
	if _, ok := h.cache.Get(context.Background(), artifact.KindAnalysis, "sess"); ok {
		t.Error("failed run was cached")
	}
}

func TestAllCandidatesDroppedByScoring(t *testing.T) {
	h := newHarness(t, []*fixed{{name: "a", score: -1}, {name: "b", score: -1}})
	_, err := h.orch.GenerateBest(context.Background(), gctx(""), pipeline.Options{Criteria: quality})
	var nce *sampling.NoCandidatesError
	if !errors.As(err, &nce) {
		t.Fatalf("want NoCandidatesError, got %v", err)
	}
	if n := len(h.events.OfType(events.TypeCandidateDropped)); n != 2 {
		t.Errorf("candidate_dropped events = %d, want 2", n)
	}
}

func TestTieBreakProvenance(t *testing.T) {
	h := newHarness(t, []*fixed{
		{name: "first", score: 79},
		{name: "second", score: 82},
		{name: "third", score: 60},
	}, pipeline.WithTieBreaker(selection.TieBreaker{Policy: selection.PolicyStableFirst, Margin: 5}))

	res, err := h.orch.GenerateBest(context.Background(), gctx("s"), pipeline.Options{Criteria: quality})
	if err != nil {
		t.Fatalf("GenerateBest: %v", err)
	}
	if res.Best.StrategyName != "first" {
		t.Errorf("best = %s, want first", res.Best.StrategyName)
	}
	tb := res.Metadata.TieBreak
	if tb == nil || tb.Policy != "stable-first" || tb.Scores != [2]int{82, 79} {
		t.Fatalf("tie-break record = %+v", tb)
	}
	if res.Candidates[0].StrategyName != "second" {
		t.Error("ranking must still reflect raw scores")
	}
	if n := len(h.events.OfType(events.TypeTieBreak)); n != 1 {
		t.Errorf("tie_break events = %d, want 1", n)
	}
}

func TestConstraintFallbackEmitsEvent(t *testing.T) {
	h := newHarness(t, []*fixed{
		{name: "a", score: 65},
		{name: "b", score: 52},
		{name: "c", score: 68},
		{name: "d", score: 40},
	})
	res, err := h.orch.GenerateBest(context.Background(), gctx("s"), pipeline.Options{
		Criteria:    quality,
		Constraints: sampling.Constraints{MinScore: 70},
	})
	if err != nil {
		t.Fatalf("GenerateBest: %v", err)
	}
	if res.Best.StrategyName != "c" || !res.Metadata.ConstraintFallback {
		t.Errorf("best=%s fallback=%v, want c true", res.Best.StrategyName, res.Metadata.ConstraintFallback)
	}
	if n := len(h.events.OfType(events.TypeConstraintFallback)); n != 1 {
		t.Errorf("constraint_fallback events = %d, want 1", n)
	}
}

func TestTruncationPolicies(t *testing.T) {
	strategies := []*fixed{
		{name: "low", score: 40},
		{name: "mid", score: 60},
		{name: "high", score: 95},
	}
	tests := []struct {
		truncate pipeline.Truncation
		wantUsed []string
		wantBest string
	}{
		{pipeline.TruncateInvocationOrder, []string{"low", "mid"}, "mid"},
		{pipeline.TruncateBestScore, []string{"mid", "high"}, "high"},
	}
	for _, tt := range tests {
		t.Run(string(tt.truncate), func(t *testing.T) {
			h := newHarness(t, strategies)
			res, err := h.orch.GenerateBest(context.Background(), gctx(""), pipeline.Options{
				Criteria:       quality,
				CandidateCount: 2,
				Truncate:       tt.truncate,
			})
			if err != nil {
				t.Fatalf("GenerateBest: %v", err)
			}
			if diff := cmp.Diff(tt.wantUsed, res.Metadata.StrategiesUsed); diff != "" {
				t.Errorf("strategies used (-want +got):\n%s", diff)
			}
			if res.Best.StrategyName != tt.wantBest {
				t.Errorf("best = %s, want %s", res.Best.StrategyName, tt.wantBest)
			}
			for i, c := range res.Candidates {
				if c.Rank != i+1 {
					t.Errorf("candidate %d has rank %d", i, c.Rank)
				}
			}
		})
	}

	h := newHarness(t, strategies)
	if _, err := h.orch.GenerateBest(context.Background(), gctx(""), pipeline.Options{Criteria: quality, Truncate: "random"}); err == nil {
		t.Error("expected unknown truncation policy to fail")
	}
}

func TestCacheHitAndWriteThrough(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, []*fixed{{name: "a", score: 80, calls: &calls}, {name: "b", score: 70, calls: &calls}},
		pipeline.WithDefaultTTL(time.Minute))
	ctx := context.Background()

	first, err := h.orch.GenerateBest(ctx, gctx("sess"), pipeline.Options{Criteria: quality})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Metadata.FromCache {
		t.Error("first run should not come from cache")
	}

	second, err := h.orch.GenerateBest(ctx, gctx("sess"), pipeline.Options{Criteria: quality})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Metadata.FromCache {
		t.Error("second run should be served from cache")
	}
	if calls.Load() != 2 {
		t.Errorf("strategies invoked %d times, want 2", calls.Load())
	}
	if second.Best.ID != first.Best.ID {
		t.Errorf("cached best %s != original %s", second.Best.ID, first.Best.ID)
	}

	if _, err := h.orch.GenerateBest(ctx, gctx("sess"), pipeline.Options{Criteria: quality, BypassCache: true}); err != nil {
		t.Fatalf("bypass run: %v", err)
	}
	if calls.Load() != 4 {
		t.Errorf("bypass should regenerate, calls = %d", calls.Load())
	}

	*h.clock = h.clock.Add(time.Minute)
	third, err := h.orch.GenerateBest(ctx, gctx("sess"), pipeline.Options{Criteria: quality})
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if third.Metadata.FromCache {
		t.Error("expired entry served from cache")
	}
	if n := len(h.events.OfType(events.TypeCacheHit)); n != 1 {
		t.Errorf("cache_hit events = %d, want 1", n)
	}
}

func TestDeadlineReturnsPartialResult(t *testing.T) {
	h := newHarness(t, []*fixed{
		{name: "quick", score: 75},
		{name: "stuck", block: true},
	}, pipeline.WithTimeout(50*time.Millisecond))

	res, err := h.orch.GenerateBest(context.Background(), gctx("sess"), pipeline.Options{Criteria: quality})
	if err != nil {
		t.Fatalf("GenerateBest: %v", err)
	}
	if !res.Metadata.TimedOut {
		t.Error("expected timed_out")
	}
	if res.Best.StrategyName != "quick" || len(res.Candidates) != 1 {
		t.Errorf("best=%s candidates=%d", res.Best.StrategyName, len(res.Candidates))
	}
	if diff := cmp.Diff([]string{"stuck"}, res.Metadata.StrategiesFailed); diff != "" {
		t.Errorf("strategies failed (-want +got):\n%s", diff)
	}
	if _, ok := h.cache.Get(context.Background(), artifact.KindAnalysis, "sess"); ok {
		t.Error("partial result should not be cached")
	}
}

func TestDeadlineWithNothingFinished(t *testing.T) {
	h := newHarness(t, []*fixed{{name: "stuck", block: true}}, pipeline.WithTimeout(20*time.Millisecond))
	_, err := h.orch.GenerateBest(context.Background(), gctx(""), pipeline.Options{Criteria: quality})
	var nce *sampling.NoCandidatesError
	if !errors.As(err, &nce) || !nce.TimedOut {
		t.Fatalf("want timed-out NoCandidatesError, got %v", err)
	}
}

func TestInvalidContext(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := newHarness(t, []*fixed{{name: "a", score: 1}}, pipeline.WithLogger(zap.New(core)))
	_, err := h.orch.GenerateBest(context.Background(), artifact.Context{Kind: "helm"}, pipeline.Options{})
	if !errors.Is(err, pipeline.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if logs.FilterMessage("sampling failed").Len() != 1 {
		t.Error("expected the failure to be logged")
	}
}

func TestInvalidRequestErrors(t *testing.T) {
	valid := gctx("s")
	tests := []struct {
		name string
		gctx artifact.Context
		opts pipeline.Options
	}{
		{"non-canonical kind", artifact.Context{Kind: "Build-Image"}, pipeline.Options{}},
		{"unknown truncation", valid, pipeline.Options{Truncate: "random"}},
		{"criteria weight", valid, pipeline.Options{Criteria: sampling.Criteria{"accuracy": {Weight: 2}}}},
		{"unknown strategy", valid, pipeline.Options{Strategies: []string{"nope"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, []*fixed{{name: "a", score: 1}})
			_, err := h.orch.GenerateBest(context.Background(), tt.gctx, tt.opts)
			if !errors.Is(err, pipeline.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			var nce *sampling.NoCandidatesError
			if errors.As(err, &nce) {
				t.Errorf("invalid request reported as no candidates: %v", err)
			}
		})
	}
}

func TestStageSpans(t *testing.T) {
	h := newHarness(t, []*fixed{{name: "a", score: 80}})
	if _, err := h.orch.GenerateBest(context.Background(), gctx("s"), pipeline.Options{Criteria: quality}); err != nil {
		t.Fatalf("GenerateBest: %v", err)
	}
	got := map[string]bool{}
	for _, s := range h.spans.Ended() {
		got[s.Name()] = true
	}
	for _, name := range []string{
		"sampling.GenerateBest", "sampling.cache_lookup", "sampling.generate",
		"sampling.score", "sampling.select", "sampling.cache_store",
	} {
		if !got[name] {
			t.Errorf("missing span %s (got %v)", name, got)
		}
	}
}

func TestBuiltinStrategiesEndToEnd(t *testing.T) {
	gen := strategy.NewGenerator(strategy.DefaultRegistry(nil))
	orch := pipeline.New(gen, scoring.NewEngine())
	res, err := orch.GenerateBest(context.Background(), artifact.Context{
		Kind:     artifact.KindBuildImage,
		Language: "go",
		AppName:  "api",
	}, pipeline.Options{})
	if err != nil {
		t.Fatalf("GenerateBest: %v", err)
	}
	if res.Best.StrategyName != "security-hardened" {
		t.Errorf("best = %s, want security-hardened", res.Best.StrategyName)
	}
	if diff := cmp.Diff([]string{"ai-assisted"}, res.Metadata.StrategiesFailed); diff != "" {
		t.Errorf("strategies failed (-want +got):\n%s", diff)
	}
	if len(res.Candidates) != 4 {
		t.Errorf("got %d candidates, want 4", len(res.Candidates))
	}
}
