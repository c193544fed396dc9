package strategy_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
	"github.com/sampleforge/sampleforge/pkg/strategy"
)

// stub is a configurable strategy for generator tests.
type stub struct {
	name  string
	delay time.Duration
	err   error
	panic bool
	block bool
	body  string
	meta  map[string]any

	running *int32
	peak    *int32
}

func (s *stub) Name() string           { return s.name }
func (s *stub) Kinds() []artifact.Kind { return []artifact.Kind{artifact.KindBuildImage} }
func (s *stub) Describe() strategy.Info {
	return strategy.Info{Name: s.name, Kinds: s.Kinds()}
}

func (s *stub) Generate(ctx context.Context, _ artifact.Context) (strategy.Output, error) {
	if s.running != nil {
		n := atomic.AddInt32(s.running, 1)
		defer atomic.AddInt32(s.running, -1)
		for {
			p := atomic.LoadInt32(s.peak)
			if n <= p || atomic.CompareAndSwapInt32(s.peak, p, n) {
				break
			}
		}
	}
	if s.panic {
		panic("exploded")
	}
	if s.block {
		<-ctx.Done()
		return strategy.Output{}, ctx.Err()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return strategy.Output{}, s.err
	}
	body := s.body
	if body == "" {
		body = "FROM scratch\n# " + s.name
	}
	return strategy.Output{Content: body, Features: []string{s.name}, Metadata: s.meta}, nil
}

func newRegistry(t *testing.T, stubs ...*stub) *strategy.Registry {
	t.Helper()
	reg := strategy.NewRegistry()
	for _, s := range stubs {
		if err := reg.Register(s); err != nil {
			t.Fatalf("Register(%s): %v", s.name, err)
		}
	}
	return reg
}

var buildCtx = artifact.Context{Kind: artifact.KindBuildImage, SessionID: "s1"}

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("cand-%d", n)
	}
}

func TestGenerateOrdersByOrdinal(t *testing.T) {
	reg := newRegistry(t,
		&stub{name: "a", delay: 30 * time.Millisecond},
		&stub{name: "b", delay: 15 * time.Millisecond},
		&stub{name: "c"},
	)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	gen := strategy.NewGenerator(reg, strategy.WithClock(func() time.Time { return fixed }), strategy.WithIDFunc(sequentialIDs()))

	out, err := gen.Generate(context.Background(), buildCtx, strategy.Request{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var names []string
	for i, c := range out.Candidates {
		names = append(names, c.StrategyName)
		if c.Ordinal != i {
			t.Errorf("candidate %s: ordinal %d, want %d", c.StrategyName, c.Ordinal, i)
		}
		if !c.GeneratedAt.Equal(fixed) {
			t.Errorf("candidate %s: GeneratedAt %v, want %v", c.StrategyName, c.GeneratedAt, fixed)
		}
		if c.Kind != artifact.KindBuildImage {
			t.Errorf("candidate %s: kind %q", c.StrategyName, c.Kind)
		}
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if out.TimedOut || len(out.Failures) != 0 {
		t.Errorf("unexpected outcome: timedOut=%v failures=%v", out.TimedOut, out.Failures)
	}
}

func TestGeneratePartialFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reg := newRegistry(t,
		&stub{name: "ok-1"},
		&stub{name: "bad", err: errors.New("template missing")},
		&stub{name: "boom", panic: true},
		&stub{name: "empty", body: "   "},
		&stub{name: "ok-2"},
	)
	gen := strategy.NewGenerator(reg, strategy.WithLogger(zap.New(core)))

	out, err := gen.Generate(context.Background(), buildCtx, strategy.Request{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if diff := cmp.Diff([]string{"ok-1", "ok-2"}, out.Succeeded()); diff != "" {
		t.Errorf("succeeded mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bad", "boom", "empty"}, out.FailedNames()); diff != "" {
		t.Errorf("failed mismatch (-want +got):\n%s", diff)
	}
	if got := out.Candidates[1].Ordinal; got != 4 {
		t.Errorf("ok-2 ordinal = %d, want 4", got)
	}
	if logs.FilterMessage("strategy failed").Len() != 3 {
		t.Errorf("expected 3 failure logs, got %d", logs.FilterMessage("strategy failed").Len())
	}
}

func TestGenerateAllFail(t *testing.T) {
	reg := newRegistry(t,
		&stub{name: "x", err: errors.New("no")},
		&stub{name: "y", err: errors.New("nope")},
	)
	out, err := strategy.NewGenerator(reg).Generate(context.Background(), buildCtx, strategy.Request{})

	var nce *sampling.NoCandidatesError
	if !errors.As(err, &nce) {
		t.Fatalf("expected NoCandidatesError, got %v", err)
	}
	if len(nce.Failures) != 2 || nce.TimedOut {
		t.Errorf("unexpected error detail: %+v", nce)
	}
	if len(out.Requested) != 2 {
		t.Errorf("outcome should still list requested strategies, got %v", out.Requested)
	}
}

func TestGenerateTruncatesByOrdinal(t *testing.T) {
	reg := newRegistry(t,
		&stub{name: "a", delay: 20 * time.Millisecond},
		&stub{name: "b"},
		&stub{name: "c"},
		&stub{name: "d"},
	)
	out, err := strategy.NewGenerator(reg).Generate(context.Background(), buildCtx, strategy.Request{Count: 2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, out.Succeeded()); diff != "" {
		t.Errorf("kept mismatch (-want +got):\n%s", diff)
	}
	if out.Truncated != 2 {
		t.Errorf("Truncated = %d, want 2", out.Truncated)
	}
}

func TestGenerateDeadlineKeepsFinished(t *testing.T) {
	reg := newRegistry(t,
		&stub{name: "fast"},
		&stub{name: "stuck", block: true},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := strategy.NewGenerator(reg).Generate(ctx, buildCtx, strategy.Request{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.TimedOut {
		t.Error("expected TimedOut")
	}
	if diff := cmp.Diff([]string{"fast"}, out.Succeeded()); diff != "" {
		t.Errorf("succeeded mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(out.Failures["stuck"], context.DeadlineExceeded) {
		t.Errorf("stuck failure = %v, want deadline exceeded", out.Failures["stuck"])
	}
}

func TestGenerateConcurrencyLimit(t *testing.T) {
	var running, peak int32
	var stubs []*stub
	for i := 0; i < 6; i++ {
		stubs = append(stubs, &stub{name: fmt.Sprintf("s%d", i), delay: 10 * time.Millisecond, running: &running, peak: &peak})
	}
	reg := newRegistry(t, stubs...)

	out, err := strategy.NewGenerator(reg, strategy.WithConcurrency(2)).Generate(context.Background(), buildCtx, strategy.Request{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out.Candidates) != 6 {
		t.Errorf("expected 6 candidates, got %d", len(out.Candidates))
	}
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("peak concurrency %d exceeds limit 2", p)
	}
}

func TestGenerateUnknownStrategy(t *testing.T) {
	reg := newRegistry(t, &stub{name: "a"})
	if _, err := strategy.NewGenerator(reg).Generate(context.Background(), buildCtx, strategy.Request{Strategies: []string{"zzz"}}); err == nil {
		t.Error("expected resolve error")
	}
}

func TestGenerateStoresJSONMetadata(t *testing.T) {
	reg := newRegistry(t,
		&stub{name: "a", meta: map[string]any{"replicas": 2, "ports": []int{8080}, "image": "api:1"}},
		&stub{name: "b"},
		&stub{name: "c", meta: map[string]any{"hook": make(chan int)}},
	)
	out, err := strategy.NewGenerator(reg).Generate(context.Background(), buildCtx, strategy.Request{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(out.Candidates))
	}
	want := map[string]any{"replicas": 2.0, "ports": []any{8080.0}, "image": "api:1"}
	if diff := cmp.Diff(want, out.Candidates[0].Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if out.Candidates[1].Metadata != nil {
		t.Errorf("nil metadata became %v", out.Candidates[1].Metadata)
	}
	if _, ok := out.Failures["c"]; !ok {
		t.Errorf("unencodable metadata not recorded as a failure: %v", out.Failures)
	}
}
