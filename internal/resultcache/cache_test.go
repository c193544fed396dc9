package resultcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
)

type countingStats struct {
	hits, misses int
	errors       []string
}

func (s *countingStats) CacheHit(artifact.Kind)  { s.hits++ }
func (s *countingStats) CacheMiss(artifact.Kind) { s.misses++ }
func (s *countingStats) CacheError(op string)    { s.errors = append(s.errors, op) }

func sampleResult(t *testing.T, session string) *sampling.Result {
	t.Helper()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	best := sampling.ScoredCandidate{
		Candidate: artifact.Candidate{
			ID:           "c-1",
			StrategyName: "hardened",
			Kind:         artifact.KindManifest,
			Content:      "apiVersion: v1\nkind: Service\n",
			Features:     []string{"pdb", "non-root"},
			Metadata:     map[string]any{"replicas": 3.0, "image": "shop:1.0"},
			GeneratedAt:  at,
		},
		Score: sampling.Breakdown{Total: 91, PerCriterion: map[string]int{"security": 95, "reliability": 88}},
		Rank:  1,
	}
	second := sampling.ScoredCandidate{
		Candidate: artifact.Candidate{ID: "c-2", StrategyName: "minimal", Kind: artifact.KindManifest, Ordinal: 1, GeneratedAt: at},
		Score:     sampling.Breakdown{Total: 40, PerCriterion: map[string]int{"security": 30, "reliability": 50}},
		Rank:      2,
	}
	r, err := sampling.NewResult(artifact.KindManifest, session,
		[]sampling.ScoredCandidate{best, second}, best,
		sampling.Criteria{"security": {Weight: 0.5, MinScore: 50}, "reliability": {Weight: 0.5}},
		sampling.Metadata{StrategiesUsed: []string{"hardened", "minimal"}, GeneratedAt: at},
	)
	if err != nil {
		t.Fatalf("NewResult: %v", err)
	}
	return r
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	stats := &countingStats{}
	c := New(NewMemoryBackend(clock.Now), WithStats(stats))

	if _, ok := c.Get(ctx, artifact.KindManifest, "s1"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	want := sampleResult(t, "s1")
	if err := c.Put(ctx, want, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := c.Get(ctx, artifact.KindManifest, "s1")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	clock.Advance(time.Hour)
	if _, ok := c.Get(ctx, artifact.KindManifest, "s1"); ok {
		t.Error("expected miss after ttl")
	}
	if stats.hits != 1 || stats.misses != 2 {
		t.Errorf("hits=%d misses=%d, want 1 and 2", stats.hits, stats.misses)
	}
}

func TestCacheSkipsSessionlessResults(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend(nil)
	c := New(m)
	if err := c.Put(ctx, sampleResult(t, ""), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if m.Len() != 0 {
		t.Error("result without session was cached")
	}
}

type failingBackend struct{ MemoryBackend }

func (*failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestCacheErrorsAreMisses(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	stats := &countingStats{}
	c := New(&failingBackend{}, WithLogger(zap.New(core)), WithStats(stats))

	if _, ok := c.Get(context.Background(), artifact.KindAnalysis, "s"); ok {
		t.Fatal("expected miss")
	}
	if logs.FilterMessage("cache lookup failed").Len() != 1 {
		t.Errorf("expected one warning, got %v", logs.All())
	}
	if diff := cmp.Diff([]string{"get"}, stats.errors); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
}

func TestCacheUndecodableEntry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend(nil)
	_ = m.Set(ctx, Key(artifact.KindAnalysis, "s"), []byte("{not json"), 0)
	stats := &countingStats{}
	c := New(m, WithStats(stats))
	if _, ok := c.Get(ctx, artifact.KindAnalysis, "s"); ok {
		t.Fatal("expected miss for corrupt entry")
	}
	if diff := cmp.Diff([]string{"decode"}, stats.errors); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
}

func TestCacheInvalidateSession(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(nil))
	for _, s := range []string{"s1", "s2"} {
		r := sampleResult(t, s)
		if err := c.Put(ctx, r, 0); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	n, err := c.Invalidate(ctx, SessionPattern("s1"))
	if err != nil || n != 1 {
		t.Fatalf("Invalidate = %d, %v", n, err)
	}
	if _, ok := c.Get(ctx, artifact.KindManifest, "s1"); ok {
		t.Error("s1 still cached")
	}
	if _, ok := c.Get(ctx, artifact.KindManifest, "s2"); !ok {
		t.Error("s2 was invalidated")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Config{Backend: "etcd"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := Open(context.Background(), Config{Backend: BackendLocal}); err == nil {
		t.Error("expected error for local backend without a directory")
	}
	b, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Open default: %v", err)
	}
	if _, ok := b.(*MemoryBackend); !ok {
		t.Errorf("default backend = %T, want *MemoryBackend", b)
	}
}

func TestCachePing(t *testing.T) {
	if err := New(NewMemoryBackend(nil)).Ping(context.Background()); err != nil {
		t.Errorf("memory backend ping: %v", err)
	}
	if err := New(&failingBackend{}).Ping(context.Background()); err == nil {
		t.Error("expected ping to surface backend errors")
	}
}

// plainBackend hides the Purger implementation of the wrapped backend.
type plainBackend struct{ Backend }

func TestCachePurge(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewMemoryBackend(clock)
	if err := m.Set(ctx, Key(artifact.KindManifest, "old"), []byte("{}"), time.Millisecond); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Second)

	if n, err := New(plainBackend{m}).Purge(ctx); err != nil || n != 0 {
		t.Errorf("Purge on non-purging backend = %d, %v; want 0", n, err)
	}
	if n, err := New(m).Purge(ctx); err != nil || n != 1 {
		t.Errorf("Purge = %d, %v; want 1", n, err)
	}
	if m.Len() != 0 {
		t.Errorf("Len after purge = %d, want 0", m.Len())
	}
}
