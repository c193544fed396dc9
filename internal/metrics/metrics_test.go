package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sampleforge/sampleforge/internal/metrics"
	"github.com/sampleforge/sampleforge/pkg/artifact"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m.PipelineRun(artifact.KindManifest, "ok")
	m.StrategyResult(artifact.KindManifest, "minimal", true)
	m.StrategyResult(artifact.KindManifest, "ai-assisted", false)
	m.CacheHit(artifact.KindManifest)
	m.CacheMiss(artifact.KindManifest)
	m.CacheMiss(artifact.KindManifest)
	m.CacheError("get")
	m.TieBreak(artifact.KindManifest, "stable-first")
	m.ConstraintFallback(artifact.KindManifest)
	m.ObserveStage("score", 20*time.Millisecond)
	m.ObserveScore(artifact.KindManifest, 77)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"sampleforge_pipeline_runs_total", map[string]string{"outcome": "ok"}, 1},
		{"sampleforge_strategy_results_total", map[string]string{"strategy": "ai-assisted", "outcome": "failed"}, 1},
		{"sampleforge_cache_lookups_total", map[string]string{"result": "miss"}, 2},
		{"sampleforge_cache_lookups_total", map[string]string{"result": "hit"}, 1},
		{"sampleforge_cache_errors_total", map[string]string{"op": "get"}, 1},
		{"sampleforge_tie_breaks_total", map[string]string{"policy": "stable-first"}, 1},
		{"sampleforge_constraint_fallbacks_total", nil, 1},
	}
	for _, tt := range tests {
		if got := counterValue(t, reg, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestMetricsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := metrics.New(reg); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := metrics.New(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *metrics.Metrics
	m.PipelineRun(artifact.KindAnalysis, "ok")
	m.CacheHit(artifact.KindAnalysis)
	m.ObserveStage("generate", time.Second)
}
