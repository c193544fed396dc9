package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/selection"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Sampling.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", cfg.Sampling.Timeout)
	}
	if cfg.TieBreak.Policy != "stable-first" || cfg.TieBreak.Margin != 5 {
		t.Errorf("unexpected tie-break defaults: %+v", cfg.TieBreak)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL != time.Hour {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Scoring.Criteria == nil {
		t.Error("expected Criteria map to be initialized, got nil")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "non-existent file returns defaults",
			yaml: "", // signal: don't create a file
			check: func(t *testing.T, cfg *Config) {
				if cfg.Sampling.Concurrency != 4 {
					t.Errorf("expected default concurrency 4, got %d", cfg.Sampling.Concurrency)
				}
			},
		},
		{
			name: "valid YAML overrides defaults",
			yaml: `
sampling:
  candidate_count: 3
  timeout: 45s
  truncate: best-score
  strategies:
    build-image: [standard, security-hardened]
tie_break:
  policy: metadata
  margin: 2
  metadata_field: replicas
scoring:
  criteria:
    analysis:
      accuracy:
        weight: 0.9
cache:
  backend: redis
  ttl: 10m
  redis_url: redis://localhost:6379/0
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Sampling.CandidateCount != 3 || cfg.Sampling.Timeout != 45*time.Second {
					t.Errorf("sampling not applied: %+v", cfg.Sampling)
				}
				if diff := cmp.Diff([]string{"standard", "security-hardened"}, cfg.StrategiesFor(artifact.KindBuildImage)); diff != "" {
					t.Errorf("strategies mismatch (-want +got):\n%s", diff)
				}
				want := selection.TieBreaker{Policy: selection.PolicyMetadata, Margin: 2, MetadataField: "replicas"}
				if diff := cmp.Diff(want, cfg.TieBreaker()); diff != "" {
					t.Errorf("tie-breaker mismatch (-want +got):\n%s", diff)
				}
				criteria, err := cfg.Criteria(artifact.KindAnalysis)
				if err != nil {
					t.Fatalf("Criteria: %v", err)
				}
				if criteria["accuracy"].Weight != 0.9 {
					t.Errorf("expected accuracy weight 0.9, got %v", criteria["accuracy"].Weight)
				}
				if cfg.Cache.Backend != "redis" || cfg.Cache.TTL != 10*time.Minute {
					t.Errorf("cache not applied: %+v", cfg.Cache)
				}
				// Untouched sections keep their defaults.
				if cfg.Logging.Level != "info" {
					t.Errorf("expected default log level, got %q", cfg.Logging.Level)
				}
			},
		},
		{
			name:    "invalid YAML returns error",
			yaml:    "sampling: [broken",
			wantErr: "parsing config",
		},
		{
			name:    "unknown tie-break policy",
			yaml:    "tie_break:\n  policy: coin-flip\n",
			wantErr: "tie_break",
		},
		{
			name:    "unknown truncation",
			yaml:    "sampling:\n  truncate: random\n",
			wantErr: "sampling.truncate",
		},
		{
			name:    "weight out of range",
			yaml:    "scoring:\n  criteria:\n    manifest:\n      security:\n        weight: 2\n",
			wantErr: "scoring.criteria.manifest",
		},
		{
			name:    "unknown kind in strategies",
			yaml:    "sampling:\n  strategies:\n    helm-chart: [x]\n",
			wantErr: "sampling.strategies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")

			if tt.yaml != "" {
				if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
					t.Fatalf("writing test config: %v", err)
				}
			}

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SAMPLEFORGE_CACHE_BACKEND":    "postgres",
		"SAMPLEFORGE_DATABASE_URL":     "postgres://localhost/sf",
		"SAMPLEFORGE_TIMEOUT":          "5s",
		"SAMPLEFORGE_CANDIDATE_COUNT":  "2",
		"SAMPLEFORGE_TIE_BREAK_MARGIN": "0",
		"SAMPLEFORGE_STRATEGIES":       "manifest=minimal, production;analysis=summary",
		"SAMPLEFORGE_LOG_FORMAT":       "json",
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Cache.Backend != "postgres" || cfg.Cache.PostgresDSN != "postgres://localhost/sf" {
		t.Errorf("cache env not applied: %+v", cfg.Cache)
	}
	if cfg.Sampling.Timeout != 5*time.Second || cfg.Sampling.CandidateCount != 2 {
		t.Errorf("sampling env not applied: %+v", cfg.Sampling)
	}
	if cfg.TieBreak.Margin != 0 {
		t.Errorf("expected margin 0, got %d", cfg.TieBreak.Margin)
	}
	want := map[string][]string{
		"manifest": {"minimal", "production"},
		"analysis": {"summary"},
	}
	if diff := cmp.Diff(want, cfg.Sampling.Strategies); diff != "" {
		t.Errorf("strategies mismatch (-want +got):\n%s", diff)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json log format, got %q", cfg.Logging.Format)
	}

	bad := []map[string]string{
		{"SAMPLEFORGE_TIMEOUT": "soon"},
		{"SAMPLEFORGE_CONCURRENCY": "many"},
		{"SAMPLEFORGE_STRATEGIES": "manifest"},
		{"SAMPLEFORGE_TIE_BREAK_POLICY": "coin-flip"},
	}
	for _, e := range bad {
		if err := DefaultConfig().ApplyEnv(func(k string) string { return e[k] }); err == nil {
			t.Errorf("ApplyEnv(%v): expected error", e)
		}
	}
}

func TestFindConfigFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	if got := FindConfigFile(nested); got != "" {
		t.Errorf("expected no config file, got %q", got)
	}

	cfgDir := filepath.Join(root, "a", ".sampleforge")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(cfgDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("sampling: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if got := FindConfigFile(nested); got != cfgPath {
		t.Errorf("FindConfigFile = %q, want %q", got, cfgPath)
	}
}

func TestCacheDir(t *testing.T) {
	dir := CacheDir()
	if !strings.HasSuffix(dir, filepath.Join(".cache", "sampleforge", "results")) {
		t.Errorf("unexpected cache dir %q", dir)
	}
}
