package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sampleforge/sampleforge/internal/resultcache"
	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/config"
)

func TestBuildAndGenerate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Backend = resultcache.BackendLocal
	cfg.Cache.Dir = t.TempDir()
	cfg.Sampling.Strategies["build-image"] = []string{"standard", "security-hardened"}

	reg := prometheus.NewRegistry()
	a, err := Build(context.Background(), cfg, nil, reg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.ContentGen != nil {
		t.Error("expected no content client without a URL")
	}

	gctx := artifact.Context{Kind: artifact.KindBuildImage, SessionID: "s-1", Language: "go", AppName: "api"}
	opts, err := a.Defaults(gctx.Kind)
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	res, err := a.Orchestrator.GenerateBest(context.Background(), gctx, opts)
	if err != nil {
		t.Fatalf("GenerateBest: %v", err)
	}
	if diff := cmp.Diff([]string{"standard", "security-hardened"}, res.Metadata.StrategiesUsed); diff != "" {
		t.Errorf("strategies used mismatch (-want +got):\n%s", diff)
	}

	again, err := a.Orchestrator.GenerateBest(context.Background(), gctx, opts)
	if err != nil {
		t.Fatalf("second GenerateBest: %v", err)
	}
	if !again.Metadata.FromCache {
		t.Error("expected the second run to be served from the local cache")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected metrics to be registered")
	}
}

func TestCachedResultMatchesFresh(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, config.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	gctx := artifact.Context{
		Kind:        artifact.KindManifest,
		SessionID:   "rt-1",
		Language:    "go",
		AppName:     "shop",
		Ports:       []int{8080},
		Environment: "production",
	}
	opts, err := a.Defaults(gctx.Kind)
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	res, err := a.Orchestrator.GenerateBest(ctx, gctx, opts)
	if err != nil {
		t.Fatalf("GenerateBest: %v", err)
	}

	got, ok := a.Cache.Get(ctx, gctx.Kind, gctx.SessionID)
	if !ok {
		t.Fatal("expected the result to be written through")
	}
	if diff := cmp.Diff(res, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("cached result differs (-fresh +cached):\n%s", diff)
	}
}

func TestDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sampling.CandidateCount = 2
	cfg.Sampling.Truncate = "best-score"
	cfg.Cache.TTL = 5 * time.Minute
	a, err := Build(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	opts, err := a.Defaults(artifact.KindManifest)
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	if opts.CandidateCount != 2 || opts.TTL != 5*time.Minute || opts.Truncate != "best-score" {
		t.Errorf("unexpected defaults: %+v", opts)
	}
	if opts.Strategies != nil {
		t.Errorf("expected nil strategies, got %v", opts.Strategies)
	}
	if len(opts.Criteria) == 0 {
		t.Error("expected preset criteria")
	}
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Backend = "etcd"
	if _, err := Build(context.Background(), cfg, nil, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestCacheConfig(t *testing.T) {
	got := CacheConfig(config.CacheConfig{Backend: "local", Prefix: "p/"})
	if got.Dir != config.CacheDir() {
		t.Errorf("expected local backend to default to %s, got %s", config.CacheDir(), got.Dir)
	}
	got = CacheConfig(config.CacheConfig{Backend: "s3", S3Bucket: "b", S3Region: "eu-west-1"})
	want := resultcache.S3Config{Bucket: "b", Region: "eu-west-1"}
	if diff := cmp.Diff(want, got.S3); diff != "" {
		t.Errorf("s3 config mismatch (-want +got):\n%s", diff)
	}
	if got.Dir != "" {
		t.Errorf("expected no dir for s3, got %q", got.Dir)
	}
}
