package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerConfig(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SAMPLEFORGE_RATE_LIMIT", "2.5")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

	cfg, err := loadServerConfig()
	if err != nil {
		t.Fatalf("loadServerConfig: %v", err)
	}
	if cfg.Port != "9090" || cfg.RateLimit != 2.5 || cfg.RateBurst != 10 || !cfg.OTLPInsecure {
		t.Errorf("unexpected server config: %+v", cfg)
	}

	t.Setenv("SAMPLEFORGE_RATE_BURST", "lots")
	if _, err := loadServerConfig(); err == nil {
		t.Error("expected error for malformed burst")
	}
}

func TestLoadSamplingConfig(t *testing.T) {
	t.Run("defaults log json", func(t *testing.T) {
		cfg, err := loadSamplingConfig("")
		if err != nil {
			t.Fatalf("loadSamplingConfig: %v", err)
		}
		if cfg.Logging.Format != "json" {
			t.Errorf("format = %q, want json", cfg.Logging.Format)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("sampling:\n  timeout: 10s\ncache:\n  backend: redis\n"), 0644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("SAMPLEFORGE_CACHE_BACKEND", "memory")

		cfg, err := loadSamplingConfig(path)
		if err != nil {
			t.Fatalf("loadSamplingConfig: %v", err)
		}
		if cfg.Sampling.Timeout != 10*time.Second {
			t.Errorf("timeout = %s, want 10s", cfg.Sampling.Timeout)
		}
		if cfg.Cache.Backend != "memory" {
			t.Errorf("backend = %q, want memory", cfg.Cache.Backend)
		}
	})

	t.Run("invalid env", func(t *testing.T) {
		t.Setenv("SAMPLEFORGE_TIE_BREAK_POLICY", "coin-flip")
		if _, err := loadSamplingConfig(""); err == nil {
			t.Error("expected error for unknown policy")
		}
	})
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("SAMPLEFORGE_TEST_VALUE", "set")
	if got := envOrDefault("SAMPLEFORGE_TEST_VALUE", "x"); got != "set" {
		t.Errorf("envOrDefault = %q, want set", got)
	}
	if got := envOrDefault("SAMPLEFORGE_TEST_UNSET", "x"); got != "x" {
		t.Errorf("envOrDefault = %q, want x", got)
	}
}
