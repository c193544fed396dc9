package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/internal/pipeline"
	"github.com/sampleforge/sampleforge/pkg/sampling"
)

func TestGenerateCmdFlags(t *testing.T) {
	cmd := newGenerateCmd(&globalOpts{})
	f := cmd.Flags()

	outputFmt, _ := f.GetString("output")
	if outputFmt != "text" {
		t.Errorf("default output = %q, want text", outputFmt)
	}
	count, _ := f.GetInt("count")
	if count != -1 {
		t.Errorf("default count = %d, want -1", count)
	}

	for _, flag := range []string{"context", "session", "strategies", "count", "min-score", "must-include",
		"must-not-include", "prefer", "truncate", "ttl", "no-cache", "output", "show-content", "summary",
		"github-check", "github-installation", "github-api"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestRootCmd(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"generate", "strategies", "cache", "serve"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("missing subcommand %s", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"a", "b", "c"}, "a"},
		{[]string{"", "b", "c"}, "b"},
		{[]string{"", "", "c"}, "c"},
		{[]string{"", "", ""}, ""},
	}

	for _, tt := range tests {
		got := firstNonEmpty(tt.args...)
		if got != tt.want {
			t.Errorf("firstNonEmpty(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestInvalidationPattern(t *testing.T) {
	tests := []struct {
		session, kind, pattern string
		want                   string
		wantErr                bool
	}{
		{session: "s1", want: "*://s1/variants"},
		{kind: "manifest", want: "manifest://*/variants"},
		{session: "s1", kind: "analysis", want: "analysis://s1/variants"},
		{pattern: "build-image://*", want: "build-image://*"},
		{pattern: "*", session: "s1", wantErr: true},
		{pattern: "[oops", wantErr: true},
		{kind: "helm", wantErr: true},
		{wantErr: true},
	}
	for _, tt := range tests {
		got, err := invalidationPattern(tt.session, tt.kind, tt.pattern)
		if tt.wantErr {
			if err == nil {
				t.Errorf("invalidationPattern(%q, %q, %q): expected error", tt.session, tt.kind, tt.pattern)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("invalidationPattern(%q, %q, %q) = %q, %v; want %q", tt.session, tt.kind, tt.pattern, got, err, tt.want)
		}
	}
}

func TestApplyGenerateFlags(t *testing.T) {
	popts := pipeline.Options{Strategies: []string{"standard"}, CandidateCount: 4}
	err := applyGenerateFlags(&popts, generateOpts{
		candidateCount: -1,
		minScore:       70,
		mustInclude:    []string{"non-root"},
		truncate:       "best-score",
		bypassCache:    true,
	})
	if err != nil {
		t.Fatalf("applyGenerateFlags: %v", err)
	}
	want := pipeline.Options{
		Strategies:     []string{"standard"},
		CandidateCount: 4,
		Constraints:    sampling.Constraints{MinScore: 70, MustInclude: []string{"non-root"}},
		BypassCache:    true,
		Truncate:       pipeline.TruncateBestScore,
	}
	if diff := cmp.Diff(want, popts); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	if err := applyGenerateFlags(&popts, generateOpts{truncate: "random"}); err == nil {
		t.Error("expected error for unknown truncation")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGenerateEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", `
cache:
  backend: local
  dir: `+filepath.Join(dir, "cache")+`
sampling:
  strategies:
    build-image: [standard, multi-stage, security-hardened]
`)
	ctxPath := writeFile(t, dir, "context.yaml", `
kind: build-image
session_id: cli-1
app_name: api
language: go
ports: [8080]
`)

	run := func(args ...string) string {
		t.Helper()
		root := newRootCmd()
		var out, errOut bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&errOut)
		root.SetArgs(append([]string{"--config", cfgPath}, args...))
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: %v (stderr: %s)", args, err, errOut.String())
		}
		return out.String()
	}

	var res sampling.Result
	if err := json.Unmarshal([]byte(run("generate", "--context", ctxPath, "--output", "json")), &res); err != nil {
		t.Fatalf("decoding JSON output: %v", err)
	}
	if res.SessionID != "cli-1" || len(res.Candidates) != 3 {
		t.Errorf("unexpected result: session=%s candidates=%d", res.SessionID, len(res.Candidates))
	}

	var cached sampling.Result
	if err := json.Unmarshal([]byte(run("generate", "--context", ctxPath, "--output", "json")), &cached); err != nil {
		t.Fatalf("decoding JSON output: %v", err)
	}
	if !cached.Metadata.FromCache {
		t.Error("expected the second run to hit the local cache")
	}

	if out := run("cache", "purge"); !strings.Contains(out, "Purged 0") {
		t.Errorf("unexpected purge output: %q", out)
	}
	if out := run("cache", "invalidate", "--session", "cli-1"); !strings.Contains(out, "Removed 1") {
		t.Errorf("unexpected invalidate output: %q", out)
	}

	if out := run("generate", "--context", ctxPath, "--output", "markdown"); !strings.Contains(out, "### Ranking") {
		t.Errorf("markdown output missing ranking:\n%s", out)
	}

	if out := run("strategies", "--kind", "build-image"); !strings.Contains(out, "security-hardened") {
		t.Errorf("strategies output missing security-hardened:\n%s", out)
	}
}

func TestNewPublisherEnv(t *testing.T) {
	env := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}
	logger := zap.NewNop()

	if _, err := newPublisher(env(nil), "", logger); err == nil {
		t.Error("expected error without GITHUB_APP_ID")
	}
	if _, err := newPublisher(env(map[string]string{"GITHUB_APP_ID": "12"}), "", logger); err == nil {
		t.Error("expected error without GITHUB_PRIVATE_KEY")
	}
	missing := filepath.Join(t.TempDir(), "missing.pem")
	if _, err := newPublisher(env(map[string]string{"GITHUB_APP_ID": "12", "GITHUB_PRIVATE_KEY": missing}), "", logger); err == nil {
		t.Error("expected error for unreadable key file")
	}
}
