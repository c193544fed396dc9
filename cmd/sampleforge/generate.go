package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/internal/pipeline"
	"github.com/sampleforge/sampleforge/internal/publish"
	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
	"github.com/sampleforge/sampleforge/pkg/surface"
)

type generateOpts struct {
	contextPath    string
	sessionID      string
	strategies     []string
	candidateCount int
	minScore       int
	mustInclude    []string
	mustNotInclude []string
	prefer         string
	truncate       string
	ttl            time.Duration
	bypassCache    bool
	outputFmt      string
	showContent    bool
	summary        bool

	githubTarget       string
	githubInstallation int64
	githubAPI          string
}

func newGenerateCmd(g *globalOpts) *cobra.Command {
	var opts generateOpts

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate candidates for a context and pick the best one",
		Long: `Reads a context document (YAML or JSON), runs every configured strategy
for its artifact kind, scores the candidates and prints the winner with its
ranking and rationale.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), g, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.contextPath, "context", "", "Path to the context document (required)")
	f.StringVar(&opts.sessionID, "session", "", "Session ID used as the cache key (overrides the document)")
	f.StringSliceVar(&opts.strategies, "strategies", nil, "Strategies to run (default: configured or all for the kind)")
	f.IntVar(&opts.candidateCount, "count", -1, "Maximum candidates to keep (default: configured)")
	f.IntVar(&opts.minScore, "min-score", 0, "Reject candidates below this total")
	f.StringSliceVar(&opts.mustInclude, "must-include", nil, "Tags every eligible candidate must carry")
	f.StringSliceVar(&opts.mustNotInclude, "must-not-include", nil, "Tags that disqualify a candidate")
	f.StringVar(&opts.prefer, "prefer", "", "Preferred strategy among eligible candidates")
	f.StringVar(&opts.truncate, "truncate", "", "Truncation policy: invocation-order or best-score")
	f.DurationVar(&opts.ttl, "ttl", 0, "Cache TTL for the result (default: configured)")
	f.BoolVar(&opts.bypassCache, "no-cache", false, "Skip the cache lookup (the result is still stored)")
	f.StringVar(&opts.outputFmt, "output", "text", "Output format: text, markdown or json")
	f.BoolVar(&opts.showContent, "show-content", false, "Print the winning artifact below the ranking")
	f.BoolVar(&opts.summary, "summary", false, "Print the Markdown summary as JSON (title, body, conclusion)")
	f.StringVar(&opts.githubTarget, "github-check", "", "Publish the summary as a check run on owner/repo@sha (needs GITHUB_APP_ID and GITHUB_PRIVATE_KEY)")
	f.Int64Var(&opts.githubInstallation, "github-installation", 0, "GitHub App installation ID for --github-check")
	f.StringVar(&opts.githubAPI, "github-api", "", "GitHub API base URL (default: https://api.github.com)")
	_ = cmd.MarkFlagRequired("context")

	return cmd
}

func runGenerate(ctx context.Context, g *globalOpts, opts generateOpts, stdout, stderr io.Writer) error {
	gctx, err := artifact.LoadContext(opts.contextPath, opts.sessionID)
	if err != nil {
		return err
	}
	if opts.sessionID != "" {
		gctx.SessionID = opts.sessionID
	}

	var target publish.Target
	if opts.githubTarget != "" {
		if target, err = publish.ParseTarget(opts.githubTarget, opts.githubInstallation); err != nil {
			return err
		}
	}

	a, logger, err := buildApp(ctx, g)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	popts, err := a.Defaults(gctx.Kind)
	if err != nil {
		return err
	}
	if err := applyGenerateFlags(&popts, opts); err != nil {
		return err
	}

	fmt.Fprintf(stderr, "Generating %s candidates", gctx.Kind)
	if gctx.SessionID != "" {
		fmt.Fprintf(stderr, " for session %s", gctx.SessionID)
	}
	fmt.Fprintln(stderr, "...")

	res, err := a.Orchestrator.GenerateBest(ctx, gctx, popts)
	if err != nil {
		return fmt.Errorf("generating %s: %w", gctx.Kind, err)
	}
	if err := render(stdout, res, opts); err != nil {
		return err
	}

	if opts.githubTarget == "" {
		return nil
	}
	pub, err := newPublisher(os.Getenv, opts.githubAPI, logger)
	if err != nil {
		return err
	}
	summary := (&surface.MarkdownRenderer{}).BuildSummary(res)
	if err := pub.PublishCheckRun(ctx, target, summary); err != nil {
		return fmt.Errorf("publishing check run: %w", err)
	}
	fmt.Fprintf(stderr, "Published check run to %s/%s@%s\n", target.Owner, target.Repo, target.HeadSHA)
	return nil
}

// newPublisher builds a GitHub publisher from GITHUB_APP_ID and
// GITHUB_PRIVATE_KEY (PEM contents or a path to the PEM file).
func newPublisher(getenv func(string) string, apiURL string, logger *zap.Logger) (*publish.GitHubPublisher, error) {
	appID, err := strconv.ParseInt(getenv("GITHUB_APP_ID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("GITHUB_APP_ID: %w", err)
	}
	key := getenv("GITHUB_PRIVATE_KEY")
	if key == "" {
		return nil, fmt.Errorf("GITHUB_PRIVATE_KEY is not set")
	}
	pemBytes := []byte(key)
	if !strings.HasPrefix(key, "-----BEGIN") {
		if pemBytes, err = os.ReadFile(key); err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
	}
	opts := []publish.Option{publish.WithLogger(logger.Named("publish"))}
	if apiURL != "" {
		opts = append(opts, publish.WithBaseURL(apiURL))
	}
	return publish.NewGitHubPublisher(appID, pemBytes, opts...)
}

// applyGenerateFlags layers explicitly set flags over the configured
// defaults.
func applyGenerateFlags(popts *pipeline.Options, opts generateOpts) error {
	if len(opts.strategies) > 0 {
		popts.Strategies = opts.strategies
	}
	if opts.candidateCount >= 0 {
		popts.CandidateCount = opts.candidateCount
	}
	if opts.ttl > 0 {
		popts.TTL = opts.ttl
	}
	if opts.truncate != "" {
		t, err := pipeline.ParseTruncation(opts.truncate)
		if err != nil {
			return err
		}
		popts.Truncate = t
	}
	popts.BypassCache = opts.bypassCache
	popts.Constraints = sampling.Constraints{
		MinScore:          opts.minScore,
		MustInclude:       opts.mustInclude,
		MustNotInclude:    opts.mustNotInclude,
		PreferredStrategy: opts.prefer,
	}
	return nil
}

func render(w io.Writer, res *sampling.Result, opts generateOpts) error {
	if opts.summary {
		return (&surface.MarkdownRenderer{}).RenderSummary(w, res)
	}
	var renderer surface.Renderer
	if opts.outputFmt == "text" || opts.outputFmt == "" {
		renderer = &surface.TerminalRenderer{ShowContent: opts.showContent}
	} else {
		var err error
		if renderer, err = surface.ForFormat(opts.outputFmt); err != nil {
			return err
		}
	}
	if err := renderer.Render(w, res); err != nil {
		return fmt.Errorf("rendering: %w", err)
	}
	return nil
}
