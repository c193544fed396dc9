// Package pipeline runs one sampling request end to end: cache lookup,
// concurrent generation, scoring, constrained selection and write-through.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/internal/events"
	"github.com/sampleforge/sampleforge/internal/metrics"
	"github.com/sampleforge/sampleforge/internal/resultcache"
	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
	"github.com/sampleforge/sampleforge/pkg/scoring"
	"github.com/sampleforge/sampleforge/pkg/selection"
	"github.com/sampleforge/sampleforge/pkg/strategy"
)

const (
	tracerName      = "github.com/sampleforge/sampleforge/internal/pipeline"
	cacheIOTimeout  = 5 * time.Second
	DefaultCacheTTL = time.Hour
)

// Orchestrator wires the generator, scoring engine, selector and cache.
type Orchestrator struct {
	generator  *strategy.Generator
	engine     *scoring.Engine
	cache      *resultcache.Cache
	tieBreaker selection.TieBreaker
	timeout    time.Duration
	defaultTTL time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
	events     events.Sink
	tracer     trace.Tracer
	now        func() time.Time
}

// New creates an Orchestrator.
func New(gen *strategy.Generator, engine *scoring.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator:  gen,
		engine:     engine,
		tieBreaker: selection.TieBreaker{Policy: selection.PolicyStableFirst, Margin: 5},
		defaultTTL: DefaultCacheTTL,
		logger:     zap.NewNop(),
		events:     events.Nop{},
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GenerateBest produces candidates for gctx, scores them and returns the
// winner with full provenance. Invalid contexts, options and strategy
// selections match ErrInvalidRequest. Generation outcomes are
// *sampling.NoCandidatesError and sampling.ErrNoSuitableCandidate. Anything
// else is an internal failure.
// When the pipeline deadline expires, candidates finished in time are
// still scored and returned.
func (o *Orchestrator) GenerateBest(ctx context.Context, gctx artifact.Context, opts Options) (*sampling.Result, error) {
	ctx, span := o.tracer.Start(ctx, "sampling.GenerateBest", trace.WithAttributes(
		attribute.String("sampling.kind", string(gctx.Kind)),
		attribute.String("sampling.session", gctx.SessionID),
	))
	defer span.End()

	res, outcome, err := o.run(ctx, gctx, opts)
	o.metrics.PipelineRun(gctx.Kind, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("sampling failed",
			zap.String("kind", string(gctx.Kind)),
			zap.String("session", gctx.SessionID),
			zap.Error(err))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sampling.best", res.Best.StrategyName),
		attribute.Int("sampling.best_score", res.Best.Score.Total),
		attribute.Bool("sampling.from_cache", res.Metadata.FromCache),
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, gctx artifact.Context, opts Options) (*sampling.Result, string, error) {
	if err := gctx.Validate(); err != nil {
		return nil, "error", invalidRequest(fmt.Errorf("invalid context: %w", err))
	}
	truncate, err := ParseTruncation(string(opts.Truncate))
	if err != nil {
		return nil, "error", invalidRequest(err)
	}
	criteria := opts.Criteria
	if criteria == nil {
		criteria = scoring.Preset(gctx.Kind)
	}
	if err := scoring.ValidateCriteria(criteria); err != nil {
		return nil, "error", invalidRequest(fmt.Errorf("invalid criteria: %w", err))
	}

	if cached, ok := o.lookup(ctx, gctx, opts); ok {
		return cached, "cached", nil
	}

	deadlineCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		deadlineCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	// Generation.
	genStart := o.now()
	req := strategy.Request{Strategies: opts.Strategies}
	if truncate == TruncateInvocationOrder {
		req.Count = opts.CandidateCount
	}
	outcome, err := o.generate(deadlineCtx, gctx, req)
	genDuration := o.now().Sub(genStart)
	var selErr *strategy.SelectionError
	if errors.As(err, &selErr) {
		return nil, "error", invalidRequest(err)
	}
	if err != nil {
		return nil, "error", err
	}

	// Scoring survives the deadline so that finished candidates still count.
	scoreCtx := context.WithoutCancel(ctx)
	scoreStart := o.now()
	report, err := o.score(scoreCtx, gctx, outcome.Candidates, criteria)
	scoreDuration := o.now().Sub(scoreStart)
	if err != nil {
		return nil, "error", err
	}
	ranked := report.Scored
	if truncate == TruncateBestScore && opts.CandidateCount > 0 && len(ranked) > opts.CandidateCount {
		o.logger.Debug("truncating by score",
			zap.Int("kept", opts.CandidateCount),
			zap.Int("discarded", len(ranked)-opts.CandidateCount))
		ranked = ranked[:opts.CandidateCount]
	}
	if len(ranked) == 0 {
		return nil, "error", &sampling.NoCandidatesError{
			Kind:      gctx.Kind,
			Requested: outcome.Requested,
			Failures:  mergeFailures(outcome, report),
			TimedOut:  outcome.TimedOut,
		}
	}

	sel, err := o.selectBest(scoreCtx, gctx, ranked, opts.Constraints)
	if err != nil {
		return nil, "error", err
	}

	meta := sampling.Metadata{
		StrategiesUsed:       strategiesOf(ranked),
		StrategiesFailed:     failedStrategies(outcome, report),
		GenerationDurationMs: genDuration.Milliseconds(),
		ScoringDurationMs:    scoreDuration.Milliseconds(),
		GeneratedAt:          o.now(),
		TimedOut:             outcome.TimedOut,
		ConstraintFallback:   sel.Fallback,
		TieBreak:             sel.Decision.Record(),
	}
	res, err := sampling.NewResult(gctx.Kind, gctx.SessionID, ranked, sel.Best, criteria, meta)
	if err != nil {
		return nil, "error", err
	}

	o.store(scoreCtx, res, opts)
	o.emit(scoreCtx, gctx, events.TypeCompleted, map[string]any{
		"best":       res.Best.ID,
		"strategy":   res.Best.StrategyName,
		"score":      res.Best.Score.Total,
		"candidates": len(res.Candidates),
		"timed_out":  res.Metadata.TimedOut,
	})
	o.logger.Info("sampling complete",
		zap.String("kind", string(gctx.Kind)),
		zap.String("session", gctx.SessionID),
		zap.String("best", res.Best.StrategyName),
		zap.Int("score", res.Best.Score.Total),
		zap.Int("candidates", len(res.Candidates)),
		zap.Bool("timed_out", res.Metadata.TimedOut))
	return res, "ok", nil
}

func (o *Orchestrator) lookup(ctx context.Context, gctx artifact.Context, opts Options) (*sampling.Result, bool) {
	if o.cache == nil || gctx.SessionID == "" || opts.BypassCache {
		return nil, false
	}
	ctx, span := o.tracer.Start(ctx, "sampling.cache_lookup")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, cacheIOTimeout)
	defer cancel()
	res, ok := o.cache.Get(ctx, gctx.Kind, gctx.SessionID)
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	if !ok {
		return nil, false
	}
	res.Metadata.FromCache = true
	o.emit(ctx, gctx, events.TypeCacheHit, map[string]any{"best": res.Best.ID})
	o.logger.Debug("cache hit", zap.String("kind", string(gctx.Kind)), zap.String("session", gctx.SessionID))
	return res, true
}

func (o *Orchestrator) generate(ctx context.Context, gctx artifact.Context, req strategy.Request) (strategy.Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "sampling.generate")
	defer span.End()
	start := o.now()
	defer func() { o.metrics.ObserveStage("generate", o.now().Sub(start)) }()

	outcome, err := o.generator.Generate(ctx, gctx, req)
	for _, name := range outcome.Succeeded() {
		o.metrics.StrategyResult(gctx.Kind, name, true)
	}
	for _, name := range outcome.FailedNames() {
		o.metrics.StrategyResult(gctx.Kind, name, false)
		o.emit(context.WithoutCancel(ctx), gctx, events.TypeStrategyFailed, map[string]any{
			"strategy": name,
			"error":    outcome.Failures[name].Error(),
		})
	}
	span.SetAttributes(
		attribute.Int("sampling.requested", len(outcome.Requested)),
		attribute.Int("sampling.succeeded", len(outcome.Candidates)),
		attribute.Int("sampling.failed", len(outcome.Failures)),
		attribute.Bool("sampling.timed_out", outcome.TimedOut),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var nce *sampling.NoCandidatesError
		if errors.As(err, &nce) {
			return outcome, err
		}
		return outcome, fmt.Errorf("generate candidates: %w", err)
	}
	return outcome, nil
}

func (o *Orchestrator) score(ctx context.Context, gctx artifact.Context, candidates []artifact.Candidate, criteria sampling.Criteria) (*scoring.Report, error) {
	ctx, span := o.tracer.Start(ctx, "sampling.score")
	defer span.End()
	start := o.now()
	defer func() { o.metrics.ObserveStage("score", o.now().Sub(start)) }()

	report, err := o.engine.ScoreAll(ctx, candidates, gctx, criteria)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("score candidates: %w", err)
	}
	for _, sc := range report.Scored {
		o.metrics.ObserveScore(gctx.Kind, sc.Score.Total)
	}
	for _, c := range candidates {
		if cause, ok := report.Dropped[c.ID]; ok {
			o.emit(ctx, gctx, events.TypeCandidateDropped, map[string]any{
				"candidate": c.ID,
				"strategy":  c.StrategyName,
				"error":     cause.Error(),
			})
		}
	}
	span.SetAttributes(
		attribute.Int("sampling.scored", len(report.Scored)),
		attribute.Int("sampling.dropped", len(report.Dropped)),
		attribute.Bool("sampling.early_stop", report.Stopped),
	)
	return report, nil
}

func (o *Orchestrator) selectBest(ctx context.Context, gctx artifact.Context, ranked []sampling.ScoredCandidate, c sampling.Constraints) (selection.Selection, error) {
	ctx, span := o.tracer.Start(ctx, "sampling.select")
	defer span.End()

	sel, err := selection.Select(ranked, c, o.tieBreaker)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return sel, err
	}
	for _, w := range sel.Warnings {
		o.logger.Warn(w, zap.String("kind", string(gctx.Kind)), zap.String("session", gctx.SessionID))
	}
	if sel.Fallback {
		o.metrics.ConstraintFallback(gctx.Kind)
		o.emit(ctx, gctx, events.TypeConstraintFallback, map[string]any{
			"constraints": selection.Describe(c),
			"winner":      sel.Best.ID,
		})
	}
	if rec := sel.Decision.Record(); rec != nil {
		o.metrics.TieBreak(gctx.Kind, rec.Strategy)
		o.emit(ctx, gctx, events.TypeTieBreak, map[string]any{
			"candidates":    rec.Candidates[:],
			"scores":        rec.Scores[:],
			"margin":        rec.Margin,
			"policy":        rec.Policy,
			"strategy_used": rec.Strategy,
			"winner":        rec.Winner,
		})
	}
	span.SetAttributes(
		attribute.String("sampling.winner", sel.Best.ID),
		attribute.Bool("sampling.fallback", sel.Fallback),
		attribute.Bool("sampling.tie_break", sel.Decision.Applied),
	)
	return sel, nil
}

// store writes the result through to the cache. Partial results from an
// expired deadline are not cached.
func (o *Orchestrator) store(ctx context.Context, res *sampling.Result, opts Options) {
	if o.cache == nil || res.SessionID == "" || res.Metadata.TimedOut {
		return
	}
	ctx, span := o.tracer.Start(ctx, "sampling.cache_store")
	defer span.End()

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = o.defaultTTL
	}
	ctx, cancel := context.WithTimeout(ctx, cacheIOTimeout)
	defer cancel()
	if err := o.cache.Put(ctx, res, ttl); err != nil {
		span.RecordError(err)
		o.logger.Warn("cache write failed",
			zap.String("kind", string(res.Kind)),
			zap.String("session", res.SessionID),
			zap.Error(err))
	}
}

func (o *Orchestrator) emit(ctx context.Context, gctx artifact.Context, t events.Type, data map[string]any) {
	e := events.Event{Type: t, Kind: gctx.Kind, SessionID: gctx.SessionID, At: o.now(), Data: data}
	if err := o.events.Emit(ctx, e); err != nil {
		o.logger.Warn("event not delivered", zap.String("event", string(t)), zap.Error(err))
	}
}

func strategiesOf(list []sampling.ScoredCandidate) []string {
	ordered := make([]sampling.ScoredCandidate, len(list))
	copy(ordered, list)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })
	names := make([]string, len(ordered))
	for i, sc := range ordered {
		names[i] = sc.StrategyName
	}
	return names
}

func failedStrategies(outcome strategy.Outcome, report *scoring.Report) []string {
	names := outcome.FailedNames()
	for _, c := range outcome.Candidates {
		if _, ok := report.Dropped[c.ID]; ok {
			names = append(names, c.StrategyName)
		}
	}
	return names
}

func mergeFailures(outcome strategy.Outcome, report *scoring.Report) map[string]error {
	out := make(map[string]error, len(outcome.Failures)+len(report.Dropped))
	for name, err := range outcome.Failures {
		out[name] = err
	}
	for _, c := range outcome.Candidates {
		if err, ok := report.Dropped[c.ID]; ok {
			out[c.StrategyName] = err
		}
	}
	return out
}
