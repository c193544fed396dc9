package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
)

// Request selects strategies and bounds how many candidates are kept.
type Request struct {
	// Strategies names the strategies to run. Empty means every strategy
	// registered for the context's kind.
	Strategies []string
	// Count caps the number of candidates kept, by invocation ordinal.
	// Zero keeps every success.
	Count int
}

// Outcome is the result of one fan-out. Candidates are ordered by
// invocation ordinal regardless of completion order.
type Outcome struct {
	Candidates []artifact.Candidate
	Requested  []string
	Failures   map[string]error
	TimedOut   bool
	Truncated  int
}

// Succeeded returns the names of strategies that produced a kept candidate.
func (o Outcome) Succeeded() []string {
	names := make([]string, len(o.Candidates))
	for i, c := range o.Candidates {
		names[i] = c.StrategyName
	}
	return names
}

// FailedNames returns the failed strategy names in invocation order.
func (o Outcome) FailedNames() []string {
	var names []string
	for _, name := range o.Requested {
		if _, ok := o.Failures[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Generator runs strategies concurrently and gathers their candidates.
type Generator struct {
	registry *Registry
	logger   *zap.Logger
	limit    int
	now      func() time.Time
	newID    func() string
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger used for strategy failures.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// WithConcurrency bounds how many strategies run at once. n <= 0 means
// unbounded.
func WithConcurrency(n int) GeneratorOption {
	return func(g *Generator) { g.limit = n }
}

// WithClock overrides the timestamp source for GeneratedAt.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// WithIDFunc overrides candidate ID generation.
func WithIDFunc(f func() string) GeneratorOption {
	return func(g *Generator) { g.newID = f }
}

// NewGenerator creates a Generator over reg.
func NewGenerator(reg *Registry, opts ...GeneratorOption) *Generator {
	g := &Generator{
		registry: reg,
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type taskResult struct {
	ordinal int
	name    string
	out     Output
	err     error
	at      time.Time
}

// Generate invokes every resolved strategy for gctx once. A failing
// strategy is logged and recorded without affecting the others. When ctx
// expires, tasks still in flight are abandoned and the outcome carries
// whatever finished in time. If nothing succeeds the returned error is a
// *sampling.NoCandidatesError and the outcome is still populated.
func (g *Generator) Generate(ctx context.Context, gctx artifact.Context, req Request) (Outcome, error) {
	strategies, err := g.registry.Resolve(gctx.Kind, req.Strategies)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{
		Requested: make([]string, len(strategies)),
		Failures:  make(map[string]error),
	}
	for i, s := range strategies {
		outcome.Requested[i] = s.Name()
	}
	if len(strategies) == 0 {
		return outcome, &sampling.NoCandidatesError{Kind: gctx.Kind}
	}

	results := make(chan taskResult, len(strategies))
	var eg errgroup.Group
	if g.limit > 0 {
		eg.SetLimit(g.limit)
	}
	go func() {
		for i, s := range strategies {
			eg.Go(func() error {
				results <- g.invoke(ctx, i, s, gctx)
				return nil
			})
		}
		_ = eg.Wait()
		close(results)
	}()

	got := g.collect(ctx, results)

	for i, s := range strategies {
		name := s.Name()
		r, ok := got[i]
		switch {
		case !ok:
			outcome.TimedOut = true
			cause := ctx.Err()
			if cause == nil {
				cause = context.DeadlineExceeded
			}
			g.recordFailure(&outcome, name, cause)
		case r.err != nil:
			if cerr := ctx.Err(); cerr != nil && errors.Is(r.err, cerr) {
				outcome.TimedOut = true
			}
			g.recordFailure(&outcome, name, r.err)
		case strings.TrimSpace(r.out.Content) == "":
			g.recordFailure(&outcome, name, fmt.Errorf("empty content"))
		default:
			md, err := jsonMetadata(r.out.Metadata)
			if err != nil {
				g.recordFailure(&outcome, name, err)
				continue
			}
			outcome.Candidates = append(outcome.Candidates, artifact.Candidate{
				ID:           g.newID(),
				StrategyName: name,
				Kind:         gctx.Kind,
				Content:      r.out.Content,
				Features:     r.out.Features,
				Metadata:     md,
				Ordinal:      i,
				GeneratedAt:  r.at,
			})
		}
	}

	if req.Count > 0 && len(outcome.Candidates) > req.Count {
		outcome.Truncated = len(outcome.Candidates) - req.Count
		outcome.Candidates = outcome.Candidates[:req.Count]
	}

	if len(outcome.Candidates) == 0 {
		return outcome, &sampling.NoCandidatesError{
			Kind:      gctx.Kind,
			Requested: outcome.Requested,
			Failures:  outcome.Failures,
			TimedOut:  outcome.TimedOut,
		}
	}
	return outcome, nil
}

// jsonMetadata converts strategy metadata to the types it decodes to from
// JSON (numbers as float64, lists as []any) so cached results compare equal
// to fresh ones.
func jsonMetadata(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return out, nil
}

// collect reads results until the channel closes or ctx is done. On
// cancellation, results already buffered are still taken.
func (g *Generator) collect(ctx context.Context, results <-chan taskResult) map[int]taskResult {
	got := make(map[int]taskResult)
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return got
			}
			got[r.ordinal] = r
		case <-ctx.Done():
			for {
				select {
				case r, ok := <-results:
					if !ok {
						return got
					}
					got[r.ordinal] = r
				default:
					return got
				}
			}
		}
	}
}

func (g *Generator) invoke(ctx context.Context, ordinal int, s Strategy, gctx artifact.Context) (r taskResult) {
	r = taskResult{ordinal: ordinal, name: s.Name()}
	defer func() {
		if p := recover(); p != nil {
			r.err = fmt.Errorf("panic: %v", p)
		}
	}()
	if err := ctx.Err(); err != nil {
		r.err = err
		return r
	}
	r.out, r.err = s.Generate(ctx, gctx)
	r.at = g.now()
	return r
}

func (g *Generator) recordFailure(o *Outcome, name string, cause error) {
	o.Failures[name] = cause
	g.logger.Warn("strategy failed",
		zap.String("strategy", name),
		zap.Error(&sampling.StrategyError{Strategy: name, Err: cause}),
	)
}
