package pipeline

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/internal/events"
	"github.com/sampleforge/sampleforge/internal/metrics"
	"github.com/sampleforge/sampleforge/internal/resultcache"
	"github.com/sampleforge/sampleforge/pkg/sampling"
	"github.com/sampleforge/sampleforge/pkg/selection"
)

// Truncation decides which candidates are discarded when more succeed than
// were asked for.
type Truncation string

const (
	// TruncateInvocationOrder keeps the first N by invocation ordinal,
	// before scoring.
	TruncateInvocationOrder Truncation = "invocation-order"
	// TruncateBestScore scores every candidate and keeps the best N.
	TruncateBestScore Truncation = "best-score"
)

// ParseTruncation converts a configuration string. Empty means
// invocation-order.
func ParseTruncation(s string) (Truncation, error) {
	switch t := Truncation(s); t {
	case "":
		return TruncateInvocationOrder, nil
	case TruncateInvocationOrder, TruncateBestScore:
		return t, nil
	}
	return "", fmt.Errorf("unknown truncation policy %q (want invocation-order or best-score)", s)
}

// Options are the per-request knobs of GenerateBest.
type Options struct {
	// Strategies to run; empty runs every strategy registered for the kind.
	Strategies []string
	// CandidateCount caps the candidates kept. Zero keeps all.
	CandidateCount int
	// Criteria overrides the kind's preset rubric when non-nil.
	Criteria    sampling.Criteria
	Constraints sampling.Constraints
	// TTL for the cached result. Zero uses the orchestrator default.
	TTL time.Duration
	// BypassCache skips the lookup. The fresh result is still stored.
	BypassCache bool
	Truncate    Truncation
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables result caching.
func WithCache(c *resultcache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithTieBreaker sets the tie-break policy and margin.
func WithTieBreaker(tb selection.TieBreaker) Option {
	return func(o *Orchestrator) { o.tieBreaker = tb }
}

// WithTimeout sets the pipeline deadline. Zero means no deadline beyond
// the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithDefaultTTL sets the cache TTL used when a request names none.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *Orchestrator) { o.defaultTTL = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the Prometheus recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithEvents sets the decision event sink.
func WithEvents(s events.Sink) Option {
	return func(o *Orchestrator) { o.events = s }
}

// WithTracer overrides the tracer used for stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithClock overrides the time source for metadata timestamps and
// durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}
