// Package events publishes sampling decisions (tie-breaks, constraint
// fallbacks, strategy failures) so operators can audit why a candidate won.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

// Type classifies an event.
type Type string

const (
	TypeTieBreak           Type = "tie_break"
	TypeConstraintFallback Type = "constraint_fallback"
	TypeStrategyFailed     Type = "strategy_failed"
	TypeCandidateDropped   Type = "candidate_dropped"
	TypeCacheHit           Type = "cache_hit"
	TypeCompleted          Type = "completed"
)

// Event is one decision record.
type Event struct {
	Type      Type           `json:"type"`
	Kind      artifact.Kind  `json:"kind"`
	SessionID string         `json:"session_id,omitempty"`
	At        time.Time      `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink receives events. Emit must not block for long; the pipeline treats
// sink errors as non-fatal.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }

// LogSink writes events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.String("kind", string(e.Kind)),
		zap.Time("at", e.At),
	}
	if e.SessionID != "" {
		fields = append(fields, zap.String("session", e.SessionID))
	}
	if len(e.Data) > 0 {
		fields = append(fields, zap.Any("data", e.Data))
	}
	s.logger.Info("sampling event", fields...)
	return nil
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
