package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
)

// Stats receives cache outcomes. internal/metrics implements it.
type Stats interface {
	CacheHit(kind artifact.Kind)
	CacheMiss(kind artifact.Kind)
	CacheError(op string)
}

type nopStats struct{}

func (nopStats) CacheHit(artifact.Kind)  {}
func (nopStats) CacheMiss(artifact.Kind) {}
func (nopStats) CacheError(string)       {}

// Cache stores sampling results as JSON on a Backend. Lookup failures are
// logged and reported as misses.
type Cache struct {
	backend Backend
	logger  *zap.Logger
	stats   Stats
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithStats sets the outcome recorder.
func WithStats(s Stats) Option {
	return func(c *Cache) { c.stats = s }
}

// New creates a Cache on backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{backend: backend, logger: zap.NewNop(), stats: nopStats{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached result for kind and session.
func (c *Cache) Get(ctx context.Context, kind artifact.Kind, sessionID string) (*sampling.Result, bool) {
	key := Key(kind, sessionID)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.stats.CacheError("get")
			c.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		c.stats.CacheMiss(kind)
		return nil, false
	}
	var r sampling.Result
	if err := json.Unmarshal(data, &r); err != nil {
		c.stats.CacheError("decode")
		c.stats.CacheMiss(kind)
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	c.stats.CacheHit(kind)
	return &r, true
}

// Put stores r under its kind and session. Results without a session are
// not cached.
func (c *Cache) Put(ctx context.Context, r *sampling.Result, ttl time.Duration) error {
	if r == nil || r.SessionID == "" {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		c.stats.CacheError("encode")
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.backend.Set(ctx, Key(r.Kind, r.SessionID), data, ttl); err != nil {
		c.stats.CacheError("set")
		return err
	}
	return nil
}

// Invalidate removes every entry whose key matches the glob pattern.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	n, err := c.backend.Invalidate(ctx, pattern)
	if err != nil {
		c.stats.CacheError("invalidate")
		return n, err
	}
	c.logger.Info("cache invalidated", zap.String("pattern", pattern), zap.Int("removed", n))
	return n, nil
}

// Purge drops expired entries from backends that implement Purger. Other
// backends report zero.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	p, ok := c.backend.(Purger)
	if !ok {
		return 0, nil
	}
	n, err := p.Purge(ctx)
	if err != nil {
		c.stats.CacheError("purge")
		return n, err
	}
	c.logger.Info("cache purged", zap.Int("removed", n))
	return n, nil
}

// Ping checks that the backend answers. A miss is a healthy answer.
func (c *Cache) Ping(ctx context.Context) error {
	_, err := c.backend.Get(ctx, Key("health", "ping"))
	if err != nil && !errors.Is(err, ErrMiss) {
		return err
	}
	return nil
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}
