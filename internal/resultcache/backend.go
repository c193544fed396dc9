package resultcache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Backend.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Backend is a byte-oriented key/value store with expiry. A ttl of zero or
// less stores the value without expiry. Invalidate removes every key
// matching the glob pattern and reports how many were removed.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) (int, error)
	Close() error
}

// Clock returns the current time. Backends that evaluate expiry themselves
// take one so tests can move time forward.
type Clock func() time.Time

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

// Purger is implemented by backends that keep expired entries until they
// are read. Purge removes them eagerly. Redis expires keys itself.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}
