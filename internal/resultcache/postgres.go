package resultcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresBackend stores entries in the cached_results table created by
// platform.AutoMigrate.
type PostgresBackend struct {
	db  *sql.DB
	now Clock
}

// OpenPostgres opens a lib/pq connection pool and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresBackend wraps an open database. A nil clock uses time.Now.
func NewPostgresBackend(db *sql.DB, now Clock) *PostgresBackend {
	if now == nil {
		now = time.Now
	}
	return &PostgresBackend{db: db, now: now}
}

func (p *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cached_results WHERE key = $1`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("select cached result: %w", err)
	}
	if expiresAt.Valid && expired(expiresAt.Time, p.now()) {
		if _, err := p.db.ExecContext(ctx,
			`DELETE FROM cached_results WHERE key = $1 AND expires_at = $2`, key, expiresAt.Time,
		); err != nil {
			return nil, fmt.Errorf("delete expired result: %w", err)
		}
		return nil, ErrMiss
	}
	return value, nil
}

func (p *PostgresBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := p.now()
	var expiresAt sql.NullTime
	if e := expiry(now, ttl); !e.IsZero() {
		expiresAt = sql.NullTime{Time: e, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO cached_results (key, value, stored_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, stored_at = EXCLUDED.stored_at, expires_at = EXCLUDED.expires_at`,
		key, value, now, expiresAt)
	if err != nil {
		return fmt.Errorf("upsert cached result: %w", err)
	}
	return nil
}

// Invalidate deletes rows whose key matches the glob, translated into a
// POSIX regular expression for the '~' operator.
func (p *PostgresBackend) Invalidate(ctx context.Context, pattern string) (int, error) {
	re, err := GlobRegexp(pattern)
	if err != nil {
		return 0, err
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM cached_results WHERE key ~ $1`, re)
	if err != nil {
		return 0, fmt.Errorf("invalidate cached results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Purge removes every expired row.
func (p *PostgresBackend) Purge(ctx context.Context) (int, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM cached_results WHERE expires_at IS NOT NULL AND expires_at <= $1`, p.now())
	if err != nil {
		return 0, fmt.Errorf("purge cached results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (p *PostgresBackend) Close() error {
	return p.db.Close()
}
