package resultcache

import (
	"context"
	"fmt"

	"github.com/sampleforge/sampleforge/internal/platform"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendLocal    = "local"
	BackendS3       = "s3"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string
	Prefix      string
	RedisURL    string
	Dir         string
	S3          S3Config
	GCSBucket   string
	PostgresDSN string
}

// Open builds the configured backend. The postgres backend migrates its
// schema before returning.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryBackend(nil), nil
	case BackendRedis:
		return NewRedisBackend(ctx, cfg.RedisURL, cfg.Prefix)
	case BackendLocal:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("cache backend %s requires a directory", cfg.Backend)
		}
		return NewBlobBackend(NewLocalStore(cfg.Dir), cfg.Prefix, nil), nil
	case BackendS3:
		store, err := NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewBlobBackend(store, cfg.Prefix, nil), nil
	case BackendGCS:
		store, err := NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, err
		}
		return NewBlobBackend(store, cfg.Prefix, nil), nil
	case BackendPostgres:
		db, err := OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := platform.AutoMigrate(db); err != nil {
			db.Close()
			return nil, err
		}
		return NewPostgresBackend(db, nil), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}
