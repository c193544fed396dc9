// Package app assembles a SampleForge runtime from configuration. The CLI
// and the daemon share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/internal/contentgen"
	"github.com/sampleforge/sampleforge/internal/events"
	"github.com/sampleforge/sampleforge/internal/metrics"
	"github.com/sampleforge/sampleforge/internal/pipeline"
	"github.com/sampleforge/sampleforge/internal/resultcache"
	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/config"
	"github.com/sampleforge/sampleforge/pkg/scoring"
	"github.com/sampleforge/sampleforge/pkg/strategy"
)

// App holds the wired components. Close releases the cache backend and
// the event connection.
type App struct {
	Config       *config.Config
	Registry     *strategy.Registry
	Cache        *resultcache.Cache
	Orchestrator *pipeline.Orchestrator
	Metrics      *metrics.Metrics
	Events       events.Sink
	ContentGen   *contentgen.Client // nil when no content service is configured

	closers []io.Closer
}

// Build wires every component described by cfg. reg may be nil, in which
// case no metrics are recorded.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg}

	if reg != nil {
		m, err := metrics.New(reg)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		a.Metrics = m
	}

	var gen strategy.ContentGenerator
	if cfg.ContentGen.URL != "" {
		client, err := contentgen.New(cfg.ContentGen.URL, cfg.ContentGen.APIKey,
			contentgen.WithHTTPClient(&http.Client{Timeout: cfg.ContentGen.Timeout}),
			contentgen.WithBreaker(contentgen.NewBreaker(cfg.ContentGen.FailureThreshold, 2, cfg.ContentGen.Cooldown)),
			contentgen.WithModel(cfg.ContentGen.Model),
			contentgen.WithLogger(logger.Named("contentgen")),
		)
		if err != nil {
			return nil, err
		}
		a.ContentGen = client
		gen = client
	}
	a.Registry = strategy.DefaultRegistry(gen)

	backend, err := resultcache.Open(ctx, CacheConfig(cfg.Cache))
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", cfg.Cache.Backend, err)
	}
	a.closers = append(a.closers, backend)
	cacheOpts := []resultcache.Option{resultcache.WithLogger(logger.Named("cache"))}
	if a.Metrics != nil {
		cacheOpts = append(cacheOpts, resultcache.WithStats(a.Metrics))
	}
	a.Cache = resultcache.New(backend, cacheOpts...)

	a.Events = events.NewLogSink(logger.Named("events"))
	if cfg.Events.NATSURL != "" {
		sink, err := events.NewNATSSink(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting event bus: %w", err)
		}
		a.closers = append(a.closers, sink)
		a.Events = events.Multi{a.Events, sink}
	}

	generator := strategy.NewGenerator(a.Registry,
		strategy.WithLogger(logger.Named("strategy")),
		strategy.WithConcurrency(cfg.Sampling.Concurrency),
	)
	engine := scoring.NewEngine(
		scoring.WithLogger(logger.Named("scoring")),
		scoring.WithEarlyStop(cfg.Sampling.EarlyStop),
	)
	a.Orchestrator = pipeline.New(generator, engine,
		pipeline.WithCache(a.Cache),
		pipeline.WithTieBreaker(cfg.TieBreaker()),
		pipeline.WithTimeout(cfg.Sampling.Timeout),
		pipeline.WithDefaultTTL(cfg.Cache.TTL),
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithMetrics(a.Metrics),
		pipeline.WithEvents(a.Events),
	)
	return a, nil
}

// Defaults returns the configured per-request options for kind.
func (a *App) Defaults(kind artifact.Kind) (pipeline.Options, error) {
	criteria, err := a.Config.Criteria(kind)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Strategies:     a.Config.StrategiesFor(kind),
		CandidateCount: a.Config.Sampling.CandidateCount,
		Criteria:       criteria,
		TTL:            a.Config.Cache.TTL,
		Truncate:       pipeline.Truncation(a.Config.Sampling.Truncate),
	}, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// CacheConfig maps the YAML cache section onto the backend configuration.
// The local backend falls back to the user cache directory.
func CacheConfig(c config.CacheConfig) resultcache.Config {
	dir := c.Dir
	if dir == "" && c.Backend == resultcache.BackendLocal {
		dir = config.CacheDir()
	}
	return resultcache.Config{
		Backend:  c.Backend,
		Prefix:   c.Prefix,
		RedisURL: c.RedisURL,
		Dir:      dir,
		S3: resultcache.S3Config{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
		},
		GCSBucket:   c.GCSBucket,
		PostgresDSN: c.PostgresDSN,
	}
}
