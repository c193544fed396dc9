// Command sampleforged is the SampleForge platform service.
// It serves the generation API, Prometheus metrics and a health check.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sampleforge/sampleforge/internal/api"
	"github.com/sampleforge/sampleforge/internal/app"
	"github.com/sampleforge/sampleforge/internal/logging"
	"github.com/sampleforge/sampleforge/internal/telemetry"
	"github.com/sampleforge/sampleforge/pkg/config"
)

type serverConfig struct {
	Port         string
	ConfigFile   string
	APIKey       string
	RateLimit    float64 // requests per second; 0 disables
	RateBurst    int
	OTLPEndpoint string
	OTLPInsecure bool
}

func loadServerConfig() (serverConfig, error) {
	cfg := serverConfig{
		Port:         envOrDefault("PORT", "8080"),
		ConfigFile:   os.Getenv("SAMPLEFORGE_CONFIG"),
		APIKey:       os.Getenv("SAMPLEFORGE_API_KEY"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure: os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
	}
	var err error
	if cfg.RateLimit, err = strconv.ParseFloat(envOrDefault("SAMPLEFORGE_RATE_LIMIT", "0"), 64); err != nil {
		return cfg, fmt.Errorf("SAMPLEFORGE_RATE_LIMIT: %w", err)
	}
	if cfg.RateBurst, err = strconv.Atoi(envOrDefault("SAMPLEFORGE_RATE_BURST", "10")); err != nil {
		return cfg, fmt.Errorf("SAMPLEFORGE_RATE_BURST: %w", err)
	}
	return cfg, nil
}

// loadSamplingConfig reads the optional config file, then applies
// environment overrides. The daemon logs JSON unless told otherwise.
func loadSamplingConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Logging.Format = "json"
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sampleforged: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	srvCfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	cfg, err := loadSamplingConfig(srvCfg.ConfigFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, "sampleforged", srvCfg.OTLPEndpoint, srvCfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.Build(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	var limiter *rate.Limiter
	if srvCfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(srvCfg.RateLimit), srvCfg.RateBurst)
	}
	handler := api.NewServer(a, logger.Named("http"), api.ServerOptions{
		APIKey:  srvCfg.APIKey,
		Limiter: limiter,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	srv := &http.Server{
		Addr:              ":" + srvCfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting sampleforged",
			zap.String("port", srvCfg.Port),
			zap.String("cache", cfg.Cache.Backend),
			zap.Bool("contentgen", a.ContentGen != nil),
			zap.Bool("tracing", srvCfg.OTLPEndpoint != ""))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
