package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/internal/api"
)

func newServeCmd(g *globalOpts) *cobra.Command {
	var (
		port   string
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a local API server",
		Long: `Starts an HTTP server on localhost exposing the generation API with the
local configuration. The hosted deployment uses sampleforged instead.

Usage:
  sampleforge serve --port 7700
  curl -d @request.json localhost:7700/api/v1/generate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), g, port, apiKey)
		},
	}

	cmd.Flags().StringVar(&port, "port", "7700", "Port to serve on")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Require this X-API-Key on API requests")

	return cmd
}

func runServe(ctx context.Context, g *globalOpts, port, apiKey string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, logger, err := buildApp(ctx, g)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	srv := &http.Server{
		Addr:              "127.0.0.1:" + port,
		Handler:           api.NewServer(a, logger, api.ServerOptions{APIKey: apiKey}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "SampleForge API listening on http://%s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}
