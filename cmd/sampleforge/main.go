// Package main provides the sampleforge CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/internal/app"
	"github.com/sampleforge/sampleforge/internal/logging"
	"github.com/sampleforge/sampleforge/pkg/config"
)

var version = "dev"

// globalOpts are the persistent flags shared by every subcommand.
type globalOpts struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalOpts{}
	rootCmd := &cobra.Command{
		Use:   "sampleforge",
		Short: "Best-of-N generation for deployment artifacts",
		Long: `SampleForge runs several generation strategies for the same context,
scores every candidate against a weighted rubric and returns the best one
with a full explanation of why it won.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to config file (default: search for .sampleforge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newGenerateCmd(g),
		newStrategiesCmd(g),
		newCacheCmd(g),
		newServeCmd(g),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the explicit config file, or the nearest
// .sampleforge/config.yaml above the working directory.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		path = config.FindConfigFile(cwd)
	}
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// buildApp loads configuration and wires a runtime with a console logger.
func buildApp(ctx context.Context, g *globalOpts) (*app.App, *zap.Logger, error) {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(firstNonEmpty(g.logLevel, cfg.Logging.Level), "console")
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Build(ctx, cfg, logger, nil)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return a, logger, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
