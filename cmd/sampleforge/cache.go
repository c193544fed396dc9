package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sampleforge/sampleforge/internal/resultcache"
	"github.com/sampleforge/sampleforge/pkg/artifact"
)

func newCacheCmd(g *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached sampling results",
	}
	cmd.AddCommand(newCacheInvalidateCmd(g), newCachePurgeCmd(g))
	return cmd
}

func newCachePurgeCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired results from backends that do not expire entries themselves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logger, err := buildApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()

			n, err := a.Cache.Purge(cmd.Context())
			if err != nil {
				return fmt.Errorf("purging: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired result(s)\n", n)
			return nil
		},
	}
}

func newCacheInvalidateCmd(g *globalOpts) *cobra.Command {
	var (
		session string
		kind    string
		pattern string
	)

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Remove cached results by session, kind or glob pattern",
		Long: `Removes cached results from the configured backend. Keys have the form
<kind>://<session>/variants; --pattern takes a glob over that form where *
matches any run of characters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := invalidationPattern(session, kind, pattern)
			if err != nil {
				return err
			}
			a, logger, err := buildApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()

			n, err := a.Cache.Invalidate(cmd.Context(), p)
			if err != nil {
				return fmt.Errorf("invalidating %s: %w", p, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached result(s) matching %s\n", n, p)
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "Session ID")
	cmd.Flags().StringVar(&kind, "kind", "", "Artifact kind")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Raw glob over cache keys")

	return cmd
}

// invalidationPattern turns the selector flags into a cache key glob.
func invalidationPattern(session, kind, pattern string) (string, error) {
	if pattern != "" {
		if session != "" || kind != "" {
			return "", errors.New("--pattern cannot be combined with --session or --kind")
		}
		if _, err := resultcache.GlobRegexp(pattern); err != nil {
			return "", fmt.Errorf("invalid pattern: %w", err)
		}
		return pattern, nil
	}

	var k artifact.Kind
	if kind != "" {
		var err error
		if k, err = artifact.ParseKind(kind); err != nil {
			return "", err
		}
	}
	if session == "" && k == "" {
		return "", errors.New("one of --session, --kind or --pattern is required")
	}
	return resultcache.Pattern(k, session)
}
