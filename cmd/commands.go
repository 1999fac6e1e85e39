package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/meghashyamc/searchsync/api"
	"github.com/meghashyamc/searchsync/config"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/models"
	"github.com/meghashyamc/searchsync/services/syncer"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "searchsync",
		Short:         "Keep a search index in sync with the posts database and serve queries over it",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	rootCmd.AddCommand(newServeCmd(), newSyncCmd(), newRebuildIndexCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return api.Run(ctx, cfg)
}

func newSyncCmd() *cobra.Command {
	opts := syncer.Options{}
	var incremental bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy posts from the source database into the search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if incremental {
				opts.Mode = models.SyncModeIncremental
			}

			return withDependencies(cmd.Context(), func(ctx context.Context, deps *api.Dependencies) error {
				run, err := deps.Syncer.Run(ctx, opts)
				if run != nil {
					encoder := json.NewEncoder(cmd.OutOrStdout())
					encoder.SetIndent("", "  ")
					if encodeErr := encoder.Encode(run); encodeErr != nil {
						return encodeErr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&incremental, "incremental", false, "only sync posts modified in the last --days days")
	cmd.Flags().IntVar(&opts.Days, "days", syncer.DefaultDays, "window for an incremental sync")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", syncer.DefaultBatchSize, "records fetched per batch")
	cmd.Flags().BoolVar(&opts.ForceAll, "force-all", false, "include unpublished posts")
	cmd.Flags().BoolVar(&opts.ClearExisting, "clear-existing", false, "delete every indexed document before syncing")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "map and count records without writing to the index")
	cmd.MarkFlagsMutuallyExclusive("incremental", "force-all")

	return cmd
}

func newRebuildIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index",
		Short: "Drop and recreate the search index with the current mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd.Context(), func(ctx context.Context, deps *api.Dependencies) error {
				indexName := deps.Config.GetIndexName()
				if err := deps.SearchDB.RebuildIndex(indexName); err != nil {
					return err
				}
				deps.Search.InvalidateResults(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "rebuilt index %s\n", indexName)
				return nil
			})
		},
	}
}

func withDependencies(ctx context.Context, fn func(ctx context.Context, deps *api.Dependencies) error) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	deps, err := api.OpenDependencies(ctx, cfg, logger.New(cfg.GetLogLevel()))
	if err != nil {
		return err
	}
	defer deps.Close()

	return fn(ctx, deps)
}
