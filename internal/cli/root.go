// Package cli provides the command-line interface for knowbase.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/knowbase/internal/config"
	"github.com/raphaelgruber/knowbase/internal/db"
	"github.com/raphaelgruber/knowbase/internal/job"
	"github.com/raphaelgruber/knowbase/internal/llm"
	"github.com/raphaelgruber/knowbase/internal/pipeline"
	"github.com/raphaelgruber/knowbase/internal/service"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, logging and db client
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	dbClient   *db.Client

	// Lazy-initialized embedder and controller
	embedder   *llm.Embedder
	controller *service.Controller
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "knowbase",
	Short: "Knowledge base ingestion pipeline",
	Long: `Knowbase ingests websites, YouTube transcripts, PDFs and markdown
folders into searchable knowledge bases.

Content runs through a fixed pipeline - loading, chunking, embedding,
indexing - with pausable, cancellable jobs and per-phase progress.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)

		ctx := context.Background()
		dbCfg := db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
		}

		dbClient, err = db.NewClient(ctx, dbCfg, cfg.EmbedDimension, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		if err := dbClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// getController builds the controller stack. Commands that run the
// pipeline pass requireEmbedder=true; registry-only commands skip the
// embedding backend entirely.
func getController(ctx context.Context, requireEmbedder bool) (*service.Controller, error) {
	if controller != nil {
		return controller, nil
	}

	var orchEmbedder pipeline.Embedder
	if requireEmbedder {
		var err error
		embedder, err = llm.NewEmbedder(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
		orchEmbedder = embedder
	}

	store := job.NewStore(dbClient, logger)
	orch := pipeline.New(store, orchEmbedder, dbClient, pipeline.Config{
		EmbedWorkers:     cfg.EmbedWorkers,
		EmbedBatchSize:   cfg.EmbedBatchSize,
		IndexBatchSize:   cfg.IndexBatchSize,
		WatchdogInterval: cfg.WatchdogInterval,
		MaxFailureRatio:  cfg.MaxFailureRatio,
	}, logger)
	controller = service.NewController(dbClient, store, orch, logger)
	return controller, nil
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(kbCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(jobsCmd)
}
