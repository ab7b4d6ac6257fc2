// Package cmd implements the corpus command-line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/koopa0/corpus/internal/app"
	"github.com/koopa0/corpus/internal/config"
	"github.com/koopa0/corpus/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "corpus",
	Short: "corpus - document indexing and retrieval for RAG",
	Long: `corpus keeps a directory or Google Drive folder indexed in a
pgvector-backed store and answers similarity queries against it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(
		newIngestCmd(),
		newWatchCmd(),
		newSearchCmd(),
		newRemoveCmd(),
		newSourcesCmd(),
		newMemoryCmd(),
		newVersionCmd(),
	)
}

// initLogger builds the process logger. DEBUG in the environment turns
// on debug-level output.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}

// setupApp loads configuration, validates it, and initializes the full
// application. The returned App must be closed by the caller.
func setupApp(ctx context.Context) (*app.App, error) {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}
