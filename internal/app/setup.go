package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/koopa0/corpus/db"
	"github.com/koopa0/corpus/internal/chunker"
	"github.com/koopa0/corpus/internal/config"
	"github.com/koopa0/corpus/internal/database"
	"github.com/koopa0/corpus/internal/embed"
	"github.com/koopa0/corpus/internal/ingest"
	"github.com/koopa0/corpus/internal/log"
	"github.com/koopa0/corpus/internal/memory"
	"github.com/koopa0/corpus/internal/retrieve"
	"github.com/koopa0/corpus/internal/store"
	"github.com/koopa0/corpus/internal/watch"
)

// Setup creates and initializes the application. On error everything
// already initialized is released; on success call Close().
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, dbCleanup, err := database.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool
	a.dbCleanup = dbCleanup

	g, embedder, err := provideEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = embedder

	client, err := embed.New(embedder, cfg.EmbeddingDimension, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}
	a.EmbedClient = client

	gateway, err := store.New(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating store gateway: %w", err)
	}
	a.Store = gateway

	mem, err := memory.NewStore(pool, client, logger)
	if err != nil {
		return nil, fmt.Errorf("creating memory store: %w", err)
	}
	a.Memory = mem

	ch := chunker.New(
		chunker.WithChunkSize(cfg.ChunkSize),
		chunker.WithOverlap(cfg.ChunkOverlap),
	)
	orch, err := ingest.New(gateway, client, ch, logger)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	a.Orchestrator = orch

	tool, err := retrieve.New(gateway, client, cfg.RetrievalTopK, cfg.SimilarityThreshold, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retrieval tool: %w", err)
	}
	a.Retriever = tool

	return a, nil
}

// provideEmbedder initializes Genkit with the Google AI plugin and looks
// up the configured embedder model.
func provideEmbedder(ctx context.Context, cfg *config.Config) (*genkit.Genkit, ai.Embedder, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, nil, errors.New("initializing genkit with gemini provider")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	return g, embedder, nil
}

// MemoryScheduler builds the periodic expired-memory sweeper.
func (a *App) MemoryScheduler() *memory.Scheduler {
	return memory.NewScheduler(a.Memory, a.Logger)
}

// LocalWatcher builds the filesystem watcher from the configured watch
// directory.
func (a *App) LocalWatcher() (*watch.Local, error) {
	return watch.NewLocal(a.Config.WatchDir, a.Orchestrator, a.Config.DebounceWindow, a.Logger)
}

// DriveWatcher builds the Google Drive folder watcher. Credentials come
// from the configured service account file, or Application Default
// Credentials when unset.
func (a *App) DriveWatcher(ctx context.Context) (*watch.Drive, error) {
	var opts []option.ClientOption
	if a.Config.DriveCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(a.Config.DriveCredentialsFile))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return watch.NewDrive(svc, a.Config.DriveFolderID, a.Orchestrator, a.Config.PollInterval, a.Logger)
}
