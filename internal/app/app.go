// Package app wires the application together: configuration, database,
// embedding provider, stores, pipeline, and watchers.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/corpus/internal/config"
	"github.com/koopa0/corpus/internal/embed"
	"github.com/koopa0/corpus/internal/ingest"
	"github.com/koopa0/corpus/internal/log"
	"github.com/koopa0/corpus/internal/memory"
	"github.com/koopa0/corpus/internal/retrieve"
	"github.com/koopa0/corpus/internal/store"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	EmbedClient  *embed.Client
	Store        *store.Gateway
	Memory       *memory.Store
	Orchestrator *ingest.Orchestrator
	Retriever    *retrieve.Tool

	dbCleanup func()
}

// Close releases all resources. Safe to call on a partially initialized
// App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	return nil
}
