// Package ingest orchestrates the indexing pipeline: delete previous
// state, extract text, chunk, embed, and persist.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/koopa0/corpus/internal/chunker"
	"github.com/koopa0/corpus/internal/extract"
	"github.com/koopa0/corpus/internal/store"
)

// Store is the persistence surface the orchestrator needs.
// *store.Gateway satisfies it.
type Store interface {
	DeleteSource(ctx context.Context, sourceID string) error
	UpsertSource(ctx context.Context, meta store.SourceMeta) error
	InsertChunks(ctx context.Context, sourceID string, chunks []store.Chunk) error
	InsertRows(ctx context.Context, sourceID string, rows []store.Row) error
}

// Embedder converts texts into vectors. *embed.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Request describes one source to ingest.
type Request struct {
	SourceID  string
	Data      []byte
	MimeType  string
	Filename  string
	Title     string
	OriginURL string

	// Metadata is attached to every chunk produced from this source.
	Metadata map[string]string
}

// Orchestrator runs the ingestion pipeline. Concurrent calls for
// different sources proceed in parallel; calls for the same source id
// are serialized.
type Orchestrator struct {
	store    Store
	embedder Embedder
	chunker  *chunker.Chunker
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Orchestrator.
func New(st Store, embedder Embedder, ch *chunker.Chunker, logger *slog.Logger) (*Orchestrator, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if ch == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    st,
		embedder: embedder,
		chunker:  ch,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// sourceLock returns the mutex serializing ingestion for one source id.
// Locks are retained for the process lifetime; the set of source ids is
// bounded by the corpus size.
func (o *Orchestrator) sourceLock(sourceID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[sourceID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[sourceID] = l
	}
	return l
}

// Ingest runs the full pipeline for one source. Re-ingesting the same
// source id with identical input is idempotent: previous chunks and rows
// are removed unconditionally before the new version is written.
//
// A failure at any step aborts the remaining steps; the source may be
// left partially indexed and must be retried in full.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) error {
	if req.SourceID == "" {
		return fmt.Errorf("source ID is required")
	}

	lock := o.sourceLock(req.SourceID)
	lock.Lock()
	defer lock.Unlock()

	o.logger.Info("ingesting source",
		"source_id", req.SourceID, "mime_type", req.MimeType, "bytes", len(req.Data))

	if err := o.store.DeleteSource(ctx, req.SourceID); err != nil {
		return fmt.Errorf("clearing previous version of %s: %w", req.SourceID, err)
	}

	var schema []string
	var rows []store.Row
	if extract.IsTabular(req.MimeType, req.Filename) {
		schema, rows = extractRows(req.Data)
	}

	meta := store.SourceMeta{
		ID:        req.SourceID,
		Title:     req.Title,
		OriginURL: req.OriginURL,
		MimeType:  req.MimeType,
		Schema:    schema,
	}
	if meta.Title == "" {
		meta.Title = req.Filename
	}
	if err := o.store.UpsertSource(ctx, meta); err != nil {
		return fmt.Errorf("upserting source metadata: %w", err)
	}

	// Rows reference the source row, so they go in after the upsert.
	// Best-effort: a row insert failure does not abort the text path.
	if len(rows) > 0 {
		if err := o.store.InsertRows(ctx, req.SourceID, rows); err != nil {
			o.logger.Warn("row indexing failed, continuing with text path",
				"source_id", req.SourceID, "error", err)
		} else {
			o.logger.Debug("rows indexed", "source_id", req.SourceID, "rows", len(rows))
		}
	}

	text, err := extract.Extract(req.Data, req.MimeType, req.Filename)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", req.SourceID, err)
	}

	chunks := o.chunker.Chunk(text)
	if len(chunks) == 0 {
		// Legitimately empty or tabular-only source.
		o.logger.Debug("no text chunks produced", "source_id", req.SourceID)
		return nil
	}

	vectors, err := o.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding %s: %w", req.SourceID, err)
	}

	records := make([]store.Chunk, len(chunks))
	for i, content := range chunks {
		records[i] = store.Chunk{
			SourceID:  req.SourceID,
			Index:     i,
			Content:   content,
			Embedding: vectors[i],
			Metadata:  req.Metadata,
		}
	}
	if err := o.store.InsertChunks(ctx, req.SourceID, records); err != nil {
		return fmt.Errorf("inserting chunks for %s: %w", req.SourceID, err)
	}

	o.logger.Info("source ingested", "source_id", req.SourceID, "chunks", len(records))
	return nil
}

// extractRows parses tabular data into a schema and row records.
// Best-effort: a parse failure yields an empty schema and no rows.
func extractRows(data []byte) ([]string, []store.Row) {
	schema := extract.Schema(data)
	if len(schema) == 0 {
		return nil, nil
	}

	records := extract.Rows(data)
	rows := make([]store.Row, len(records))
	for i, rec := range records {
		rows[i] = store.Row{Index: i, Fields: rec}
	}
	return schema, rows
}

// Delete removes all indexed state for a source. Deleting an unknown
// source id is not an error.
func (o *Orchestrator) Delete(ctx context.Context, sourceID string) error {
	if sourceID == "" {
		return fmt.Errorf("source ID is required")
	}

	lock := o.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	if err := o.store.DeleteSource(ctx, sourceID); err != nil {
		return fmt.Errorf("deleting source %s: %w", sourceID, err)
	}
	o.logger.Info("source deleted", "source_id", sourceID)
	return nil
}
