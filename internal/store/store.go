// Package store is the vector store gateway: it owns all reads and writes
// of source metadata, chunks and tabular rows in PostgreSQL + pgvector.
// No other component holds authoritative copies of this data.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Querier is the subset of *pgxpool.Pool the gateway uses.
// Consumer-defined so tests can substitute a fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// ErrStore indicates a datastore operation failed. Fatal for primary writes
// (chunk insert, metadata upsert, chunk delete); secondary cleanup failures
// are logged and swallowed instead. Check with errors.Is().
var ErrStore = errors.New("store operation failed")

// insertBatchSize bounds how many records go into one bulk-insert round
// trip, keeping statements under the backend's payload limits. Batching is
// internal to the gateway, transparent to callers.
const insertBatchSize = 200

// queryTimeout bounds a single similarity search.
const queryTimeout = 10 * time.Second

// Gateway manages sources, chunks and rows in PostgreSQL.
// Safe for concurrent use by multiple goroutines.
type Gateway struct {
	pool   Querier
	logger *slog.Logger
}

// New creates a Gateway on the given connection pool.
func New(pool Querier, logger *slog.Logger) (*Gateway, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{pool: pool, logger: logger}, nil
}

// DeleteSource removes all chunks, rows and the metadata record for the
// source id. Idempotent: deleting an absent id is not an error.
//
// Chunk deletion failure is fatal: stale chunks from a prior version of
// the source must never survive next to a new one. Row and metadata
// deletion are best-effort cleanup: failures are logged and swallowed.
func (g *Gateway) DeleteSource(ctx context.Context, sourceID string) error {
	if _, err := g.pool.Exec(ctx, `DELETE FROM chunks WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("%w: deleting chunks for %q: %v", ErrStore, sourceID, err)
	}

	if _, err := g.pool.Exec(ctx, `DELETE FROM source_rows WHERE source_id = $1`, sourceID); err != nil {
		g.logger.Warn("deleting rows", "source_id", sourceID, "error", err)
	}

	if _, err := g.pool.Exec(ctx, `DELETE FROM sources WHERE source_id = $1`, sourceID); err != nil {
		g.logger.Warn("deleting source metadata", "source_id", sourceID, "error", err)
	}

	g.logger.Debug("deleted source", "source_id", sourceID)
	return nil
}

// UpsertSource inserts the source metadata record or updates it in place.
func (g *Gateway) UpsertSource(ctx context.Context, meta SourceMeta) error {
	if meta.ID == "" {
		return fmt.Errorf("%w: source id is required", ErrStore)
	}

	var schemaJSON []byte
	if meta.Schema != nil {
		var err error
		schemaJSON, err = json.Marshal(meta.Schema)
		if err != nil {
			return fmt.Errorf("%w: marshaling schema: %v", ErrStore, err)
		}
	}

	_, err := g.pool.Exec(ctx,
		`INSERT INTO sources (source_id, title, origin_url, mime_type, schema, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (source_id) DO UPDATE
		 SET title = EXCLUDED.title,
		     origin_url = EXCLUDED.origin_url,
		     mime_type = EXCLUDED.mime_type,
		     schema = EXCLUDED.schema,
		     updated_at = now()`,
		meta.ID, meta.Title, meta.OriginURL, meta.MimeType, schemaJSON,
	)
	if err != nil {
		return fmt.Errorf("%w: upserting source %q: %v", ErrStore, meta.ID, err)
	}
	return nil
}

// InsertChunks bulk-inserts chunks with embeddings for one source.
// Callers must have upserted the source metadata first (foreign key) and
// deleted any prior chunks for the source.
func (g *Gateway) InsertChunks(ctx context.Context, sourceID string, chunks []Chunk) error {
	for start := 0; start < len(chunks); start += insertBatchSize {
		end := min(start+insertBatchSize, len(chunks))

		batch := &pgx.Batch{}
		for _, ch := range chunks[start:end] {
			metadataJSON, err := json.Marshal(ch.Metadata)
			if err != nil {
				return fmt.Errorf("%w: marshaling chunk metadata: %v", ErrStore, err)
			}
			embedding := pgvector.NewVector(ch.Embedding)
			batch.Queue(
				`INSERT INTO chunks (source_id, chunk_index, content, embedding, metadata)
				 VALUES ($1, $2, $3, $4, $5)`,
				sourceID, ch.Index, ch.Content, embedding, metadataJSON,
			)
		}

		if err := g.sendBatch(ctx, batch); err != nil {
			return fmt.Errorf("%w: inserting chunks for %q: %v", ErrStore, sourceID, err)
		}
	}

	g.logger.Debug("inserted chunks", "source_id", sourceID, "count", len(chunks))
	return nil
}

// InsertRows bulk-inserts tabular rows for one source.
// Same ordering dependency as InsertChunks.
func (g *Gateway) InsertRows(ctx context.Context, sourceID string, rows []Row) error {
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))

		batch := &pgx.Batch{}
		for _, row := range rows[start:end] {
			fieldsJSON, err := json.Marshal(row.Fields)
			if err != nil {
				return fmt.Errorf("%w: marshaling row data: %v", ErrStore, err)
			}
			batch.Queue(
				`INSERT INTO source_rows (source_id, row_index, row_data)
				 VALUES ($1, $2, $3)`,
				sourceID, row.Index, fieldsJSON,
			)
		}

		if err := g.sendBatch(ctx, batch); err != nil {
			return fmt.Errorf("%w: inserting rows for %q: %v", ErrStore, sourceID, err)
		}
	}

	g.logger.Debug("inserted rows", "source_id", sourceID, "count", len(rows))
	return nil
}

// sendBatch executes every statement of a batch and surfaces the first error.
func (g *Gateway) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	results := g.pool.SendBatch(ctx, batch)
	defer func() {
		if err := results.Close(); err != nil {
			g.logger.Debug("closing batch results", "error", err)
		}
	}()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// SimilaritySearch returns up to topK chunks whose cosine similarity to the
// query embedding is at least threshold, ordered by descending similarity.
// Ties break on insertion order (stable). filter, when non-nil, restricts
// results to chunks whose metadata contains every given key/value pair.
func (g *Gateway) SimilaritySearch(ctx context.Context, embedding []float32,
	topK int, threshold float64, filter map[string]string) ([]SearchResult, error) {

	if topK < 1 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrStore, topK)
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	vec := pgvector.NewVector(embedding)

	// Chunk ids are monotonically increasing, so ordering by id as a
	// secondary key preserves ingestion order among equal scores.
	query := `SELECT c.source_id, c.chunk_index, c.content, c.metadata, s.title,
	                 1 - (c.embedding <=> $1) AS similarity
	          FROM chunks c
	          JOIN sources s ON s.source_id = c.source_id
	          WHERE 1 - (c.embedding <=> $1) >= $2`
	args := []any{vec, threshold}

	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("%w: marshaling filter: %v", ErrStore, err)
		}
		query += ` AND c.metadata @> $3
	          ORDER BY c.embedding <=> $1, c.id ASC
	          LIMIT $4`
		args = append(args, filterJSON, topK)
	} else {
		query += `
	          ORDER BY c.embedding <=> $1, c.id ASC
	          LIMIT $3`
		args = append(args, topK)
	}

	rows, err := g.pool.Query(queryCtx, query, args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: similarity search timeout: %v", ErrStore, err)
		}
		return nil, fmt.Errorf("%w: similarity search: %v", ErrStore, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var metadataJSON []byte
		if err := rows.Scan(&r.SourceID, &r.ChunkIndex, &r.Content, &metadataJSON, &r.Title, &r.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scanning search result: %v", ErrStore, err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
				g.logger.Warn("parsing chunk metadata", "source_id", r.SourceID, "error", err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading search results: %v", ErrStore, err)
	}
	return results, nil
}

// GetSource fetches one source metadata record.
// Returns (nil, nil) when the source does not exist.
func (g *Gateway) GetSource(ctx context.Context, sourceID string) (*SourceMeta, error) {
	var meta SourceMeta
	var schemaJSON []byte
	err := g.pool.QueryRow(ctx,
		`SELECT source_id, title, origin_url, mime_type, schema
		 FROM sources WHERE source_id = $1`,
		sourceID,
	).Scan(&meta.ID, &meta.Title, &meta.OriginURL, &meta.MimeType, &schemaJSON)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: fetching source %q: %v", ErrStore, sourceID, err)
	}

	if len(schemaJSON) > 0 {
		if err := json.Unmarshal(schemaJSON, &meta.Schema); err != nil {
			return nil, fmt.Errorf("%w: parsing schema for %q: %v", ErrStore, sourceID, err)
		}
	}
	return &meta, nil
}

// ListSources returns all source metadata records, newest first.
func (g *Gateway) ListSources(ctx context.Context) ([]SourceMeta, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT source_id, title, origin_url, mime_type, schema
		 FROM sources ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing sources: %v", ErrStore, err)
	}
	defer rows.Close()

	var sources []SourceMeta
	for rows.Next() {
		var meta SourceMeta
		var schemaJSON []byte
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.OriginURL, &meta.MimeType, &schemaJSON); err != nil {
			return nil, fmt.Errorf("%w: scanning source: %v", ErrStore, err)
		}
		if len(schemaJSON) > 0 {
			if err := json.Unmarshal(schemaJSON, &meta.Schema); err != nil {
				g.logger.Warn("parsing source schema", "source_id", meta.ID, "error", err)
			}
		}
		sources = append(sources, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading sources: %v", ErrStore, err)
	}
	return sources, nil
}

// CountChunks returns how many chunks a source currently has.
func (g *Gateway) CountChunks(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := g.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE source_id = $1`, sourceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting chunks for %q: %v", ErrStore, sourceID, err)
	}
	return count, nil
}

// CountRows returns how many tabular rows a source currently has.
func (g *Gateway) CountRows(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := g.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM source_rows WHERE source_id = $1`, sourceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting rows for %q: %v", ErrStore, sourceID, err)
	}
	return count, nil
}
