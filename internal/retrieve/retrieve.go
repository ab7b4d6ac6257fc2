// Package retrieve answers free-text queries against the indexed corpus
// via embedding similarity search.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/koopa0/corpus/internal/store"
)

// NoResults is returned when nothing relevant was found or retrieval
// failed. It is never empty so callers can tell "no results" apart from
// "no tool output".
const NoResults = "No relevant documents found."

// Searcher is the similarity-search surface the tool needs.
// *store.Gateway satisfies it.
type Searcher interface {
	SimilaritySearch(ctx context.Context, embedding []float32,
		topK int, threshold float64, filter map[string]string) ([]store.SearchResult, error)
}

// Embedder embeds a single query string. *embed.Client satisfies it.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Tool performs read-only retrieval. It never mutates store state and
// never returns an error to the caller: failures degrade to NoResults.
type Tool struct {
	searcher  Searcher
	embedder  Embedder
	topK      int
	threshold float64
	logger    *slog.Logger
}

// New creates a retrieval Tool.
func New(searcher Searcher, embedder Embedder, topK int, threshold float64, logger *slog.Logger) (*Tool, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if topK < 1 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in [0, 1], got %v", threshold)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{
		searcher:  searcher,
		embedder:  embedder,
		topK:      topK,
		threshold: threshold,
		logger:    logger,
	}, nil
}

// Retrieve embeds the query, searches the corpus, and formats the hits
// into a numbered context block. Zero hits or any internal failure
// returns NoResults.
func (t *Tool) Retrieve(ctx context.Context, query string) string {
	return t.RetrieveFiltered(ctx, query, nil)
}

// RetrieveFiltered is Retrieve with an optional chunk-metadata filter.
func (t *Tool) RetrieveFiltered(ctx context.Context, query string, filter map[string]string) string {
	if strings.TrimSpace(query) == "" {
		return NoResults
	}

	vec, err := t.embedder.EmbedOne(ctx, query)
	if err != nil {
		t.logger.Warn("query embedding failed", "error", err)
		return NoResults
	}

	results, err := t.searcher.SimilaritySearch(ctx, vec, t.topK, t.threshold, filter)
	if err != nil {
		t.logger.Warn("similarity search failed", "error", err)
		return NoResults
	}
	if len(results) == 0 {
		return NoResults
	}

	return formatResults(results)
}

// formatResults renders hits as a numbered list with source and score.
func formatResults(results []store.SearchResult) string {
	var b strings.Builder
	b.WriteString("Relevant context:\n")
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.SourceID
		}
		fmt.Fprintf(&b, "\n[%d] %s (score: %.2f)\n%s\n", i+1, title, r.Similarity, r.Content)
	}
	return b.String()
}
