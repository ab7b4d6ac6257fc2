// Package embed wraps a Genkit ai.Embedder behind the narrow client the
// ingestion and retrieval paths need: order-preserving batch embedding of
// chunk text and single-query embedding, at a fixed output dimension.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ErrEmbedding indicates the embedding provider call failed. Fatal to the
// ingestion or retrieval call in progress; the client never substitutes
// zero vectors for failed inputs. Check with errors.Is().
var ErrEmbedding = errors.New("embedding failed")

// maxBatchSize bounds how many inputs go into one provider call.
// The Gemini embedding endpoint accepts up to 100 inputs per request.
const maxBatchSize = 100

// callTimeout bounds a single provider call.
const callTimeout = 30 * time.Second

// Client calls an external embedding provider.
// Safe for concurrent use by multiple goroutines.
type Client struct {
	embedder  ai.Embedder
	dimension int32
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates an embedding client producing vectors of the given dimension.
func New(embedder ai.Embedder, dimension int, logger *slog.Logger) (*Client, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dimension < 1 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		embedder:  embedder,
		dimension: int32(dimension), // #nosec G115 -- validated positive, bounded by config
		limiter:   rate.NewLimiter(rate.Limit(5), 10),
		logger:    logger,
	}, nil
}

// Dimension returns the fixed output vector dimension.
func (c *Client) Dimension() int { return int(c.dimension) }

// Embed turns texts into vectors, index-aligned with the input.
// All chunks of one source are batched into as few provider calls as the
// provider allows. Any provider failure aborts the whole call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))

		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	c.logger.Debug("embedded texts", "count", len(texts), "dimension", c.dimension)
	return vectors, nil
}

// EmbedOne embeds a single query string.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatch issues one provider call for up to maxBatchSize inputs.
func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for rate limiter: %v", ErrEmbedding, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	dim := c.dimension
	resp, err := c.embedder.Embed(callCtx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d inputs",
			ErrEmbedding, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) != int(c.dimension) {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d",
				ErrEmbedding, i, len(e.Embedding), c.dimension)
		}
		vectors[i] = e.Embedding
	}
	return vectors, nil
}
