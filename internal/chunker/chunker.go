// Package chunker splits plain text into overlapping fixed-size windows.
package chunker

import "strings"

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Chunker produces overlapping text windows of a fixed size.
// The zero value is not usable; construct with New.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker with the given options.
//
// An overlap >= chunkSize would make the window advance non-positive;
// config.Validate rejects that pairing at startup, and New additionally
// clamps it to chunkSize/4 so a directly constructed Chunker can never
// loop forever.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// Chunk splits text into ordered overlapping windows.
//
// Carriage returns are stripped first, then a window of chunkSize
// characters slides across the text advancing chunkSize-overlap characters
// per step. Windows whose trimmed content is empty are skipped; the final
// partial window is kept when non-empty. Identical input always yields an
// identical sequence, which idempotent re-ingestion relies on.
func (c *Chunker) Chunk(text string) []string {
	text = strings.ReplaceAll(text, "\r", "")
	if text == "" {
		return nil
	}

	// Window arithmetic counts characters, not bytes: slicing the string
	// directly would split multi-byte runes and emit invalid UTF-8.
	runes := []rune(text)

	step := c.chunkSize - c.overlap
	chunks := make([]string, 0, len(runes)/step+1)

	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		window := string(runes[start:end])
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, window)
		}
	}
	return chunks
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }
