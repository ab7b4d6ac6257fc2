package store

// SourceMeta is the metadata row for one logical input document or dataset.
type SourceMeta struct {
	ID        string   // stable identity derived from origin
	Title     string   // display name / filename
	OriginURL string   // file path, storage URL, or drive link
	MimeType  string
	Schema    []string // ordered column names; nil unless tabular
}

// Chunk is one unit of retrievable text with its embedding.
// Chunks are created in a batch during ingestion and never mutated.
type Chunk struct {
	SourceID  string
	Index     int // position within source, zero-based, contiguous
	Content   string
	Embedding []float32
	Metadata  map[string]string // mime type and friends, used for search filters
}

// Row is one structured record from a tabular source.
type Row struct {
	Index  int
	Fields map[string]any // field name -> value, names matching the source schema
}

// SearchResult is one similarity-search hit.
type SearchResult struct {
	SourceID   string
	ChunkIndex int
	Content    string
	Title      string
	Metadata   map[string]string
	Similarity float64 // cosine similarity in [0, 1]
}
