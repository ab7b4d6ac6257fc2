// Package watch detects source changes on the local filesystem and in
// Google Drive folders and feeds them to the ingestion pipeline.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"path/filepath"
	"strings"

	"github.com/koopa0/corpus/internal/ingest"
)

// Ingestor is the pipeline surface the watchers need.
// *ingest.Orchestrator satisfies it.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.Request) error
	Delete(ctx context.Context, sourceID string) error
}

// supportedExtensions are the file types worth indexing from a local
// watch directory.
var supportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".pdf":  true,
	".docx": true,
	".csv":  true,
	".tsv":  true,
	".json": true,
	".html": true,
}

// Supported reports whether a local file path has an indexable extension.
func Supported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// LocalSourceID derives a stable source id from a file path. The same
// path always maps to the same id across scans and restarts.
func LocalSourceID(relPath string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(relPath)))
	return "file_" + hex.EncodeToString(sum[:])[:16]
}

// DriveSourceID derives a stable source id from a Drive file id.
func DriveSourceID(fileID string) string {
	return "gdrive_" + fileID
}

// mimeTypeForPath guesses the MIME type from a file extension.
func mimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t := mime.TypeByExtension(ext); t != "" {
		// Strip charset parameters.
		if i := strings.IndexByte(t, ';'); i > 0 {
			return t[:i]
		}
		return t
	}
	switch ext {
	case ".md":
		return "text/markdown"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".tsv":
		return "text/tab-separated-values"
	default:
		return "text/plain"
	}
}
