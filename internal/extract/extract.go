// Package extract converts raw file bytes into plain text for indexing.
//
// Dispatch is by declared MIME type, falling back to the filename
// extension, and finally to a raw UTF-8 decode. Format-specific parsing
// lives in pdf.go, docx.go, markdown.go; delimited tabular parsing is a
// separate path in tabular.go.
//
// Extraction is a pure function of its inputs: no component state, no
// side effects beyond scratch files for PDF parsing.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrExtraction indicates the input could not be parsed into text.
// Fatal for the source's text path: callers must not index partial or
// garbled output. Check with errors.Is().
var ErrExtraction = errors.New("extraction failed")

// MIME types with dedicated extraction paths.
const (
	MimeTypePDF      = "application/pdf"
	MimeTypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeTypeMarkdown = "text/markdown"
	MimeTypeCSV      = "text/csv"
	MimeTypeTSV      = "text/tab-separated-values"
)

// Extract converts file bytes plus a declared MIME type into plain text.
//
// PDF pages are concatenated in page order; DOCX yields the document's raw
// text; Markdown is parsed and stripped of markup; text/* types decode
// directly; image/* types produce a one-line placeholder (content analysis
// is a vision tool's job, not the indexer's). Anything else falls back to
// extension dispatch and finally a raw UTF-8 decode.
func Extract(data []byte, mimeType, filename string) (string, error) {
	switch {
	case mimeType == MimeTypePDF:
		return extractPDF(data)
	case mimeType == MimeTypeDOCX:
		return extractDOCX(data)
	case mimeType == MimeTypeMarkdown || mimeType == "text/x-markdown":
		return extractMarkdown(data), nil
	case strings.HasPrefix(mimeType, "image/"):
		return fmt.Sprintf("[Image: %s]", filepath.Base(filename)), nil
	case strings.HasPrefix(mimeType, "text/"):
		return decodeText(data), nil
	}

	// MIME type unknown: fall back to the filename extension.
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	case ".md", ".markdown":
		return extractMarkdown(data), nil
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return fmt.Sprintf("[Image: %s]", filepath.Base(filename)), nil
	}

	// Last resort: raw text decode.
	return decodeText(data), nil
}

// decodeText interprets bytes as UTF-8, replacing invalid sequences with
// the replacement character. The store's TEXT columns reject invalid
// UTF-8, so garbled input must never pass through unsanitized.
func decodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}

// IsTabular reports whether the MIME type (or extension) identifies a
// delimited tabular source that should also go through the Schema/Rows path.
func IsTabular(mimeType, filename string) bool {
	if mimeType == MimeTypeCSV || mimeType == MimeTypeTSV {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".tsv":
		return true
	}
	return false
}
