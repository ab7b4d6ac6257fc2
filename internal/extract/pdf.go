package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF extracts text from a PDF, pages concatenated in page order.
//
// pdfcpu's API is file-based, so the bytes go through a scratch directory
// that is removed before returning. A malformed PDF fails ErrExtraction
// with the parser's message; partial page content is never returned.
func extractPDF(data []byte) (string, error) {
	tempDir, err := os.MkdirTemp("", "corpus-pdf-*")
	if err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tempDir)
	}()

	tempFile := filepath.Join(tempDir, "input.pdf")
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return "", fmt.Errorf("writing scratch file: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(tempDir, "pages")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return "", fmt.Errorf("creating page dir: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	pageTexts, err := readPageFiles(outDir)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text, ok := pageTexts[pageNum]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(text))
	}
	return b.String(), nil
}

// readPageFiles reads the per-page content files pdfcpu writes, keyed by
// page number. Filenames look like "Content_page_7.txt" or "page_7.txt"
// depending on pdfcpu version.
func readPageFiles(dir string) (map[int]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading page dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	pages := make(map[int]string, len(names))
	for _, name := range names {
		var pageNum int
		if _, err := fmt.Sscanf(name, "Content_page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(name, "page_%d", &pageNum); err != nil {
				continue
			}
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		pages[pageNum] = string(content)
	}
	return pages, nil
}
