package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/koopa0/corpus/internal/ingest"
	"github.com/koopa0/corpus/internal/watch"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <path>",
		Short: "Index a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), args[0])
		},
	}
}

func runIngest(ctx context.Context, path string) error {
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.IsDir() {
		if err := ingestFile(ctx, a.Orchestrator, filepath.Dir(path), path); err != nil {
			return err
		}
		fmt.Printf("Indexed %s\n", path)
		return nil
	}

	var indexed, failed int
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !watch.Supported(p) {
			return nil
		}
		if ingestErr := ingestFile(ctx, a.Orchestrator, path, p); ingestErr != nil {
			failed++
			fmt.Fprintf(os.Stderr, "failed: %s: %v\n", p, ingestErr)
			return nil
		}
		indexed++
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("walking %s: %w", path, walkErr)
	}

	fmt.Printf("Indexed %d files (%d failed)\n", indexed, failed)
	return nil
}

// ingestFile reads one file and feeds it through the pipeline using the
// same source id derivation as the local watcher.
func ingestFile(ctx context.Context, orch *ingest.Orchestrator, root, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	return orch.Ingest(ctx, ingest.Request{
		SourceID:  watch.LocalSourceID(rel),
		Data:      data,
		MimeType:  "",
		Filename:  filepath.Base(path),
		Title:     filepath.Base(path),
		OriginURL: "file://" + path,
	})
}
