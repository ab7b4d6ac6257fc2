package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/koopa0/corpus/internal/ingest"
)

// Local watches a directory tree and keeps its files indexed. On startup
// it ingests every supported file (cold start treats everything as new),
// then reacts to filesystem events. Writes are debounced per path so a
// file being written in several bursts is ingested once, with its final
// content.
type Local struct {
	dir      string
	ingestor Ingestor
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewLocal creates a local directory watcher.
func NewLocal(dir string, ingestor Ingestor, debounce time.Duration, logger *slog.Logger) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor is required")
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		dir:      dir,
		ingestor: ingestor,
		debounce: debounce,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Run blocks until ctx is canceled. It performs the initial scan, then
// processes filesystem events. In-flight ingestions triggered by a
// debounce timer complete on their own after cancellation.
func (l *Local) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := l.addRecursive(watcher, l.dir); err != nil {
		return err
	}

	l.initialScan(ctx)

	for {
		select {
		case <-ctx.Done():
			l.stopTimers()
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			l.handleEvent(ctx, watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("filesystem watcher error", "error", err)
		}
	}
}

// addRecursive registers the directory and all subdirectories with the
// watcher. fsnotify watches are not recursive on their own.
func (l *Local) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking %s: %w", path, err)
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}
		return nil
	})
}

// initialScan ingests every supported file already present. Per-file
// failures are logged and the scan continues.
func (l *Local) initialScan(ctx context.Context) {
	var scanned, failed int
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn("scan error", "path", path, "error", err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}
		scanned++
		if ingestErr := l.ingestFile(ctx, path); ingestErr != nil {
			failed++
			l.logger.Error("initial ingestion failed", "path", path, "error", ingestErr)
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		l.logger.Warn("initial scan aborted", "error", err)
	}
	l.logger.Info("initial scan complete", "dir", l.dir, "files", scanned, "failed", failed)
}

// handleEvent routes one filesystem event. Creates and writes are
// debounced; removes and renames delete the source immediately.
func (l *Local) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
		// New subdirectories need their own watch.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := l.addRecursive(watcher, event.Name); err != nil {
				l.logger.Warn("watching new directory failed", "path", event.Name, "error", err)
			}
			return
		}
		l.scheduleIngest(ctx, event.Name)

	case event.Op.Has(fsnotify.Write):
		l.scheduleIngest(ctx, event.Name)

	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		if !Supported(event.Name) {
			return
		}
		l.cancelTimer(event.Name)
		sourceID := l.sourceID(event.Name)
		if err := l.ingestor.Delete(ctx, sourceID); err != nil {
			l.logger.Error("deleting removed file failed",
				"path", event.Name, "source_id", sourceID, "error", err)
		}
	}
}

// scheduleIngest (re)arms the debounce timer for a path. Successive
// writes within the window reset the timer, so the file is read only
// after it stops changing.
func (l *Local) scheduleIngest(ctx context.Context, path string) {
	if !Supported(path) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.timers[path]; ok {
		t.Reset(l.debounce)
		return
	}
	l.timers[path] = time.AfterFunc(l.debounce, func() {
		l.mu.Lock()
		delete(l.timers, path)
		l.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := l.ingestFile(ctx, path); err != nil {
			l.logger.Error("ingestion failed", "path", path, "error", err)
		}
	})
}

// cancelTimer stops a pending debounce for a path, if any.
func (l *Local) cancelTimer(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[path]; ok {
		t.Stop()
		delete(l.timers, path)
	}
}

// stopTimers cancels all pending debounce timers.
func (l *Local) stopTimers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for path, t := range l.timers {
		t.Stop()
		delete(l.timers, path)
	}
}

// sourceID derives the stable id for a path, relative to the watch root
// where possible.
func (l *Local) sourceID(path string) string {
	rel, err := filepath.Rel(l.dir, path)
	if err != nil {
		rel = path
	}
	return LocalSourceID(rel)
}

// ingestFile reads a file and runs it through the pipeline.
func (l *Local) ingestFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	return l.ingestor.Ingest(ctx, ingest.Request{
		SourceID:  l.sourceID(path),
		Data:      data,
		MimeType:  mimeTypeForPath(path),
		Filename:  filepath.Base(path),
		Title:     filepath.Base(path),
		OriginURL: "file://" + path,
	})
}
