package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/koopa0/corpus/internal/ingest"
	"github.com/koopa0/corpus/internal/log"
)

// mockIngestor implements Ingestor, recording calls thread-safely.
// The optional error hooks inject failures for specific calls.
type mockIngestor struct {
	mu        sync.Mutex
	ingested  []ingest.Request
	deleted   []string
	ingestErr func(req ingest.Request) error
	deleteErr func(sourceID string) error
}

func (m *mockIngestor) Ingest(ctx context.Context, req ingest.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ingestErr != nil {
		if err := m.ingestErr(req); err != nil {
			return err
		}
	}
	m.ingested = append(m.ingested, req)
	return nil
}

func (m *mockIngestor) Delete(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		if err := m.deleteErr(sourceID); err != nil {
			return err
		}
	}
	m.deleted = append(m.deleted, sourceID)
	return nil
}

func (m *mockIngestor) ingestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ingested)
}

func (m *mockIngestor) deleteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deleted)
}

// waitFor polls cond until it is true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNewLocal(t *testing.T) {
	ing := &mockIngestor{}

	tests := []struct {
		name    string
		dir     string
		ing     Ingestor
		wantErr bool
	}{
		{"valid", t.TempDir(), ing, false},
		{"empty dir", "", ing, true},
		{"nil ingestor", t.TempDir(), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLocal(tt.dir, tt.ing, time.Millisecond, log.NewNop())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLocal() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLocalInitialScan(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha content")
	writeFile(t, filepath.Join(dir, "b.md"), "# beta")
	writeFile(t, filepath.Join(dir, "skip.bin"), "binary")

	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o750); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(sub, "c.csv"), "x,y\n1,2\n")

	ing := &mockIngestor{}
	w, err := NewLocal(dir, ing, 50*time.Millisecond, log.NewNop())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool { return ing.ingestCount() >= 3 },
		"initial scan did not ingest all supported files")

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}

	if ing.ingestCount() != 3 {
		t.Errorf("ingested %d files, want 3", ing.ingestCount())
	}
	for _, req := range ing.ingested {
		if req.SourceID == "" || req.Filename == "" {
			t.Errorf("incomplete request: %+v", req)
		}
	}
}

func TestLocalWriteDebounceAndRemove(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	ing := &mockIngestor{}
	w, err := NewLocal(dir, ing, 50*time.Millisecond, log.NewNop())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before generating events.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "new.txt")
	writeFile(t, path, "first version")

	waitFor(t, 5*time.Second, func() bool { return ing.ingestCount() >= 1 },
		"created file was not ingested")

	wantID := LocalSourceID("new.txt")
	ing.mu.Lock()
	gotID := ing.ingested[0].SourceID
	ing.mu.Unlock()
	if gotID != wantID {
		t.Errorf("source id = %q, want %q", gotID, wantID)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool { return ing.deleteCount() >= 1 },
		"removed file was not deleted")

	ing.mu.Lock()
	deletedID := ing.deleted[0]
	ing.mu.Unlock()
	if deletedID != wantID {
		t.Errorf("deleted id = %q, want %q", deletedID, wantID)
	}

	cancel()
	<-done
}

func TestLocalRapidWritesCoalesce(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	ing := &mockIngestor{}
	w, err := NewLocal(dir, ing, 300*time.Millisecond, log.NewNop())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)

	// Successive writes inside the debounce window reset the timer;
	// only the final content reaches the ingestor, exactly once.
	path := filepath.Join(dir, "burst.txt")
	writeFile(t, path, "draft one")
	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, "draft two")
	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, "final version")

	waitFor(t, 5*time.Second, func() bool { return ing.ingestCount() >= 1 },
		"file was never ingested")

	// Past the debounce window, no further ingestion may arrive.
	time.Sleep(500 * time.Millisecond)

	ing.mu.Lock()
	count := len(ing.ingested)
	var data string
	if count > 0 {
		data = string(ing.ingested[count-1].Data)
	}
	ing.mu.Unlock()

	if count != 1 {
		t.Errorf("ingestion count = %d, want 1", count)
	}
	if data != "final version" {
		t.Errorf("ingested content = %q, want final write", data)
	}

	cancel()
	<-done
}

func TestLocalUnsupportedFilesIgnored(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	ing := &mockIngestor{}
	w, err := NewLocal(dir, ing, 50*time.Millisecond, log.NewNop())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "ignore.bin"), "binary blob")
	time.Sleep(300 * time.Millisecond)

	if n := ing.ingestCount(); n != 0 {
		t.Errorf("ingested %d unsupported files", n)
	}

	cancel()
	<-done
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}
