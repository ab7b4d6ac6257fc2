package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/koopa0/corpus/internal/chunker"
	"github.com/koopa0/corpus/internal/log"
	"github.com/koopa0/corpus/internal/store"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu sync.Mutex

	deleteErr       error
	upsertErr       error
	insertChunksErr error
	insertRowsErr   error

	calls         []string
	lastMeta      store.SourceMeta
	insertedChunks []store.Chunk
	insertedRows   []store.Row
}

func (m *mockStore) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockStore) DeleteSource(ctx context.Context, sourceID string) error {
	m.record("delete")
	return m.deleteErr
}

func (m *mockStore) UpsertSource(ctx context.Context, meta store.SourceMeta) error {
	m.record("upsert")
	m.lastMeta = meta
	return m.upsertErr
}

func (m *mockStore) InsertChunks(ctx context.Context, sourceID string, chunks []store.Chunk) error {
	m.record("chunks")
	m.insertedChunks = chunks
	return m.insertChunksErr
}

func (m *mockStore) InsertRows(ctx context.Context, sourceID string, rows []store.Row) error {
	m.record("rows")
	m.insertedRows = rows
	return m.insertRowsErr
}

// mockEmbedder implements Embedder for testing.
type mockEmbedder struct {
	embedErr  error
	callCount int
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i), 1, 2}
	}
	return vectors, nil
}

func newTestOrchestrator(t *testing.T, st Store, emb Embedder) *Orchestrator {
	t.Helper()
	ch := chunker.New(chunker.WithChunkSize(100), chunker.WithOverlap(20))
	o, err := New(st, emb, ch, log.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestNew(t *testing.T) {
	ch := chunker.New()
	tests := []struct {
		name    string
		st      Store
		emb     Embedder
		ch      *chunker.Chunker
		wantErr bool
	}{
		{"valid", &mockStore{}, &mockEmbedder{}, ch, false},
		{"nil store", nil, &mockEmbedder{}, ch, true},
		{"nil embedder", &mockStore{}, nil, ch, true},
		{"nil chunker", &mockStore{}, &mockEmbedder{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.st, tt.emb, tt.ch, log.NewNop())
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIngestTextSource(t *testing.T) {
	st := &mockStore{}
	emb := &mockEmbedder{}
	o := newTestOrchestrator(t, st, emb)

	err := o.Ingest(context.Background(), Request{
		SourceID:  "src-1",
		Data:      []byte(strings.Repeat("content ", 40)),
		MimeType:  "text/plain",
		Filename:  "notes.txt",
		Title:     "Notes",
		OriginURL: "file:///notes.txt",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	want := []string{"delete", "upsert", "chunks"}
	if fmt.Sprint(st.calls) != fmt.Sprint(want) {
		t.Errorf("call order = %v, want %v", st.calls, want)
	}
	if st.lastMeta.Title != "Notes" {
		t.Errorf("meta title = %q", st.lastMeta.Title)
	}
	if len(st.insertedChunks) == 0 {
		t.Fatal("no chunks inserted")
	}
	for i, c := range st.insertedChunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.SourceID != "src-1" {
			t.Errorf("chunk %d has source id %q", i, c.SourceID)
		}
		if len(c.Embedding) == 0 {
			t.Errorf("chunk %d missing embedding", i)
		}
	}
}

func TestIngestEmptySourceIsNoOp(t *testing.T) {
	st := &mockStore{}
	emb := &mockEmbedder{}
	o := newTestOrchestrator(t, st, emb)

	err := o.Ingest(context.Background(), Request{
		SourceID: "src-empty",
		Data:     []byte("   \n  "),
		MimeType: "text/plain",
		Filename: "empty.txt",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if emb.callCount != 0 {
		t.Errorf("embedder called %d times for empty source", emb.callCount)
	}
	want := []string{"delete", "upsert"}
	if fmt.Sprint(st.calls) != fmt.Sprint(want) {
		t.Errorf("call order = %v, want %v", st.calls, want)
	}
}

func TestIngestTabularSource(t *testing.T) {
	st := &mockStore{}
	o := newTestOrchestrator(t, st, &mockEmbedder{})

	err := o.Ingest(context.Background(), Request{
		SourceID: "src-csv",
		Data:     []byte("name,age\nalice,30\nbob,25\n"),
		MimeType: "text/csv",
		Filename: "people.csv",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if len(st.lastMeta.Schema) != 2 || st.lastMeta.Schema[0] != "name" {
		t.Errorf("schema = %v", st.lastMeta.Schema)
	}
	if len(st.insertedRows) != 2 {
		t.Fatalf("inserted %d rows, want 2", len(st.insertedRows))
	}
	if st.insertedRows[0].Fields["name"] != "alice" {
		t.Errorf("row 0 = %v", st.insertedRows[0].Fields)
	}
	// Rows go in after the metadata upsert, chunks last.
	want := []string{"delete", "upsert", "rows", "chunks"}
	if fmt.Sprint(st.calls) != fmt.Sprint(want) {
		t.Errorf("call order = %v, want %v", st.calls, want)
	}
}

func TestIngestRowInsertFailureContinues(t *testing.T) {
	st := &mockStore{insertRowsErr: errors.New("row constraint")}
	o := newTestOrchestrator(t, st, &mockEmbedder{})

	err := o.Ingest(context.Background(), Request{
		SourceID: "src-csv",
		Data:     []byte("a,b\n1,2\n"),
		MimeType: "text/csv",
		Filename: "data.csv",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v, row failures should not abort", err)
	}
	if len(st.insertedChunks) == 0 {
		t.Error("text path did not run after row failure")
	}
}

func TestIngestFatalErrors(t *testing.T) {
	tests := []struct {
		name  string
		st    *mockStore
		emb   *mockEmbedder
		after []string
	}{
		{
			name:  "delete failure aborts",
			st:    &mockStore{deleteErr: errors.New("db down")},
			emb:   &mockEmbedder{},
			after: []string{"delete"},
		},
		{
			name:  "upsert failure aborts",
			st:    &mockStore{upsertErr: errors.New("db down")},
			emb:   &mockEmbedder{},
			after: []string{"delete", "upsert"},
		},
		{
			name:  "embed failure aborts before insert",
			st:    &mockStore{},
			emb:   &mockEmbedder{embedErr: errors.New("quota")},
			after: []string{"delete", "upsert"},
		},
		{
			name:  "chunk insert failure",
			st:    &mockStore{insertChunksErr: errors.New("constraint")},
			emb:   &mockEmbedder{},
			after: []string{"delete", "upsert", "chunks"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(t, tt.st, tt.emb)
			err := o.Ingest(context.Background(), Request{
				SourceID: "src-x",
				Data:     []byte("some text content"),
				MimeType: "text/plain",
				Filename: "f.txt",
			})
			if err == nil {
				t.Fatal("Ingest() should fail")
			}
			if fmt.Sprint(tt.st.calls) != fmt.Sprint(tt.after) {
				t.Errorf("calls = %v, want %v", tt.st.calls, tt.after)
			}
		})
	}
}

func TestIngestMissingSourceID(t *testing.T) {
	o := newTestOrchestrator(t, &mockStore{}, &mockEmbedder{})
	if err := o.Ingest(context.Background(), Request{}); err == nil {
		t.Error("Ingest() without source id should fail")
	}
}

func TestIngestExtractionFailureAborts(t *testing.T) {
	st := &mockStore{}
	o := newTestOrchestrator(t, st, &mockEmbedder{})

	err := o.Ingest(context.Background(), Request{
		SourceID: "src-pdf",
		Data:     []byte("not a pdf"),
		MimeType: "application/pdf",
		Filename: "broken.pdf",
	})
	if err == nil {
		t.Fatal("Ingest() of malformed PDF should fail")
	}
	for _, c := range st.calls {
		if c == "chunks" {
			t.Error("chunks inserted despite extraction failure")
		}
	}
}

func TestDelete(t *testing.T) {
	st := &mockStore{}
	o := newTestOrchestrator(t, st, &mockEmbedder{})

	if err := o.Delete(context.Background(), "src-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if fmt.Sprint(st.calls) != fmt.Sprint([]string{"delete"}) {
		t.Errorf("calls = %v", st.calls)
	}

	if err := o.Delete(context.Background(), ""); err == nil {
		t.Error("Delete() with empty id should fail")
	}
}

func TestIngestSameSourceSerialized(t *testing.T) {
	st := &mockStore{}
	o := newTestOrchestrator(t, st, &mockEmbedder{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = o.Ingest(context.Background(), Request{
				SourceID: "shared",
				Data:     []byte("concurrent content"),
				MimeType: "text/plain",
				Filename: "f.txt",
			})
		}()
	}
	wg.Wait()

	// Serialized pipelines never interleave: every delete is followed by
	// its own upsert and chunk insert before the next delete starts.
	for i := 0; i+2 < len(st.calls); i += 3 {
		if st.calls[i] != "delete" || st.calls[i+1] != "upsert" || st.calls[i+2] != "chunks" {
			t.Fatalf("interleaved pipeline at %d: %v", i, st.calls)
		}
	}
}
