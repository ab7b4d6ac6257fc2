package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := New()
		if c.Size() != DefaultChunkSize {
			t.Errorf("Size() = %d, want %d", c.Size(), DefaultChunkSize)
		}
		if c.Overlap() != DefaultChunkOverlap {
			t.Errorf("Overlap() = %d, want %d", c.Overlap(), DefaultChunkOverlap)
		}
	})

	t.Run("custom options", func(t *testing.T) {
		c := New(WithChunkSize(500), WithOverlap(50))
		if c.Size() != 500 {
			t.Errorf("Size() = %d, want 500", c.Size())
		}
		if c.Overlap() != 50 {
			t.Errorf("Overlap() = %d, want 50", c.Overlap())
		}
	})

	t.Run("overlap equal to size is clamped", func(t *testing.T) {
		c := New(WithChunkSize(100), WithOverlap(100))
		if c.Overlap() != 25 {
			t.Errorf("Overlap() = %d, want 25", c.Overlap())
		}
	})

	t.Run("overlap above size is clamped", func(t *testing.T) {
		c := New(WithChunkSize(100), WithOverlap(500))
		if c.Overlap() != 25 {
			t.Errorf("Overlap() = %d, want 25", c.Overlap())
		}
	})

	t.Run("invalid option values keep defaults", func(t *testing.T) {
		c := New(WithChunkSize(0), WithOverlap(-1))
		if c.Size() != DefaultChunkSize {
			t.Errorf("Size() = %d, want %d", c.Size(), DefaultChunkSize)
		}
		if c.Overlap() != DefaultChunkOverlap {
			t.Errorf("Overlap() = %d, want %d", c.Overlap(), DefaultChunkOverlap)
		}
	})
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		overlap   int
		text      string
		wantCount int
	}{
		{
			name:      "empty input",
			size:      1000,
			overlap:   200,
			text:      "",
			wantCount: 0,
		},
		{
			name:      "shorter than one window",
			size:      1000,
			overlap:   200,
			text:      "hello world",
			wantCount: 1,
		},
		{
			name:      "exact window",
			size:      10,
			overlap:   2,
			text:      "abcdefghij",
			wantCount: 2, // [0:10] and the tail [8:10]
		},
		{
			name:      "long document",
			size:      1000,
			overlap:   200,
			text:      strings.Repeat("a", 2500),
			wantCount: 4, // starts at 0, 800, 1600, 2400
		},
		{
			name:      "whitespace only",
			size:      10,
			overlap:   2,
			text:      "          ",
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithChunkSize(tt.size), WithOverlap(tt.overlap))
			got := c.Chunk(tt.text)
			if len(got) != tt.wantCount {
				t.Errorf("Chunk() produced %d chunks, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestChunkWindowContents(t *testing.T) {
	c := New(WithChunkSize(1000), WithOverlap(200))
	text := strings.Repeat("a", 2500)

	chunks := c.Chunk(text)
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}

	wantLens := []int{1000, 1000, 900, 100}
	for i, chunk := range chunks {
		if len(chunk) != wantLens[i] {
			t.Errorf("chunk %d length = %d, want %d", i, len(chunk), wantLens[i])
		}
	}
}

func TestChunkOverlapContent(t *testing.T) {
	c := New(WithChunkSize(10), WithOverlap(4))
	text := "0123456789ABCDEFGHIJ"

	chunks := c.Chunk(text)
	// Step of 6: starts at 0, 6, 12, 18.
	want := []string{"0123456789", "6789ABCDEF", "CDEFGHIJ", "IJ"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunkMultiByteRunes(t *testing.T) {
	c := New(WithChunkSize(10), WithOverlap(2))
	text := strings.Repeat("世", 20)

	chunks := c.Chunk(text)
	// Step of 8 over 20 characters: starts at 0, 8, 16.
	wantLens := []int{10, 10, 4}
	if len(chunks) != len(wantLens) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(wantLens))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is invalid UTF-8: %q", i, chunk)
		}
		if n := utf8.RuneCountInString(chunk); n != wantLens[i] {
			t.Errorf("chunk %d has %d characters, want %d", i, n, wantLens[i])
		}
	}

	// Mixed-width text keeps window boundaries on character counts.
	c = New(WithChunkSize(6), WithOverlap(2))
	chunks = c.Chunk("héllo wörld™ abc")
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("mixed chunk %d is invalid UTF-8: %q", i, chunk)
		}
		if n := utf8.RuneCountInString(chunk); n > 6 {
			t.Errorf("mixed chunk %d has %d characters, want at most 6", i, n)
		}
	}
}

func TestChunkStripsCarriageReturns(t *testing.T) {
	c := New(WithChunkSize(100), WithOverlap(10))

	chunks := c.Chunk("line one\r\nline two\r\n")
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if strings.Contains(chunks[0], "\r") {
		t.Errorf("chunk contains carriage return: %q", chunks[0])
	}
	if chunks[0] != "line one\nline two\n" {
		t.Errorf("chunk = %q", chunks[0])
	}
}

func TestChunkDeterminism(t *testing.T) {
	c := New(WithChunkSize(50), WithOverlap(10))
	text := strings.Repeat("the quick brown fox ", 30)

	first := c.Chunk(text)
	second := c.Chunk(text)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
