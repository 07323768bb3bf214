package textproc

import (
	"strings"
	"testing"
)

// buildText returns deterministic text of length n with no whitespace, so
// window boundaries are easy to reason about.
func buildText(n int) string {
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteByte(byte('a' + sb.Len()%26))
	}
	return sb.String()
}

func TestChunkShortText(t *testing.T) {
	text := "brake pedal feels soft"
	chunks := Chunk(text, 300, 50)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("chunk = %q, want %q", chunks[0], text)
	}
}

func TestChunkEmptyText(t *testing.T) {
	if chunks := Chunk("", 300, 50); chunks != nil {
		t.Errorf("expected no chunks for empty text, got %d", len(chunks))
	}
	if chunks := Chunk("   ", 300, 50); chunks != nil {
		t.Errorf("expected no chunks for blank text, got %d", len(chunks))
	}
}

func TestChunkWindowing(t *testing.T) {
	text := buildText(1000)

	// stride is size-overlap = 250, so starts are 0, 250, 500, 750
	chunks := Chunk(text, 300, 50)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	for i, ch := range chunks[:3] {
		if len(ch) != 300 {
			t.Errorf("chunk %d length = %d, want 300", i, len(ch))
		}
	}
	if len(chunks[3]) != 250 {
		t.Errorf("last chunk length = %d, want 250", len(chunks[3]))
	}

	// consecutive chunks share the overlap region
	if chunks[0][250:] != chunks[1][:50] {
		t.Error("chunks 0 and 1 do not overlap by 50 characters")
	}
	if chunks[1][250:] != chunks[2][:50] {
		t.Error("chunks 1 and 2 do not overlap by 50 characters")
	}
}

func TestChunkClampsParameters(t *testing.T) {
	text := buildText(1000)

	// size and overlap below the floors behave as 300/50
	got := Chunk(text, 100, 10)
	want := Chunk(text, 300, 50)
	if len(got) != len(want) {
		t.Fatalf("clamped chunking produced %d chunks, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("chunk %d differs under clamped parameters", i)
		}
	}
}

func TestChunkOverlapCappedBelowSize(t *testing.T) {
	// overlap >= size must still terminate
	text := buildText(2000)
	chunks := Chunk(text, 300, 5000)
	if len(chunks) == 0 {
		t.Fatal("expected chunks, got none")
	}
	// capped overlap is size-1, so the window advances one character per step
	if len(chunks) != 1701 {
		t.Errorf("expected 1701 chunks with overlap capped at size-1, got %d", len(chunks))
	}
}

func TestChunkCoversAllText(t *testing.T) {
	text := buildText(1234)
	chunks := Chunk(text, 300, 50)
	if len(chunks) == 0 {
		t.Fatal("expected chunks, got none")
	}
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(text, last) {
		t.Error("last chunk is not a suffix of the input")
	}
	if !strings.HasPrefix(text, chunks[0]) {
		t.Error("first chunk is not a prefix of the input")
	}
}
