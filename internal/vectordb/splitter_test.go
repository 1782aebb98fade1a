package vectordb

import (
	"strings"
	"testing"
)

func TestSplitTextRespectsChunkSize(t *testing.T) {
	text := strings.Repeat("para one.\n\n", 50)
	chunks := SplitText("doc.txt", text, 100, 20)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c)); n > 100 {
			t.Fatalf("chunk %d has %d runes, limit 100", i, n)
		}
		if strings.TrimSpace(c) == "" {
			t.Fatalf("chunk %d is blank", i)
		}
	}
}

func TestSplitTextOverlapCarriesTail(t *testing.T) {
	// Force character-level splitting so the overlap is deterministic.
	text := strings.Repeat("abcdefghij", 10)
	chunks := SplitText("doc.txt", text, 20, 10)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-10:]
		if !strings.HasPrefix(chunks[i], prevTail) {
			t.Fatalf("chunk %d does not start with previous tail %q: %q", i, prevTail, chunks[i])
		}
	}
}

func TestSplitTextZeroOverlapLosesNothing(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta"
	chunks := SplitText("doc.txt", text, 16, 0)
	joined := strings.Join(chunks, " ")
	for _, word := range strings.Fields(text) {
		if !strings.Contains(joined, word) {
			t.Fatalf("word %q lost in split: %v", word, chunks)
		}
	}
}

func TestSplitTextShortInputSingleChunk(t *testing.T) {
	chunks := SplitText("doc.txt", "tiny", 100, 10)
	if len(chunks) != 1 || chunks[0] != "tiny" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSplitTextEmptyInput(t *testing.T) {
	if chunks := SplitText("doc.txt", "   \n\n ", 100, 10); len(chunks) != 0 {
		t.Fatalf("chunks = %v, want none", chunks)
	}
}

func TestSplitTextCodeSeparators(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("\nfunc handler")
		b.WriteString(strings.Repeat("x", 30))
		b.WriteString("() {}\n")
	}
	chunks := SplitText("main.go", b.String(), 120, 0)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	// Splitting on function boundaries keeps declarations intact.
	for i, c := range chunks[1:] {
		if !strings.Contains(c, "func handler") {
			t.Fatalf("chunk %d lost function boundary: %q", i+1, c)
		}
	}
}
