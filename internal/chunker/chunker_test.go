package chunker_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/valpere/doktran/internal/chunker"
)

func TestChunk_ShortText(t *testing.T) {
	text := "Hello, world!"
	chunks := chunker.Chunk(text, 100)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("expected single chunk %q, got %v", text, chunks)
	}
}

func TestChunk_Unlimited(t *testing.T) {
	text := strings.Repeat("word ", 500)
	if chunks := chunker.Chunk(text, 0); len(chunks) != 1 {
		t.Errorf("expected 1 chunk when maxChars=0, got %d", len(chunks))
	}
}

func TestChunk_ParagraphBoundary(t *testing.T) {
	text := "First paragraph text here.\n\nSecond paragraph text here."

	chunks := chunker.Chunk(text, 40)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "First paragraph text here." {
		t.Errorf("unexpected first chunk %q", chunks[0])
	}
	if chunks[1] != "Second paragraph text here." {
		t.Errorf("unexpected second chunk %q", chunks[1])
	}
}

func TestChunk_WindowsParagraphBoundary(t *testing.T) {
	text := "Alpha beta gamma.\r\n\r\nDelta epsilon zeta."
	chunks := chunker.Chunk(text, 25)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != "Alpha beta gamma." {
		t.Errorf("unexpected first chunk %q", chunks[0])
	}
}

func TestChunk_SentenceBoundary(t *testing.T) {
	text := "First sentence ends here. Second sentence follows. Third sentence."
	chunks := chunker.Chunk(text, 40)
	if len(chunks) < 2 {
		t.Fatalf("expected ≥2 chunks, got %d", len(chunks))
	}
	if chunks[0] != "First sentence ends here." {
		t.Errorf("expected cut after first sentence, got %q", chunks[0])
	}
	for i, c := range chunks {
		if c != strings.TrimSpace(c) {
			t.Errorf("chunk %d has leading/trailing whitespace: %q", i, c)
		}
	}
}

func TestChunk_CJKSentenceBoundary(t *testing.T) {
	text := "这是第一句话。这是第二句话。这是第三句话。"
	chunks := chunker.Chunk(text, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected ≥2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "。") {
		t.Errorf("expected first chunk to end at a full stop, got %q", chunks[0])
	}
}

func TestChunk_WordBoundaryKeepsWords(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	chunks := chunker.Chunk(text, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected ≥2 chunks, got %d", len(chunks))
	}
	if got := strings.Join(chunks, " "); got != text {
		t.Errorf("words lost or split: %q", got)
	}
}

func TestChunk_HardCut(t *testing.T) {
	text := strings.Repeat("x", 25)
	chunks := chunker.Chunk(text, 10)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[2] != "xxxxx" {
		t.Errorf("expected 5-rune tail, got %q", chunks[2])
	}
}

func TestChunk_HardCutKeepsPlaceholders(t *testing.T) {
	text := "一二三四五六七八[[GL0]]九十"
	for _, max := range []int{9, 10, 11, 12} {
		chunks := chunker.Chunk(text, max)
		if strings.Join(chunks, "") != text {
			t.Fatalf("max %d: chunks %q do not rebuild the text", max, chunks)
		}
		found := false
		for _, c := range chunks {
			if strings.Contains(c, "[[GL0]]") {
				found = true
			}
		}
		if !found {
			t.Errorf("max %d: placeholder split across %q", max, chunks)
		}
	}
}

func TestChunk_RespectsLimit(t *testing.T) {
	text := strings.Repeat("Кожне речення тут. ", 200)
	for _, c := range chunker.Chunk(text, 120) {
		if n := utf8.RuneCountInString(c); n > 120 {
			t.Fatalf("chunk exceeds limit: %d runes", n)
		}
	}
}

func TestChunk_EmptyText(t *testing.T) {
	for _, c := range chunker.Chunk("", 100) {
		if c != "" {
			t.Errorf("expected empty chunk, got %q", c)
		}
	}
}

func TestJoin_RestoresParagraphs(t *testing.T) {
	source := "First paragraph text here.\n\nSecond paragraph text here."
	original := chunker.Chunk(source, 40)
	translated := []string{"Erster Absatz.", "Zweiter Absatz."}

	got := chunker.Join(original, translated, source)
	if got != "Erster Absatz.\n\nZweiter Absatz." {
		t.Errorf("unexpected join result %q", got)
	}
}

func TestJoin_SentenceChunks(t *testing.T) {
	source := "First sentence ends here. Second sentence follows."
	original := chunker.Chunk(source, 30)
	translated := make([]string, len(original))
	for i := range original {
		translated[i] = strings.ToUpper(original[i])
	}

	got := chunker.Join(original, translated, source)
	if got != strings.ToUpper(source) {
		t.Errorf("unexpected join result %q", got)
	}
}

func TestJoin_Empty(t *testing.T) {
	if got := chunker.Join(nil, nil, ""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestExtractContext(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		words int
		want  string
	}{
		{"fewer words than limit", "short text", 25, "short text"},
		{"last words", "alpha beta gamma delta epsilon", 3, "gamma delta epsilon"},
		{"trims input", "  lone  ", 5, "lone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chunker.ExtractContext(tt.text, tt.words); got != tt.want {
				t.Errorf("ExtractContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractContext_DefaultWordCount(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("w ", 50))
	got := len(strings.Fields(chunker.ExtractContext(text, 0)))
	if got != chunker.DefaultContextWords {
		t.Errorf("expected %d words, got %d", chunker.DefaultContextWords, got)
	}
}
