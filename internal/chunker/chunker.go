// Package chunker splits large texts into pieces that fit a provider's
// payload limit while keeping paragraphs, sentences and words intact
// wherever possible. It also extracts a sliding-window context snippet
// (last N words) for LLM translators.
package chunker

import (
	"strings"
	"unicode"
)

const (
	// DefaultContextWords is the default number of words extracted by
	// ExtractContext for use as a sliding-window context.
	DefaultContextWords = 25

	// DefaultMaxChars matches the per-element limit of the Azure Translator
	// v3 API.
	DefaultMaxChars = 10000
)

// Chunk splits text into pieces each no longer than maxChars unicode
// code points. Splits are attempted (in order of preference) at:
//  1. Paragraph boundaries (\n\n or \r\n\r\n)
//  2. Sentence-ending punctuation (. ! ? and their CJK forms)
//  3. Whitespace (word boundary)
//  4. Hard cut at maxChars if no suitable boundary is found
//
// If text fits entirely within maxChars, a single-element slice is returned.
// If maxChars ≤ 0 it is treated as unlimited (returns the whole text).
func Chunk(text string, maxChars int) []string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return []string{text}
	}

	var chunks []string
	for len(runes) > maxChars {
		split := findSplit(runes[:maxChars])
		if piece := strings.TrimSpace(string(runes[:split])); piece != "" {
			chunks = append(chunks, piece)
		}
		runes = []rune(strings.TrimSpace(string(runes[split:])))
	}

	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// findSplit returns the rune index within window at which to cut. window is
// already limited to the maximum chunk length.
func findSplit(window []rune) int {
	n := len(window)

	if i := lastParagraphBreak(window); i > 0 {
		return i
	}

	for i := n - 2; i > 0; i-- {
		if isSentenceEnd(window[i]) && unicode.IsSpace(window[i+1]) {
			return i + 1
		}
		// CJK full stops are not followed by spaces.
		if isCJKSentenceEnd(window[i]) {
			return i + 1
		}
	}

	for i := n - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i
		}
	}

	return hardCut(window)
}

// hardCut returns len(window), pulled back before a "[[" placeholder that
// would otherwise be split.
func hardCut(window []rune) int {
	n := len(window)
	s := string(window)
	if open := strings.LastIndex(s, "[["); open > 0 && strings.LastIndex(s, "]]") < open {
		return len([]rune(s[:open]))
	}
	if n > 1 && window[n-1] == '[' {
		return n - 1
	}
	return n
}

// lastParagraphBreak returns the rune index just past the last blank line in
// window, or -1.
func lastParagraphBreak(window []rune) int {
	for i := len(window) - 2; i > 0; i-- {
		if window[i] != '\n' {
			continue
		}
		j := i - 1
		if window[j] == '\r' {
			j--
		}
		if j >= 0 && window[j] == '\n' {
			return i + 1
		}
	}
	return -1
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCJKSentenceEnd(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

// ExtractContext returns the last wordCount words of text, joined by a single
// space. If text has fewer words than wordCount, the entire text is returned.
// If wordCount ≤ 0, DefaultContextWords is used.
func ExtractContext(text string, wordCount int) string {
	if wordCount <= 0 {
		wordCount = DefaultContextWords
	}
	words := strings.Fields(text)
	if len(words) <= wordCount {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[len(words)-wordCount:], " ")
}

// Join reassembles translated chunks. Chunks cut at paragraph boundaries get
// their blank line back; all others are joined by a single space.
func Join(original, translated []string, source string) string {
	if len(translated) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(translated[0])
	offset := 0
	for i := 1; i < len(translated); i++ {
		sep := " "
		if i-1 < len(original) {
			if idx := strings.Index(source[offset:], original[i-1]); idx >= 0 {
				offset += idx + len(original[i-1])
				rest := source[offset:]
				trimmed := strings.TrimLeft(rest, " \t")
				if strings.HasPrefix(trimmed, "\n\n") || strings.HasPrefix(trimmed, "\r\n\r\n") {
					sep = "\n\n"
				} else if strings.HasPrefix(trimmed, "\n") {
					sep = "\n"
				}
			}
		}
		sb.WriteString(sep)
		sb.WriteString(translated[i])
	}
	return sb.String()
}
