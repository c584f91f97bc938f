// Package glossary shields domain vocabulary from the translation provider.
// Before translation every known source term is swapped for a numbered
// marker ([[GL0]], [[GL1]], …) that providers pass through untouched; after
// translation Restore puts the preferred target term in its place.
package glossary

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var reMarker = regexp.MustCompile(`\[\[\s*GL(\d+)\s*\]\]`)

// Term maps one source-language term to its fixed translation. An empty
// Target means the term is kept verbatim.
type Term struct {
	Source string
	Target string
}

// Markers holds the terms substituted by Protect, indexed by marker number.
type Markers []Term

// Terms converts a source→target map into a slice ordered longest source
// first, so a term contained in a longer one never splits it. Ties are broken
// alphabetically to keep marker numbering stable.
func Terms(m map[string]string) []Term {
	terms := make([]Term, 0, len(m))
	for src, tgt := range m {
		if strings.TrimSpace(src) == "" {
			continue
		}
		terms = append(terms, Term{Source: src, Target: tgt})
	}
	sort.Slice(terms, func(i, j int) bool {
		li, lj := len([]rune(terms[i].Source)), len([]rune(terms[j].Source))
		if li != lj {
			return li > lj
		}
		return terms[i].Source < terms[j].Source
	})
	return terms
}

// Protect replaces every literal occurrence of each term's source with a
// marker. Matching is case-sensitive. Terms must already be ordered by Terms.
func Protect(text string, terms []Term) (string, Markers) {
	var markers Markers
	for _, term := range terms {
		if !strings.Contains(text, term.Source) {
			continue
		}
		id := Marker(len(markers))
		replaced := replaceOutsideMarkers(text, term.Source, id)
		if replaced == text {
			continue
		}
		markers = append(markers, term)
		text = replaced
	}
	return text, markers
}

// replaceOutsideMarkers replaces old with new everywhere except inside
// markers inserted by an earlier term.
func replaceOutsideMarkers(text, old, new string) string {
	locs := reMarker.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return strings.ReplaceAll(text, old, new)
	}
	var sb strings.Builder
	prev := 0
	for _, loc := range locs {
		sb.WriteString(strings.ReplaceAll(text[prev:loc[0]], old, new))
		sb.WriteString(text[loc[0]:loc[1]])
		prev = loc[1]
	}
	sb.WriteString(strings.ReplaceAll(text[prev:], old, new))
	return sb.String()
}

// Restore substitutes markers in translated text with the target terms.
// Providers occasionally insert spaces inside the brackets; those variants
// are accepted too. Unknown indices are left as-is.
func Restore(text string, markers Markers) string {
	if len(markers) == 0 {
		return text
	}
	return reMarker.ReplaceAllStringFunc(text, func(match string) string {
		sub := reMarker.FindStringSubmatch(match)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx < 0 || idx >= len(markers) {
			return match
		}
		if markers[idx].Target == "" {
			return markers[idx].Source
		}
		return markers[idx].Target
	})
}

// Missing returns the indices of markers that no longer appear in text.
func Missing(text string, markers Markers) []int {
	found := make(map[int]bool, len(markers))
	for _, sub := range reMarker.FindAllStringSubmatch(text, -1) {
		if idx, err := strconv.Atoi(sub[1]); err == nil {
			found[idx] = true
		}
	}
	var missing []int
	for i := range markers {
		if !found[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

// Marker returns the placeholder text for index i.
func Marker(i int) string {
	return fmt.Sprintf("[[GL%d]]", i)
}

// InstructionHint is appended to LLM prompts so markers survive.
func InstructionHint() string {
	return "Keep every [[GLn]] marker exactly as it appears; do not translate, move, or remove it."
}
