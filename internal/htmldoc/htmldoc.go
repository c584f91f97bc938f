// Package htmldoc translates the visible text of an HTML document in place.
package htmldoc

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TranslateFunc translates one text segment.
type TranslateFunc func(ctx context.Context, text string) (string, error)

// IsInvisible reports whether n is an element whose text is never rendered:
// script, style, head, title, meta, noscript, template and any element with
// type="text/javascript".
func IsInvisible(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Head, atom.Title, atom.Meta, atom.Noscript, atom.Template:
		return true
	}
	for _, a := range n.Attr {
		if a.Key == "type" && strings.EqualFold(a.Val, "text/javascript") {
			return true
		}
	}
	return false
}

// Result is a translated document.
type Result struct {
	HTML     string
	Segments int
}

// Translate replaces every visible, non-blank text node with its
// translation and re-renders the document. Surrounding whitespace of each
// node is kept; identical segments are translated once.
func Translate(ctx context.Context, data []byte, translate TranslateFunc) (*Result, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var nodes []*html.Node
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		if IsInvisible(n) {
			return
		}
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
			nodes = append(nodes, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(doc)

	done := make(map[string]string)
	for _, n := range nodes {
		lead, core, trail := splitSpace(n.Data)
		translated, ok := done[core]
		if !ok {
			translated, err = translate(ctx, core)
			if err != nil {
				return nil, err
			}
			done[core] = translated
		}
		n.Data = lead + translated + trail
	}

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return &Result{HTML: out.String(), Segments: len(done)}, nil
}

// splitSpace separates leading and trailing whitespace from s.
func splitSpace(s string) (lead, core, trail string) {
	start := len(s) - len(strings.TrimLeftFunc(s, unicode.IsSpace))
	end := len(strings.TrimRightFunc(s, unicode.IsSpace))
	return s[:start], s[start:end], s[end:]
}
