package extract

import (
	"bytes"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/valpere/doktran/internal/htmldoc"
)

// blockElements end a line of extracted text.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Blockquote: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
	atom.Section: true, atom.Article: true, atom.Hr: true,
}

func extractHTML(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	var w textWriter
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if htmldoc.IsInvisible(n) {
			return
		}
		if n.Type == html.TextNode {
			w.text(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			w.newline()
		}
	}
	walk(doc)

	return strings.TrimSpace(w.sb.String()), nil
}

// textWriter collapses whitespace the way a browser does for inline text.
type textWriter struct {
	sb        strings.Builder
	space     bool
	lineStart bool
}

func (w *textWriter) text(s string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			w.space = true
		}
		return
	}
	if unicode.IsSpace(rune(s[0])) {
		w.space = true
	}
	if w.space && w.sb.Len() > 0 && !w.lineStart {
		w.sb.WriteByte(' ')
	}
	w.sb.WriteString(strings.Join(fields, " "))
	w.space = unicode.IsSpace(rune(s[len(s)-1]))
	w.lineStart = false
}

func (w *textWriter) newline() {
	if w.sb.Len() > 0 && !w.lineStart {
		w.sb.WriteByte('\n')
	}
	w.space = false
	w.lineStart = true
}
