package extract

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// markdownToHTML renders CommonMark with the usual extensions.
func markdownToHTML(md []byte) []byte {
	opts := html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	}
	renderer := html.NewRenderer(opts)
	ext := parser.CommonExtensions | parser.Attributes
	p := parser.NewWithExtensions(ext)
	doc := p.Parse(md)
	return markdown.Render(doc, renderer)
}

// extractMarkdown renders markdown to HTML and keeps the visible text, so
// emphasis markers, link targets and fences do not reach the translator.
func extractMarkdown(data []byte) (string, error) {
	text, err := extractText(data)
	if err != nil {
		return "", err
	}
	return extractHTML(markdownToHTML([]byte(text)))
}
