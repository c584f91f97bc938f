// Package extract turns uploaded documents into plain text ready for
// translation. The format is chosen by file extension.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/valpere/doktran/internal"
)

// DefaultMaxBytes is the default upload limit (20 MiB).
const DefaultMaxBytes int64 = 20 << 20

var (
	// ErrUnsupportedFormat is returned for file extensions without a parser.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("file too large")
	// ErrInvalidDocument is returned when a file does not parse as its format.
	ErrInvalidDocument = errors.New("invalid document")
)

type Format string

const (
	FormatText        Format = "text"
	FormatMarkdown    Format = "markdown"
	FormatPDF         Format = "pdf"
	FormatDocx        Format = "docx"
	FormatHTML        Format = "html"
	FormatSpreadsheet Format = "spreadsheet"
	FormatCSV         Format = "csv"
)

// Document is the plain-text rendition of an upload.
type Document struct {
	Filename string
	Format   Format
	Text     string
}

// Detect returns the document format based on file extension.
func Detect(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".text":
		return FormatText, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDocx, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".xlsx":
		return FormatSpreadsheet, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(SupportedExtensions(), ", "))
	}
}

// SupportedExtensions lists the accepted file extensions.
func SupportedExtensions() []string {
	return []string{".txt", ".text", ".md", ".markdown", ".pdf", ".docx", ".html", ".htm", ".xlsx", ".csv"}
}

// Extract parses data according to the extension of filename. A document
// without any text yields internal.ErrEmptyText.
func Extract(ctx context.Context, filename string, data []byte) (*Document, error) {
	format, err := Detect(filename)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var text string
	switch format {
	case FormatText:
		text, err = extractText(data)
	case FormatMarkdown:
		text, err = extractMarkdown(data)
	case FormatPDF:
		text, err = extractPDF(data)
	case FormatDocx:
		text, err = extractDocx(data)
	case FormatHTML:
		text, err = extractHTML(data)
	case FormatSpreadsheet:
		text, err = extractSpreadsheet(data)
	case FormatCSV:
		text, err = extractCSV(data)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s (%s): %w: %w", filename, format, ErrInvalidDocument, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("extract %s: %w", filename, internal.ErrEmptyText)
	}

	return &Document{Filename: filename, Format: format, Text: text}, nil
}

// ReadLimited reads r fully, failing with ErrTooLarge once more than max
// bytes arrive. max <= 0 means DefaultMaxBytes.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, max)
	}
	return data, nil
}

func extractText(data []byte) (string, error) {
	data = trimBOM(data)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text is not valid UTF-8")
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

func trimBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
