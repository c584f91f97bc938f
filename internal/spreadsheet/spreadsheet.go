// Package spreadsheet translates cells of an .xlsx workbook in place.
package spreadsheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrInvalidWorkbook is returned when the input is not a readable xlsx file.
	ErrInvalidWorkbook = errors.New("invalid workbook")
	ErrNoColumns       = errors.New("no columns given")
)

// TranslateFunc translates one cell value.
type TranslateFunc func(ctx context.Context, text string) (string, error)

// MissingColumnsError lists requested columns beyond the sheet's width.
type MissingColumnsError struct {
	Columns []int
	Width   int
}

func (e *MissingColumnsError) Error() string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = fmt.Sprintf("%d", c)
	}
	return fmt.Sprintf("missing columns in the Excel file: [%s] (sheet has %d columns)", strings.Join(names, ", "), e.Width)
}

// Result is the translated workbook.
type Result struct {
	Data  []byte
	Sheet string
	Cells int
}

// TranslateColumns translates the non-empty text cells of the given
// 0-indexed columns on the active sheet. With skipHeader the first row is
// left as is.
func TranslateColumns(ctx context.Context, data []byte, columns []int, skipHeader bool, translate TranslateFunc) (*Result, error) {
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", ErrInvalidWorkbook, sheet, err)
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	var missing []int
	for _, c := range columns {
		if c < 0 || c >= width {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		return nil, &MissingColumnsError{Columns: missing, Width: width}
	}

	t := newCellTranslator(f, sheet, translate)
	for r, row := range rows {
		if skipHeader && r == 0 {
			continue
		}
		for _, c := range columns {
			if c >= len(row) {
				continue
			}
			if err := t.translateCell(ctx, c, r); err != nil {
				return nil, err
			}
		}
	}

	return t.result()
}

// TranslateHighlighted translates text cells on the active sheet whose fill
// is set to anything other than the default "no fill".
func TranslateHighlighted(ctx context.Context, data []byte, translate TranslateFunc) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", ErrInvalidWorkbook, sheet, err)
	}

	t := newCellTranslator(f, sheet, translate)
	for r, row := range rows {
		for c := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			highlighted, err := isHighlighted(f, sheet, cell)
			if err != nil {
				return nil, err
			}
			if !highlighted {
				continue
			}
			if err := t.translateCell(ctx, c, r); err != nil {
				return nil, err
			}
		}
	}

	return t.result()
}

func isHighlighted(f *excelize.File, sheet, cell string) (bool, error) {
	styleID, err := f.GetCellStyle(sheet, cell)
	if err != nil {
		return false, fmt.Errorf("style of %s: %w", cell, err)
	}
	if styleID == 0 {
		return false, nil
	}
	style, err := f.GetStyle(styleID)
	if err != nil {
		return false, fmt.Errorf("style of %s: %w", cell, err)
	}
	if style.Fill.Type == "gradient" {
		return true, nil
	}
	return style.Fill.Pattern > 0 && len(style.Fill.Color) > 0, nil
}

// cellTranslator rewrites cells and remembers translations so repeated
// values cost one provider call.
type cellTranslator struct {
	f         *excelize.File
	sheet     string
	translate TranslateFunc
	done      map[string]string
	cells     int
}

func newCellTranslator(f *excelize.File, sheet string, translate TranslateFunc) *cellTranslator {
	return &cellTranslator{f: f, sheet: sheet, translate: translate, done: make(map[string]string)}
}

// translateCell handles the cell at 0-indexed (col, row). Numbers, dates,
// booleans and formulas are skipped.
func (t *cellTranslator) translateCell(ctx context.Context, col, row int) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return err
	}

	cellType, err := t.f.GetCellType(t.sheet, cell)
	if err != nil {
		return err
	}
	if cellType != excelize.CellTypeSharedString && cellType != excelize.CellTypeInlineString {
		return nil
	}

	value, err := t.f.GetCellValue(t.sheet, cell)
	if err != nil {
		return err
	}
	if strings.TrimSpace(value) == "" {
		return nil
	}

	translated, ok := t.done[value]
	if !ok {
		translated, err = t.translate(ctx, value)
		if err != nil {
			return fmt.Errorf("cell %s: %w", cell, err)
		}
		t.done[value] = translated
	}

	if err := t.f.SetCellStr(t.sheet, cell, translated); err != nil {
		return err
	}
	t.cells++
	return nil
}

func (t *cellTranslator) result() (*Result, error) {
	buf, err := t.f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return &Result{Data: buf.Bytes(), Sheet: t.sheet, Cells: t.cells}, nil
}
