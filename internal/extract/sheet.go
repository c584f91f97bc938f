package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractSpreadsheet returns every non-empty cell of every sheet, row-major,
// one per line.
func extractSpreadsheet(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	var lines []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		lines = appendCells(lines, rows)
	}
	return strings.Join(lines, "\n"), nil
}

func extractCSV(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(trimBOM(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return strings.Join(appendCells(nil, rows), "\n"), nil
}

func appendCells(lines []string, rows [][]string) []string {
	for _, row := range rows {
		for _, cell := range row {
			if c := strings.TrimSpace(cell); c != "" {
				lines = append(lines, c)
			}
		}
	}
	return lines
}
