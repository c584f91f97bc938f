/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/doktran/internal/orchestrator"
	"github.com/valpere/doktran/internal/spreadsheet"
)

var (
	excelInput       string
	excelOutput      string
	excelSource      string
	excelTarget      string
	excelColumns     []int
	excelHighlighted bool
	excelSkipHeader  bool
)

var excelCmd = &cobra.Command{
	Use:   "excel",
	Short: "Translate cells of an .xlsx workbook in place",
	Long: `Translate selected columns (or highlighted cells) of the active sheet and
write a copy of the workbook with the translated values.

Columns are 0-indexed. Defaults come from the excel section of the config.

Examples:
  doktran excel -i products.xlsx
  doktran excel -i products.xlsx -o out.xlsx -t uk --columns 2,3
  doktran excel -i review.xlsx --highlighted -t de`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !strings.EqualFold(filepath.Ext(excelInput), ".xlsx") {
			return fmt.Errorf("input must be an .xlsx file")
		}

		a, err := newApp()
		if err != nil {
			return err
		}

		target := excelTarget
		if target == "" {
			target = a.cfg.Excel.TargetLang
		}
		columns := excelColumns
		if !cmd.Flags().Changed("columns") {
			columns = a.cfg.Excel.Columns
		}
		skipHeader := a.cfg.Excel.SkipHeader
		if cmd.Flags().Changed("skip-header") {
			skipHeader = excelSkipHeader
		}
		output := excelOutput
		if output == "" {
			output = filepath.Join(filepath.Dir(excelInput), "translated_"+filepath.Base(excelInput))
		}

		data, err := os.ReadFile(excelInput)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		st, err := a.openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		orch, err := a.buildOrchestrator(st)
		if err != nil {
			return err
		}

		ctx := context.Background()
		translate := orch.CellFunc(orchestrator.Job{SourceLang: excelSource, TargetLang: target})

		var res *spreadsheet.Result
		if excelHighlighted {
			res, err = spreadsheet.TranslateHighlighted(ctx, data, translate)
		} else {
			res, err = spreadsheet.TranslateColumns(ctx, data, columns, skipHeader, translate)
		}
		if err != nil {
			return err
		}

		if err := writeOutput(output, res.Data); err != nil {
			return err
		}
		fmt.Printf("Translated %d cells on sheet %q to %s: %s\n", res.Cells, res.Sheet, target, output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(excelCmd)

	excelCmd.Flags().StringVarP(&excelInput, "input", "i", "", "Input .xlsx file (required)")
	excelCmd.Flags().StringVarP(&excelOutput, "output", "o", "", "Output file (default translated_<input>)")
	excelCmd.Flags().StringVarP(&excelSource, "source", "s", "auto", "Source language code")
	excelCmd.Flags().StringVarP(&excelTarget, "target", "t", "", "Target language code (default excel.target_lang)")
	excelCmd.Flags().IntSliceVar(&excelColumns, "columns", nil, "0-indexed columns to translate (default excel.columns)")
	excelCmd.Flags().BoolVar(&excelHighlighted, "highlighted", false, "Translate highlighted cells instead of columns")
	excelCmd.Flags().BoolVar(&excelSkipHeader, "skip-header", true, "Leave the first row untranslated")

	excelCmd.MarkFlagRequired("input")
}
