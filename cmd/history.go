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
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyOffset int
	historyUser   string
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse recorded translations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent translations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.ListRecords(context.Background(), historyLimit, historyOffset, historyUser)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
		if historyJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		if len(records) == 0 {
			fmt.Println("No translations recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWHEN\tUSER\tPAIR\tSERVICE\tFILE\tTEXT")
		for _, r := range records {
			src := r.SourceLang
			if r.DetectedLang != "" {
				src = r.DetectedLang
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s→%s\t%s\t%s\t%s\n",
				r.ID, r.Timestamp.Local().Format("2006-01-02 15:04"), r.User, src, r.TargetLang,
				r.PrimaryService, r.Filename, snippet(r.SourceText, 40))
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one translation record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.GetRecord(context.Background(), args[0], historyUser)
		if err != nil {
			return fmt.Errorf("failed to load record: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a translation record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteRecord(context.Background(), args[0], historyUser); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		fmt.Printf("Deleted record: %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.PersistentFlags().StringVarP(&historyUser, "user", "u", "", "Only records of this user (default all)")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of records")
	historyListCmd.Flags().IntVar(&historyOffset, "offset", 0, "Number of records to skip")
	historyListCmd.Flags().BoolVar(&historyJSON, "json", false, "Print records as JSON")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}
