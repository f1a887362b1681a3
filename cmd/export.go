package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/andre-sav/HADES-sub001/internal/export"
	"github.com/andre-sav/HADES-sub001/internal/model"
)

var (
	exportResult    string
	exportOut       string
	exportNoHistory bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a run's kept leads to CSV or XLSX",
	Long:  "Reads a pipeline result JSON (from `hades qualify --json`), writes the kept leads to the output file, and records their identities in export history so later runs can flag them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		result, err := readResultFile(exportResult)
		if err != nil {
			return err
		}
		if !result.Diagnostics.Budget.Allowed {
			return eris.Errorf("export: run was denied by budget (%s), nothing to export", result.Diagnostics.Budget.Reason)
		}
		if len(result.Kept) == 0 {
			return eris.New("export: result has no kept leads")
		}

		var rec export.Recorder
		if !exportNoHistory {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			rec = st
		}

		if flagged := result.Diagnostics.ExportFlagged; flagged > 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintln(os.Stderr, yellow(fmt.Sprintf("! %d lead(s) in this run were previously exported", flagged)))
		}

		n, err := export.ToFile(ctx, exportOut, result.Kept, rec)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintln(os.Stdout, green(fmt.Sprintf("wrote %d lead(s) to %s", n, exportOut)))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportResult, "result", "", "result JSON file from `hades qualify --json` (required)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file, .csv or .xlsx (required)")
	exportCmd.Flags().BoolVar(&exportNoHistory, "no-history", false, "skip recording exported identities")
	_ = exportCmd.MarkFlagRequired("result")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}

// readResultFile loads a persisted pipeline result.
func readResultFile(path string) (*model.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: read result file")
	}
	var result model.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, eris.Wrap(err, "export: parse result file")
	}
	return &result, nil
}
