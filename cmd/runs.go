package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/andre-sav/HADES-sub001/internal/model"
	"github.com/andre-sav/HADES-sub001/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect qualification run history",
	Long:  "Commands for listing, viewing, and summarizing past pipeline runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past qualification runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		workflow, _ := cmd.Flags().GetString("workflow")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Workflow: model.Workflow(workflow),
			Limit:    limit,
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run's full diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics over recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("workflow", "", "filter by covered workflow (intent, geography)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Int("limit", 1000, "max number of recent runs to aggregate")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Denied     int
	InputLeads int
	KeptLeads  int
	Duplicates int
	Failures   int
}

// computeRunStats aggregates diagnostics across runs.
func computeRunStats(runs []model.Run) runStats {
	var s runStats
	s.Total = len(runs)

	for _, r := range runs {
		d := r.Diagnostics
		if !d.Budget.Allowed {
			s.Denied++
		}
		s.InputLeads += d.InputCount
		s.KeptLeads += d.KeptCount
		s.Duplicates += d.DuplicatesRemoved
		s.Failures += len(d.ScoringFailures)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tWORKFLOWS\tCREATED\tINPUT\tKEPT\tDUPES\tBUDGET")
	_, _ = fmt.Fprintln(w, "--\t---------\t-------\t-----\t----\t-----\t------")

	for _, r := range runs {
		budgetCol := "ok"
		if !r.Diagnostics.Budget.Allowed {
			budgetCol = "denied"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			joinWorkflows(r.Workflows),
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Diagnostics.InputCount,
			r.Diagnostics.KeptCount,
			r.Diagnostics.DuplicatesRemoved,
			budgetCol,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Budget denials:\t%d\n", s.Denied)
	_, _ = fmt.Fprintf(w, "Leads in:\t%d\n", s.InputLeads)
	_, _ = fmt.Fprintf(w, "Leads kept:\t%d\n", s.KeptLeads)
	_, _ = fmt.Fprintf(w, "Duplicates removed:\t%d\n", s.Duplicates)
	_, _ = fmt.Fprintf(w, "Scoring failures:\t%d\n", s.Failures)
	if s.InputLeads > 0 {
		_, _ = fmt.Fprintf(w, "Keep rate:\t%.1f%%\n", float64(s.KeptLeads)/float64(s.InputLeads)*100)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
