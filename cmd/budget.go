package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/andre-sav/HADES-sub001/internal/budget"
	"github.com/andre-sav/HADES-sub001/internal/model"
	"github.com/andre-sav/HADES-sub001/internal/store"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect weekly credit budgets",
	Long:  "Commands for viewing per-workflow credit caps, current spend, and the usage log.",
}

// -- budget status --

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cap, spend, and remaining credits per workflow",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, bc, err := initBudget(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		wfFlag, _ := cmd.Flags().GetString("workflow")
		period, _ := cmd.Flags().GetString("period")

		workflows, err := workflowsForFlag(wfFlag)
		if err != nil {
			return err
		}

		states := make([]model.BudgetState, 0, len(workflows))
		for _, wf := range workflows {
			var state model.BudgetState
			if period != "" {
				state, err = bc.StatusAt(ctx, wf, period)
			} else {
				state, err = bc.Status(ctx, wf)
			}
			if err != nil {
				return eris.Wrapf(err, "budget status %s", wf)
			}
			states = append(states, state)
		}

		formatBudgetStatus(os.Stdout, states)
		return nil
	},
}

// -- budget log --

var budgetLogCmd = &cobra.Command{
	Use:   "log",
	Short: "List usage records for a workflow and period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, _, err := initBudget(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		wfFlag, _ := cmd.Flags().GetString("workflow")
		period, _ := cmd.Flags().GetString("period")

		wf := model.Workflow(wfFlag)
		if !wf.Valid() {
			return eris.Errorf("budget log: unknown workflow %q (want intent or geography)", wfFlag)
		}
		if period == "" {
			period = budget.CurrentPeriodKey()
		}

		records, err := st.ListUsage(ctx, wf, period)
		if err != nil {
			return eris.Wrap(err, "budget log")
		}

		if len(records) == 0 {
			fmt.Fprintf(os.Stderr, "No usage recorded for %s in %s.\n", wf, period)
			return nil
		}

		formatUsageLog(os.Stdout, records)
		return nil
	},
}

func init() {
	budgetStatusCmd.Flags().String("workflow", "", "workflow to show (intent, geography); default both")
	budgetStatusCmd.Flags().String("period", "", "ISO week period key (e.g. 2026-W35); default current week")

	budgetLogCmd.Flags().String("workflow", "", "workflow to list (required)")
	budgetLogCmd.Flags().String("period", "", "ISO week period key; default current week")
	_ = budgetLogCmd.MarkFlagRequired("workflow")

	budgetCmd.AddCommand(budgetStatusCmd)
	budgetCmd.AddCommand(budgetLogCmd)
	rootCmd.AddCommand(budgetCmd)
}

// initBudget opens the store and builds a budget controller without
// requiring a valid scoring configuration.
func initBudget(ctx context.Context) (store.Store, *budget.Controller, error) {
	if err := cfg.Validate("budget"); err != nil {
		return nil, nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}

	return st, budget.NewController(st, cfg.Budget), nil
}

// workflowsForFlag resolves an optional --workflow value to the workflows to
// display, defaulting to both.
func workflowsForFlag(flag string) ([]model.Workflow, error) {
	if flag == "" {
		return []model.Workflow{model.WorkflowIntent, model.WorkflowGeography}, nil
	}
	wf := model.Workflow(flag)
	if !wf.Valid() {
		return nil, eris.Errorf("unknown workflow %q (want intent or geography)", flag)
	}
	return []model.Workflow{wf}, nil
}

// formatBudgetStatus writes a tabular budget view to w.
func formatBudgetStatus(out io.Writer, states []model.BudgetState) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WORKFLOW\tPERIOD\tCAP\tUSED\tREMAINING\tUSED%")
	_, _ = fmt.Fprintln(w, "--------\t------\t---\t----\t---------\t-----")

	for _, s := range states {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.0f%%\n",
			s.Workflow,
			s.PeriodKey,
			s.Cap,
			s.Used,
			s.Remaining,
			s.FractionUsed()*100,
		)
	}
	_ = w.Flush()
}

// formatUsageLog writes the usage records table to w.
func formatUsageLog(out io.Writer, records []model.CreditUsageRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIMESTAMP\tWORKFLOW\tCREDITS\tPERIOD\tID")
	_, _ = fmt.Fprintln(w, "---------\t--------\t-------\t------\t--")

	var total int
	for _, rec := range records {
		total += rec.CreditsUsed
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.Workflow,
			rec.CreditsUsed,
			rec.PeriodKey,
			truncateID(rec.ID),
		)
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t\t%d\t\t\n", total)
	_ = w.Flush()
}
