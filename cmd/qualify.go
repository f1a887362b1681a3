package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andre-sav/HADES-sub001/internal/model"
	"github.com/andre-sav/HADES-sub001/internal/pipeline"
	"github.com/andre-sav/HADES-sub001/pkg/provider"
)

var (
	qualifyInput     string
	qualifyFetch     bool
	qualifyWorkflows []string
	qualifyLimit     int
	qualifyParams    []string
	qualifyJSON      bool
)

var qualifyCmd = &cobra.Command{
	Use:   "qualify",
	Short: "Run the qualification pipeline over a lead batch",
	Long:  "Scores, deduplicates, and budget-gates a batch of leads read from a JSON file or fetched from the provider. The result is persisted to run history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		workflows, err := parseWorkflows(qualifyWorkflows)
		if err != nil {
			return err
		}

		var leads []*model.Lead
		switch {
		case qualifyInput != "" && qualifyFetch:
			return eris.New("qualify: --input and --fetch are mutually exclusive")
		case qualifyInput != "":
			leads, err = readLeadFile(qualifyInput)
		case qualifyFetch:
			leads, err = fetchLeads(ctx, env, workflows)
		default:
			return eris.New("qualify: provide --input <file> or --fetch")
		}
		if err != nil {
			return err
		}

		result, err := env.Pipeline.Process(ctx, leads, pipeline.Options{Workflows: workflows})
		if err != nil {
			return eris.Wrap(err, "qualify: process batch")
		}

		run, err := env.Store.CreateRun(ctx, result)
		if err != nil {
			return eris.Wrap(err, "qualify: persist run")
		}

		if qualifyJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printSummary(os.Stdout, run.ID, result)
		return nil
	},
}

func init() {
	qualifyCmd.Flags().StringVar(&qualifyInput, "input", "", "JSON file containing the lead batch")
	qualifyCmd.Flags().BoolVar(&qualifyFetch, "fetch", false, "fetch leads from the provider (spends credits)")
	qualifyCmd.Flags().StringSliceVar(&qualifyWorkflows, "workflows", nil, "workflows to cover (intent, geography); default derives from the batch")
	qualifyCmd.Flags().IntVar(&qualifyLimit, "limit", 100, "max leads per workflow when fetching")
	qualifyCmd.Flags().StringArrayVar(&qualifyParams, "param", nil, "provider filter as key=value (repeatable)")
	qualifyCmd.Flags().BoolVar(&qualifyJSON, "json", false, "print the full result as JSON instead of a summary")
	rootCmd.AddCommand(qualifyCmd)
}

// parseWorkflows validates the --workflows flag values.
func parseWorkflows(raw []string) ([]model.Workflow, error) {
	workflows := make([]model.Workflow, 0, len(raw))
	for _, s := range raw {
		wf := model.Workflow(strings.ToLower(strings.TrimSpace(s)))
		if !wf.Valid() {
			return nil, eris.Errorf("qualify: unknown workflow %q (want intent or geography)", s)
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// parseParams splits repeatable key=value flags into a provider filter map.
func parseParams(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, eris.Errorf("qualify: malformed --param %q (want key=value)", kv)
		}
		params[k] = v
	}
	return params, nil
}

// readLeadFile loads a lead batch from a JSON array file.
func readLeadFile(path string) ([]*model.Lead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "qualify: read input file")
	}
	var leads []*model.Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, eris.Wrap(err, "qualify: parse input file")
	}
	return leads, nil
}

// fetchLeads pulls one paid provider query per workflow, in parallel. Each
// query is authorized against the weekly cap up front using the fetch limit
// as the worst-case estimate, and the actual returned count is recorded as
// spend afterward.
func fetchLeads(ctx context.Context, env *pipelineEnv, workflows []model.Workflow) ([]*model.Lead, error) {
	if len(workflows) == 0 {
		workflows = []model.Workflow{model.WorkflowIntent, model.WorkflowGeography}
	}
	if qualifyLimit <= 0 {
		return nil, eris.New("qualify: --limit must be positive when fetching")
	}

	params, err := parseParams(qualifyParams)
	if err != nil {
		return nil, err
	}

	for _, wf := range workflows {
		est := env.Budget.Estimate(qualifyLimit)
		auth, err := env.Budget.Authorize(ctx, wf, est)
		if err != nil {
			return nil, eris.Wrapf(err, "qualify: authorize %s fetch", wf)
		}
		if !auth.Allowed {
			return nil, eris.Errorf("qualify: fetch denied: %s", auth.Reason)
		}
	}

	client := provider.NewClient(cfg.Provider)

	batches := make([][]*model.Lead, len(workflows))
	g, gctx := errgroup.WithContext(ctx)
	for i, wf := range workflows {
		g.Go(func() error {
			records, err := client.Fetch(gctx, provider.Query{
				Workflow: string(wf),
				Limit:    qualifyLimit,
				Params:   params,
			})
			if err != nil {
				return eris.Wrapf(err, "qualify: fetch %s", wf)
			}
			if len(records) > 0 {
				if _, err := env.Budget.Record(gctx, wf, len(records)); err != nil {
					return eris.Wrapf(err, "qualify: record %s spend", wf)
				}
			}
			batch := make([]*model.Lead, 0, len(records))
			for _, rec := range records {
				batch = append(batch, leadFromRecord(wf, rec))
			}
			batches[i] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var leads []*model.Lead
	for _, b := range batches {
		leads = append(leads, b...)
	}
	zap.L().Info("qualify: provider fetch complete",
		zap.Int("workflows", len(workflows)),
		zap.Int("leads", len(leads)),
	)
	return leads, nil
}

// leadFromRecord maps a raw provider row onto the domain lead shape.
func leadFromRecord(wf model.Workflow, rec provider.Record) *model.Lead {
	return &model.Lead{
		ContactID:      rec.ContactID,
		Workflow:       wf,
		CompanyName:    rec.CompanyName,
		Phone:          rec.Phone,
		SICCode:        rec.SICCode,
		EmployeeCount:  rec.EmployeeCount,
		SignalStrength: model.SignalStrength(rec.SignalStrength),
		SignalAgeDays:  rec.SignalAgeDays,
		DistanceMiles:  rec.DistanceMiles,
		Latitude:       rec.Latitude,
		Longitude:      rec.Longitude,
	}
}

// printSummary writes the run accounting table plus the budget and
// previously-exported banners.
func printSummary(out io.Writer, runID string, res *model.Result) {
	d := res.Diagnostics

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", runID)
	_, _ = fmt.Fprintf(w, "Workflows:\t%s\n", joinWorkflows(res.Workflows))
	_, _ = fmt.Fprintf(w, "Input leads:\t%d\n", d.InputCount)
	_, _ = fmt.Fprintf(w, "Stale excluded:\t%d\n", d.StaleExcluded)
	_, _ = fmt.Fprintf(w, "ICP excluded:\t%d\n", d.ICPExcluded)
	_, _ = fmt.Fprintf(w, "Scoring failures:\t%d\n", len(d.ScoringFailures))
	_, _ = fmt.Fprintf(w, "Duplicates removed:\t%d\n", d.DuplicatesRemoved)
	_, _ = fmt.Fprintf(w, "Kept:\t%d\n", d.KeptCount)
	_ = w.Flush()

	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	if d.ExportFlagged > 0 {
		_, _ = fmt.Fprintln(out, yellow(fmt.Sprintf("! %d lead(s) were previously exported (%d excluded)", d.ExportFlagged, d.ExportExcluded)))
	}
	if d.Budget.Allowed {
		_, _ = fmt.Fprintln(out, green(fmt.Sprintf("budget: authorized %d credit(s), %d remaining", d.Budget.RequestedCredits, d.Budget.RemainingAfter)))
	} else {
		_, _ = fmt.Fprintln(out, red("budget: denied: "+d.Budget.Reason))
	}
}

// joinWorkflows renders the covered workflows for display.
func joinWorkflows(workflows []model.Workflow) string {
	if len(workflows) == 0 {
		return "-"
	}
	names := make([]string, len(workflows))
	for i, wf := range workflows {
		names[i] = string(wf)
	}
	return strings.Join(names, ", ")
}
