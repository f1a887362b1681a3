// Package pipeline sequences one qualification run over a lead batch: ICP
// screening, contact-identity collapse, scoring, deduplication, and the
// budget gate. Per-lead problems become diagnostics; only configuration
// defects and budget-store failures abort a run.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/andre-sav/HADES-sub001/internal/budget"
	"github.com/andre-sav/HADES-sub001/internal/config"
	"github.com/andre-sav/HADES-sub001/internal/dedup"
	"github.com/andre-sav/HADES-sub001/internal/model"
	"github.com/andre-sav/HADES-sub001/internal/scoring"
)

// ExportHistory supplies the identity keys of leads already delivered to
// the CRM. Satisfied by store.Store.
type ExportHistory interface {
	ExportedIdentities(ctx context.Context) ([]string, error)
}

// Options carries per-run inputs that are not deployment configuration.
type Options struct {
	// Workflows declares which workflows this batch covers, so a run whose
	// leads all got filtered still authorizes and reports against the right
	// caps. Empty means derive the set from the leads.
	Workflows []model.Workflow
}

// Pipeline wires the scoring, dedup, and budget engines for qualification
// runs. One Pipeline serves many runs; it holds no per-run state.
type Pipeline struct {
	cfg     *config.Config
	scorer  *scoring.Engine
	deduper *dedup.Engine
	budget  *budget.Controller
	history ExportHistory

	sicWhitelist map[string]struct{}
}

// New builds a Pipeline over already-constructed engines.
func New(cfg *config.Config, scorer *scoring.Engine, deduper *dedup.Engine, bc *budget.Controller, history ExportHistory) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		scorer:  scorer,
		deduper: deduper,
		budget:  bc,
		history: history,
	}
	if len(cfg.ICP.SICWhitelist) > 0 {
		p.sicWhitelist = make(map[string]struct{}, len(cfg.ICP.SICWhitelist))
		for _, sic := range cfg.ICP.SICWhitelist {
			p.sicWhitelist[scoring.NormalizeSIC(sic)] = struct{}{}
		}
	}
	return p
}

// Process qualifies one batch. Kept leads come back in descending score
// order; every input lead is accounted for in the diagnostics as kept,
// excluded, collapsed, or failed. On budget denial the result carries the
// denial and an empty kept set, so nothing is charged or handed to export.
func (p *Pipeline) Process(ctx context.Context, leads []*model.Lead, opts Options) (*model.Result, error) {
	if err := p.cfg.Validate("qualify"); err != nil {
		return nil, eris.Wrap(err, "pipeline: configuration")
	}

	started := time.Now().UTC()
	log := zap.L().With(zap.Int("input_count", len(leads)))
	log.Info("pipeline: starting qualification run")

	// Intake: stamp provider order for deterministic tie-breaks.
	for i, lead := range leads {
		lead.SourceIndex = i
	}

	diag := model.Diagnostics{InputCount: len(leads)}
	workflows := p.runWorkflows(leads, opts)

	// ICP and staleness screen.
	eligible := make([]*model.Lead, 0, len(leads))
	for _, lead := range leads {
		reason, stale, ok := p.screen(lead)
		if ok {
			eligible = append(eligible, lead)
			continue
		}
		if stale {
			diag.StaleExcluded++
		} else {
			diag.ICPExcluded++
		}
		log.Debug("pipeline: lead excluded",
			zap.String("contact_id", lead.ContactID),
			zap.String("company", lead.CompanyName),
			zap.String("reason", reason),
		)
	}

	// Contact-identity collapse runs before scoring so provider pagination
	// duplicates never inflate scored counts.
	collapsed, contactGroups := p.deduper.CollapseContacts(eligible)
	diag.DuplicateGroups = append(diag.DuplicateGroups, contactGroups...)
	for _, g := range contactGroups {
		diag.DuplicatesRemoved += len(g.Dropped)
	}

	// Score survivors; a failed lead is reported and excluded, never fatal.
	scored := make([]*model.Lead, 0, len(collapsed))
	for _, lead := range collapsed {
		points, tier, err := p.scorer.Score(lead)
		if err != nil {
			diag.ScoringFailures = append(diag.ScoringFailures, model.LeadFailure{
				ContactID:   lead.ContactID,
				CompanyName: lead.CompanyName,
				Reason:      err.Error(),
			})
			log.Warn("pipeline: lead failed scoring",
				zap.String("contact_id", lead.ContactID),
				zap.String("company", lead.CompanyName),
				zap.Error(err),
			)
			continue
		}
		lead.Score = &points
		lead.FreshnessTier = tier
		scored = append(scored, lead)
	}
	diag.ScoredCount = len(scored)

	// Remaining dedup tiers plus export-history flagging. History being
	// unreadable only costs exclusion recall, so it degrades rather than
	// aborting the run.
	var exported dedup.IdentitySet
	if ids, err := p.history.ExportedIdentities(ctx); err != nil {
		log.Warn("pipeline: export history unavailable, exclusion tier skipped", zap.Error(err))
	} else {
		exported = dedup.NewIdentitySet(ids)
	}

	dres := p.deduper.Deduplicate(scored, exported)
	diag.DuplicateGroups = append(diag.DuplicateGroups, dres.Groups...)
	diag.DuplicatesRemoved += dres.RemovedCount
	diag.ExportFlagged = dres.ExportFlagged
	diag.ExportExcluded = dres.ExportExcluded

	kept := dres.Kept
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].RanksAbove(kept[j]) })

	// Budget gate on the post-dedup kept counts. A denial empties the kept
	// set so nothing downstream charges or exports part of a batch.
	auth, err := p.authorize(ctx, workflows, kept)
	if err != nil {
		return nil, err
	}
	diag.Budget = auth
	if !auth.Allowed {
		kept = nil
	}
	diag.KeptCount = len(kept)

	log.Info("pipeline: run complete",
		zap.Int("kept", diag.KeptCount),
		zap.Int("icp_excluded", diag.ICPExcluded),
		zap.Int("stale_excluded", diag.StaleExcluded),
		zap.Int("duplicates_removed", diag.DuplicatesRemoved),
		zap.Int("scoring_failures", len(diag.ScoringFailures)),
		zap.Bool("budget_allowed", auth.Allowed),
	)

	return &model.Result{
		Kept:        kept,
		Diagnostics: diag,
		Workflows:   workflows,
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
	}, nil
}

// screen applies the pre-scoring eligibility gate: employee floor, optional
// SIC whitelist, then signal staleness. The first failing check wins so each
// exclusion lands in exactly one diagnostic bucket.
func (p *Pipeline) screen(lead *model.Lead) (reason string, stale, ok bool) {
	if floor := p.cfg.ICP.EmployeeMin; floor > 0 && lead.EmployeeCount < floor {
		return fmt.Sprintf("employee count %d below minimum %d", lead.EmployeeCount, floor), false, false
	}
	if p.sicWhitelist != nil {
		if _, listed := p.sicWhitelist[scoring.NormalizeSIC(lead.SICCode)]; !listed {
			return fmt.Sprintf("SIC %q not in whitelist", lead.SICCode), false, false
		}
	}
	if lead.Workflow == model.WorkflowIntent {
		if scoring.TierFor(lead.SignalAgeDays, p.cfg.Scoring.FreshnessTiers) == model.TierStale {
			return fmt.Sprintf("signal age %d days past cooling bound %d",
				lead.SignalAgeDays, p.cfg.Scoring.FreshnessTiers.CoolingMaxDays), true, false
		}
	}
	return "", false, true
}

// runWorkflows resolves the workflow set the run covers, preferring the
// caller's declaration over derivation from the batch. Order is fixed
// (intent, geography) so authorization and reporting are deterministic.
func (p *Pipeline) runWorkflows(leads []*model.Lead, opts Options) []model.Workflow {
	present := make(map[model.Workflow]bool, 2)
	if len(opts.Workflows) > 0 {
		for _, wf := range opts.Workflows {
			present[wf] = true
		}
	} else {
		for _, lead := range leads {
			present[lead.Workflow] = true
		}
	}

	var out []model.Workflow
	for _, wf := range []model.Workflow{model.WorkflowIntent, model.WorkflowGeography} {
		if present[wf] {
			out = append(out, wf)
		}
	}
	return out
}

// authorize checks each workflow's kept count against its weekly cap. The
// first denial is returned as-is, its reason naming the deficit; when every
// workflow fits, the combined authorization sums the counts so a
// cross-workflow run reports one coherent gate outcome.
func (p *Pipeline) authorize(ctx context.Context, workflows []model.Workflow, kept []*model.Lead) (model.Authorization, error) {
	if len(workflows) == 0 {
		return model.Authorization{Allowed: true, Reason: "empty batch, nothing to authorize"}, nil
	}

	counts := make(map[model.Workflow]int, len(workflows))
	for _, lead := range kept {
		counts[lead.Workflow]++
	}

	combined := model.Authorization{Allowed: true}
	for _, wf := range workflows {
		auth, err := p.budget.Authorize(ctx, wf, counts[wf])
		if err != nil {
			return model.Authorization{}, eris.Wrapf(err, "pipeline: authorize %s", wf)
		}
		if !auth.Allowed {
			return auth, nil
		}
		combined.RequestedCredits += auth.RequestedCredits
		combined.RemainingBefore += auth.RemainingBefore
		combined.RemainingAfter += auth.RemainingAfter
	}
	return combined, nil
}
