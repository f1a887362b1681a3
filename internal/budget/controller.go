package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/andre-sav/HADES-sub001/internal/config"
	"github.com/andre-sav/HADES-sub001/internal/model"
)

// ErrNoCap reports a workflow with no configured weekly cap. Exhausting a
// configured cap is a normal authorization outcome; a missing cap is a
// setup defect and surfaces as an error instead.
var ErrNoCap = eris.New("budget: no weekly cap configured")

// UsageStore is the slice of the persistence layer the controller needs:
// an append-only spend log summable by workflow and period.
type UsageStore interface {
	AppendUsage(ctx context.Context, rec model.CreditUsageRecord) error
	UsageTotal(ctx context.Context, workflow model.Workflow, periodKey string) (int, error)
}

// Controller enforces weekly credit caps per workflow. Spend is always
// recomputed from the usage log; the only state the controller keeps is the
// last alert band observed per workflow and period, so each threshold
// crossing alerts exactly once. A per-(workflow, period) mutex serializes
// read-then-act sections so concurrent callers see consistent remainders.
type Controller struct {
	store   UsageStore
	cfg     config.BudgetConfig
	alerter *Alerter
	now     func() time.Time

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	lastBand map[string]int
}

// NewController creates a Controller backed by the given usage store.
func NewController(st UsageStore, cfg config.BudgetConfig) *Controller {
	return &Controller{
		store:    st,
		cfg:      cfg,
		alerter:  NewAlerter(cfg),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
		lastBand: make(map[string]int),
	}
}

// lockPeriod returns the mutex serializing operations on one workflow and
// period. Entries are never removed; two workflows times one key per week
// stays negligible.
func (c *Controller) lockPeriod(wf model.Workflow, periodKey string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := string(wf) + "|" + periodKey
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// Estimate converts a requested lead count to credits. The provider bills
// one credit per returned lead, so the estimate is the count itself. Purely
// advisory: shown to the operator before any paid query runs.
func (c *Controller) Estimate(leadCount int) int {
	return leadCount
}

// Authorize decides whether a query expected to spend estimatedCredits may
// run in the current period. A denial is a normal outcome carried in the
// Authorization, never an error; errors mean a missing cap or an unreadable
// usage log.
func (c *Controller) Authorize(ctx context.Context, wf model.Workflow, estimatedCredits int) (model.Authorization, error) {
	periodKey := PeriodKey(c.now())
	l := c.lockPeriod(wf, periodKey)
	l.Lock()
	defer l.Unlock()

	state, err := c.stateAt(ctx, wf, periodKey)
	if err != nil {
		return model.Authorization{}, err
	}

	auth := model.Authorization{
		RequestedCredits: estimatedCredits,
		RemainingBefore:  state.Remaining,
		RemainingAfter:   state.Remaining - estimatedCredits,
	}
	if estimatedCredits > state.Remaining {
		auth.Reason = fmt.Sprintf(
			"workflow %s has %d of %d weekly credits remaining in %s, requested %d",
			wf, state.Remaining, state.Cap, state.PeriodKey, estimatedCredits,
		)
		zap.L().Warn("budget: authorization denied",
			zap.String("workflow", string(wf)),
			zap.Int("requested", estimatedCredits),
			zap.Int("remaining", state.Remaining),
			zap.String("period", state.PeriodKey),
		)
		return auth, nil
	}

	auth.Allowed = true
	return auth, nil
}

// Record appends the real spend of an executed query to the usage log and
// re-evaluates threshold alerts. Callers pass the actual lead count the
// query returned, not the pre-run estimate.
func (c *Controller) Record(ctx context.Context, wf model.Workflow, creditsUsed int) (*model.CreditUsageRecord, error) {
	if creditsUsed < 0 {
		return nil, eris.Errorf("budget: credits_used must be >= 0, got %d", creditsUsed)
	}
	if weeklyCap := c.cfg.CapFor(wf); weeklyCap <= 0 {
		if !wf.Valid() {
			return nil, eris.Errorf("budget: unknown workflow %q", wf)
		}
		return nil, eris.Wrapf(ErrNoCap, "workflow %s", wf)
	}

	now := c.now().UTC()
	rec := model.CreditUsageRecord{
		ID:          uuid.New().String(),
		Timestamp:   now,
		Workflow:    wf,
		CreditsUsed: creditsUsed,
		PeriodKey:   PeriodKey(now),
	}
	l := c.lockPeriod(wf, rec.PeriodKey)
	l.Lock()
	if err := c.store.AppendUsage(ctx, rec); err != nil {
		l.Unlock()
		return nil, eris.Wrap(err, "budget: append usage")
	}
	state, err := c.stateAt(ctx, wf, rec.PeriodKey)
	l.Unlock()
	if err != nil {
		return nil, err
	}
	c.raiseAlerts(ctx, state)

	zap.L().Info("budget: usage recorded",
		zap.String("workflow", string(wf)),
		zap.Int("credits_used", creditsUsed),
		zap.String("period", rec.PeriodKey),
		zap.Int("remaining", state.Remaining),
	)
	return &rec, nil
}

// Status reports the current week's spend for a workflow.
func (c *Controller) Status(ctx context.Context, wf model.Workflow) (model.BudgetState, error) {
	return c.StatusAt(ctx, wf, PeriodKey(c.now()))
}

// StatusAt reports spend for an arbitrary period. Reads of the current
// period also evaluate threshold alerts, so dashboards polling status
// surface crossings without waiting for the next Record.
func (c *Controller) StatusAt(ctx context.Context, wf model.Workflow, periodKey string) (model.BudgetState, error) {
	l := c.lockPeriod(wf, periodKey)
	l.Lock()
	state, err := c.stateAt(ctx, wf, periodKey)
	l.Unlock()
	if err != nil {
		return model.BudgetState{}, err
	}
	if periodKey == PeriodKey(c.now()) {
		c.raiseAlerts(ctx, state)
	}
	return state, nil
}

func (c *Controller) stateAt(ctx context.Context, wf model.Workflow, periodKey string) (model.BudgetState, error) {
	if !wf.Valid() {
		return model.BudgetState{}, eris.Errorf("budget: unknown workflow %q", wf)
	}
	weeklyCap := c.cfg.CapFor(wf)
	if weeklyCap <= 0 {
		return model.BudgetState{}, eris.Wrapf(ErrNoCap, "workflow %s", wf)
	}

	used, err := c.store.UsageTotal(ctx, wf, periodKey)
	if err != nil {
		return model.BudgetState{}, eris.Wrap(err, "budget: read usage log")
	}

	return model.BudgetState{
		Workflow:  wf,
		PeriodKey: periodKey,
		Cap:       weeklyCap,
		Used:      used,
		Remaining: weeklyCap - used,
	}, nil
}

// raiseAlerts fires one alert per threshold newly crossed this period. An
// unseen workflow/period pair starts in the lowest band because every
// period starts at zero spend.
func (c *Controller) raiseAlerts(ctx context.Context, state model.BudgetState) {
	c.mu.Lock()
	key := string(state.Workflow) + "|" + state.PeriodKey
	prev := c.lastBand[key]
	cur := c.band(state.FractionUsed())
	// Bands only move forward within a period; a lower reading means a
	// stale read, never a spend decrease.
	if cur > prev {
		c.lastBand[key] = cur
	}
	c.mu.Unlock()

	if cur <= prev {
		return
	}

	alerts := make([]Alert, 0, cur-prev)
	for i := prev; i < cur; i++ {
		threshold := c.cfg.AlertThresholds[i]
		severity := "medium"
		if i == len(c.cfg.AlertThresholds)-1 {
			severity = "high"
		}
		zap.L().Warn("budget: usage threshold crossed",
			zap.String("workflow", string(state.Workflow)),
			zap.String("period", state.PeriodKey),
			zap.Float64("threshold", threshold),
			zap.Int("used", state.Used),
			zap.Int("cap", state.Cap),
		)
		alerts = append(alerts, Alert{
			Type:     AlertBudgetThreshold,
			Severity: severity,
			Message: fmt.Sprintf(
				"%s budget %.0f%% used (%d/%d credits) in %s crossed the %.0f%% threshold",
				state.Workflow, state.FractionUsed()*100, state.Used, state.Cap,
				state.PeriodKey, threshold*100,
			),
			Details: map[string]any{
				"workflow":  string(state.Workflow),
				"period":    state.PeriodKey,
				"used":      state.Used,
				"cap":       state.Cap,
				"threshold": threshold,
			},
			Timestamp: c.now().UTC(),
		})
	}

	c.alerter.SendAlerts(ctx, alerts)
}

// band maps a usage fraction to an alert band: 0 below the first
// threshold, len(thresholds) at or above the last. Thresholds are
// validated ascending at config load.
func (c *Controller) band(frac float64) int {
	b := 0
	for _, t := range c.cfg.AlertThresholds {
		if frac < t {
			break
		}
		b++
	}
	return b
}
