package model

import "time"

// CreditUsageRecord is one immutable entry in the append-only spend log.
// One credit equals one lead returned by a paid provider query.
type CreditUsageRecord struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Workflow    Workflow  `json:"workflow"`
	CreditsUsed int       `json:"credits_used"`
	PeriodKey   string    `json:"period_key"`
}

// BudgetState is a point-in-time view of spend for one workflow and period,
// recomputed from the usage log on every read.
type BudgetState struct {
	Workflow  Workflow `json:"workflow"`
	PeriodKey string   `json:"period_key"`
	Cap       int      `json:"cap"`
	Used      int      `json:"used"`
	Remaining int      `json:"remaining"`
}

// FractionUsed returns used/cap, or 0 when no cap is set.
func (s BudgetState) FractionUsed() float64 {
	if s.Cap <= 0 {
		return 0
	}
	return float64(s.Used) / float64(s.Cap)
}

// Authorization is the outcome of a budget cap check. A denial is a normal
// result, not an error; Reason explains the deficit to the caller.
type Authorization struct {
	Allowed          bool   `json:"allowed"`
	RequestedCredits int    `json:"requested_credits"`
	RemainingBefore  int    `json:"remaining_before"`
	RemainingAfter   int    `json:"remaining_after"`
	Reason           string `json:"reason,omitempty"`
}
