package model

// Workflow identifies which qualification pipeline produced a lead.
type Workflow string

const (
	WorkflowIntent    Workflow = "intent"
	WorkflowGeography Workflow = "geography"
)

// Valid reports whether w is a known workflow.
func (w Workflow) Valid() bool {
	return w == WorkflowIntent || w == WorkflowGeography
}

// SignalStrength grades an intent signal as reported by the provider.
type SignalStrength string

const (
	SignalHigh   SignalStrength = "High"
	SignalMedium SignalStrength = "Medium"
	SignalLow    SignalStrength = "Low"
)

// FreshnessTier buckets an intent signal's age. The zero value means the
// lead has not been classified yet.
type FreshnessTier string

const (
	TierHot     FreshnessTier = "Hot"
	TierWarm    FreshnessTier = "Warm"
	TierCooling FreshnessTier = "Cooling"
	TierStale   FreshnessTier = "Stale"
)

// Rank orders tiers freshest-first: Hot < Warm < Cooling < Stale.
// Unclassified tiers sort after all classified ones.
func (t FreshnessTier) Rank() int {
	switch t {
	case TierHot:
		return 0
	case TierWarm:
		return 1
	case TierCooling:
		return 2
	case TierStale:
		return 3
	default:
		return 4
	}
}

// Lead is a candidate record pulled from the provider. Intent leads carry
// SignalStrength and SignalAgeDays; Geography leads carry DistanceMiles or
// coordinates. Score and FreshnessTier stay unset until the scoring engine
// runs; SourceIndex preserves intake order for deterministic tie-breaks.
type Lead struct {
	ContactID     string   `json:"contact_id"`
	Workflow      Workflow `json:"workflow"`
	CompanyName   string   `json:"company_name"`
	Phone         string   `json:"phone,omitempty"`
	SICCode       string   `json:"sic_code,omitempty"`
	EmployeeCount int      `json:"employee_count,omitempty"`

	SignalStrength SignalStrength `json:"signal_strength,omitempty"`
	SignalAgeDays  int            `json:"signal_age_days,omitempty"`

	DistanceMiles *float64 `json:"distance_miles,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`

	Score         *float64      `json:"score,omitempty"`
	FreshnessTier FreshnessTier `json:"freshness_tier,omitempty"`

	IsDuplicate        bool   `json:"is_duplicate"`
	DedupReason        string `json:"dedup_reason,omitempty"`
	PreviouslyExported bool   `json:"previously_exported"`

	SourceIndex int `json:"source_index"`
}

// RanksAbove reports whether l should be preferred over other when exactly
// one member of a duplicate group is kept, and drives the final output
// ordering. Higher score wins; an unscored lead loses to any scored one.
// Score ties fall through to the fresher tier, then to the lower
// SourceIndex, so the ordering is total and deterministic.
func (l *Lead) RanksAbove(other *Lead) bool {
	ls, os := l.Score, other.Score
	switch {
	case ls != nil && os == nil:
		return true
	case ls == nil && os != nil:
		return false
	case ls != nil && os != nil && *ls != *os:
		return *ls > *os
	}
	if lr, or := l.FreshnessTier.Rank(), other.FreshnessTier.Rank(); lr != or {
		return lr < or
	}
	return l.SourceIndex < other.SourceIndex
}
