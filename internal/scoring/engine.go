package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/andre-sav/HADES-sub001/internal/config"
	"github.com/andre-sav/HADES-sub001/internal/model"
)

// Fixed categorical mappings, normalized to [0,100] before weighting.
const (
	signalHigh   = 100.0
	signalMedium = 60.0
	signalLow    = 30.0

	onsiteHigh   = 100.0
	onsiteMedium = 70.0
	onsiteLow    = 40.0

	freshnessHot     = 100.0
	freshnessWarm    = 75.0
	freshnessCooling = 40.0
)

// Engine computes composite lead scores from an immutable configuration
// snapshot taken at construction. Score is pure: no I/O, no shared state,
// identical input yields an identical result.
type Engine struct {
	cfg     config.ScoringConfig
	onsite  map[string]float64
	buckets []config.EmployeeBucket
}

// New builds an Engine from a scoring configuration snapshot. The SIC
// on-site table is indexed with normalized codes and the employee buckets
// are sorted once so Score stays allocation-light.
func New(cfg config.ScoringConfig) *Engine {
	e := &Engine{
		cfg:    cfg,
		onsite: make(map[string]float64),
	}
	for _, sic := range cfg.SICOnsite.High {
		e.onsite[NormalizeSIC(sic)] = onsiteHigh
	}
	for _, sic := range cfg.SICOnsite.Medium {
		e.onsite[NormalizeSIC(sic)] = onsiteMedium
	}
	for _, sic := range cfg.SICOnsite.Low {
		e.onsite[NormalizeSIC(sic)] = onsiteLow
	}

	e.buckets = make([]config.EmployeeBucket, len(cfg.EmployeeScale))
	copy(e.buckets, cfg.EmployeeScale)
	sort.Slice(e.buckets, func(i, j int) bool { return e.buckets[i].Min < e.buckets[j].Min })

	return e
}

// Score computes the composite score and freshness tier for one lead.
// Intent blends signal strength, on-site likelihood, and freshness;
// geography blends proximity, on-site likelihood, and employee scale. A
// missing required categorical field fails that single lead with an *Error
// rather than the batch.
func (e *Engine) Score(lead *model.Lead) (float64, model.FreshnessTier, error) {
	switch lead.Workflow {
	case model.WorkflowIntent:
		return e.scoreIntent(lead)
	case model.WorkflowGeography:
		return e.scoreGeography(lead)
	default:
		return 0, "", newError(lead, fmt.Sprintf("unknown workflow %q", lead.Workflow))
	}
}

func (e *Engine) scoreIntent(lead *model.Lead) (float64, model.FreshnessTier, error) {
	signal, ok := signalValue(lead.SignalStrength)
	if !ok {
		return 0, "", newError(lead, "intent lead has no signal strength")
	}
	tier := TierFor(lead.SignalAgeDays, e.cfg.FreshnessTiers)

	components := map[string]float64{
		"signal":    signal,
		"onsite":    e.onsiteValue(lead.SICCode),
		"freshness": freshnessValue(tier),
	}
	weights := map[string]float64{
		"signal":    e.cfg.IntentWeights.Signal,
		"onsite":    e.cfg.IntentWeights.Onsite,
		"freshness": e.cfg.IntentWeights.Freshness,
	}

	return composite(components, weights), tier, nil
}

func (e *Engine) scoreGeography(lead *model.Lead) (float64, model.FreshnessTier, error) {
	miles, ok := e.distanceFor(lead)
	if !ok {
		return 0, "", newError(lead, "geography lead has no distance or usable coordinates")
	}

	components := map[string]float64{
		"proximity": proximityValue(miles, e.cfg.SearchRadiusMiles),
		"onsite":    e.onsiteValue(lead.SICCode),
		"employee":  e.employeeValue(lead.EmployeeCount),
	}
	weights := map[string]float64{
		"proximity": e.cfg.GeoWeights.Proximity,
		"onsite":    e.cfg.GeoWeights.Onsite,
		"employee":  e.cfg.GeoWeights.Employee,
	}

	return composite(components, weights), "", nil
}

// composite folds sub-factor values through their weights, normalized by
// the weight sum so weights need not add to 1. A zero weight drops its
// factor from numerator and denominator alike; a missing value contributes
// zero while its weight still dilutes. Rounded to 2 decimal places.
func composite(components, weights map[string]float64) float64 {
	var weightSum, total float64
	for k, v := range components {
		w := weights[k]
		if w <= 0 {
			continue
		}
		weightSum += w
		total += v * w
	}
	if weightSum <= 0 {
		return 0
	}
	return math.Round(total/weightSum*100) / 100
}

// TierFor classifies a signal age in days against the configured tier
// boundaries. Ages past the cooling bound are Stale; the orchestrator
// filters those out before scoring.
func TierFor(ageDays int, t config.FreshnessTiers) model.FreshnessTier {
	switch {
	case ageDays <= t.HotMaxDays:
		return model.TierHot
	case ageDays <= t.WarmMaxDays:
		return model.TierWarm
	case ageDays <= t.CoolingMaxDays:
		return model.TierCooling
	default:
		return model.TierStale
	}
}

func signalValue(s model.SignalStrength) (float64, bool) {
	switch s {
	case model.SignalHigh:
		return signalHigh, true
	case model.SignalMedium:
		return signalMedium, true
	case model.SignalLow:
		return signalLow, true
	default:
		return 0, false
	}
}

func freshnessValue(tier model.FreshnessTier) float64 {
	switch tier {
	case model.TierHot:
		return freshnessHot
	case model.TierWarm:
		return freshnessWarm
	case model.TierCooling:
		return freshnessCooling
	default:
		return 0
	}
}

// onsiteValue looks up the on-site likelihood band for a SIC code. Codes
// absent from the table contribute zero without excluding the lead.
func (e *Engine) onsiteValue(sic string) float64 {
	if sic == "" {
		return 0
	}
	return e.onsite[NormalizeSIC(sic)]
}

// proximityValue decays linearly from 100 at the origin to 0 at the search
// radius boundary, clamped to [0,100].
func proximityValue(miles, radius float64) float64 {
	if radius <= 0 {
		return 0
	}
	v := 100 * (1 - miles/radius)
	return math.Max(0, math.Min(100, v))
}

// employeeValue picks the highest configured bucket at or below the count.
// Counts below the lowest bucket, or an empty table, contribute zero.
func (e *Engine) employeeValue(count int) float64 {
	var v float64
	for _, b := range e.buckets {
		if count < b.Min {
			break
		}
		v = b.Value
	}
	return v
}

// distanceFor returns the lead's distance from the search origin, deriving
// it from coordinates when the provider omitted distance_miles. A zero
// origin disables derivation.
func (e *Engine) distanceFor(lead *model.Lead) (float64, bool) {
	if lead.DistanceMiles != nil {
		return *lead.DistanceMiles, true
	}
	if lead.Latitude == nil || lead.Longitude == nil {
		return 0, false
	}
	if e.cfg.OriginLat == 0 && e.cfg.OriginLng == 0 {
		return 0, false
	}
	origin := geom.Coord{e.cfg.OriginLng, e.cfg.OriginLat}
	point := geom.Coord{*lead.Longitude, *lead.Latitude}
	return haversineMiles(origin, point), true
}
