// Package methodology holds the effective parameter set a grading pass
// runs under: the tier weight table, deviation and staleness bounds,
// and optional admissibility predicates. The compiled-in default is the
// authoritative v1 methodology; versioned packs may override the
// tunable parameters within documented bounds. A Registry is built once
// and injected; there is no package-level active registry.
package methodology

import (
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Sanad-Labs/sanad/pkg/celdp"
	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/decimal"
	"github.com/Sanad-Labs/sanad/pkg/tiers"
)

// Line is the engine's methodology line. Packs must carry the same
// major version to load.
const Line = 1

// DefaultVersion is the compiled-in methodology version.
const DefaultVersion = "1.0.0"

// Bounds for pack overrides. Values outside these reject the pack.
var (
	deviationFloor = decimal.Zero()
	deviationCeil  = decimal.MustParse("0.50")

	stalenessFloorDays = 30
	stalenessCeilDays  = 1825
)

const defaultStalenessDays = 365

// Predicate is a named admissibility rule from a methodology pack. A
// predicate that evaluates true rejects the usage it describes.
type Predicate struct {
	Rule string
	pred *celdp.Predicate
}

// Expr returns the predicate's source expression.
func (p Predicate) Expr() string { return p.pred.Expr() }

// Eval runs the predicate over usage and tier bindings. True means the
// usage is inadmissible under this rule.
func (p Predicate) Eval(usage, tier map[string]any) (bool, error) {
	return p.pred.Eval(usage, tier)
}

// Registry is an immutable effective methodology. Accessors cover both
// the tunable parameters and the fixed tables so callers have a single
// surface to read from.
type Registry struct {
	name    string
	version *semver.Version

	tierWeights        map[tiers.TierID]decimal.Value
	deviationThreshold decimal.Value
	stalenessDays      int
	predicates         []Predicate
}

// Default returns the compiled-in v1 methodology: base tier weights,
// a 0.05 deviation threshold, a 365-day staleness horizon, and no
// predicates.
func Default() *Registry {
	weights := make(map[tiers.TierID]decimal.Value, len(tiers.Ordered))
	for _, tier := range tiers.Ordered {
		weights[tier.ID] = decimal.MustParse(tier.BaseWeight)
	}
	return &Registry{
		name:               "builtin",
		version:            semver.MustParse(DefaultVersion),
		tierWeights:        weights,
		deviationThreshold: decimal.MustParse("0.05"),
		stalenessDays:      defaultStalenessDays,
	}
}

// Name returns the methodology name, "builtin" for the default.
func (r *Registry) Name() string { return r.name }

// Version returns the methodology version string. It participates in
// every pass id.
func (r *Registry) Version() string { return r.version.String() }

// TierWeight returns the effective weight for a tier, or false for an
// id outside the hierarchy.
func (r *Registry) TierWeight(id tiers.TierID) (decimal.Value, bool) {
	w, ok := r.tierWeights[id]
	return w, ok
}

// DeviationThreshold returns the anomaly detector's material-deviation
// bound.
func (r *Registry) DeviationThreshold() decimal.Value { return r.deviationThreshold }

// StalenessHorizonDays returns the evidence staleness horizon.
func (r *Registry) StalenessHorizonDays() int { return r.stalenessDays }

// StaleBefore derives the staleness bound from a caller-supplied
// cut-off date. A zero cutoff yields a zero bound, disabling the check.
func (r *Registry) StaleBefore(cutoff time.Time) time.Time {
	if cutoff.IsZero() {
		return time.Time{}
	}
	return cutoff.AddDate(0, 0, -r.stalenessDays)
}

// Predicates returns the pack's admissibility predicates sorted by
// rule name. Empty for the default methodology.
func (r *Registry) Predicates() []Predicate {
	out := make([]Predicate, len(r.predicates))
	copy(out, r.predicates)
	return out
}

// Severity returns the fixed severity for a defect code.
func (r *Registry) Severity(code contracts.DefectCode) contracts.Severity {
	return code.Severity()
}

// Cure returns the fixed cure protocol for a defect code.
func (r *Registry) Cure(code contracts.DefectCode) contracts.CureProtocol {
	return code.Cure()
}

// TierCeiling returns the grade ceiling for a tier.
func (r *Registry) TierCeiling(id tiers.TierID) (contracts.SanadGrade, error) {
	return tiers.BaseGrade(id)
}

// Bindings renders a usage context and tier into the variable maps
// predicates evaluate over.
func Bindings(usage tiers.UsageContext, tier *tiers.Tier) (map[string]any, map[string]any) {
	usageVars := map[string]any{
		"claim_id":     usage.ClaimID,
		"materiality":  string(usage.Materiality),
		"ic_bound":     usage.ICBound,
		"sole_support": usage.SoleSupport,
	}
	tierVars := map[string]any{}
	if tier != nil {
		tierVars["id"] = string(tier.ID)
		tierVars["rank"] = tier.Rank
		tierVars["ceiling"] = string(tier.GradeCeiling)
		tierVars["gradeable"] = tier.Admissibility.Gradeable
		tierVars["sole_support_material"] = tier.Admissibility.SoleSupportMaterial
	}
	return usageVars, tierVars
}
