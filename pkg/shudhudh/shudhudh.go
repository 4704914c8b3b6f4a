// Package shudhudh detects anomalous claim values: a claim that
// deviates materially from the consensus of strictly stronger-tier
// sources. The design is reconciliation-first; a documented RECONCILE
// node suppresses the finding before any defect is emitted.
package shudhudh

import (
	"fmt"
	"sort"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/decimal"
	"github.com/Sanad-Labs/sanad/pkg/tiers"
)

// deviationThreshold is the material-deviation bound: a claim value
// further than 5% from consensus is anomalous. Fixed, not per tenant.
var deviationThreshold = decimal.MustParse("0.05")

// TierResolver maps an evidence item to its reliability tier.
type TierResolver func(contracts.EvidenceItem) tiers.TierID

// DefaultResolver derives the tier from the item's public source grade.
func DefaultResolver(item contracts.EvidenceItem) tiers.TierID {
	return tiers.FromGrade(item.SourceGrade)
}

// Detector runs consensus-deviation analysis.
type Detector struct {
	resolve   TierResolver
	threshold decimal.Value
}

// NewDetector builds a detector. resolve may be nil; the grade-derived
// default applies.
func NewDetector(resolve TierResolver) *Detector {
	if resolve == nil {
		resolve = DefaultResolver
	}
	return &Detector{resolve: resolve, threshold: deviationThreshold}
}

// WithThreshold overrides the material-deviation bound. Methodology
// packs may adjust it within documented bounds.
func (d *Detector) WithThreshold(t decimal.Value) *Detector {
	d.threshold = t
	return d
}

// Detect compares the claim's asserted value against the modal value
// of strictly stronger-tier evidence. Returns at most one finding, or
// nil when the claim carries no value, no stronger-tier pool exists,
// the deviation is immaterial, or a RECONCILE node documents it.
func (d *Detector) Detect(claim contracts.Claim, items []contracts.EvidenceItem, chain []contracts.TransmissionNode) *contracts.DefectResult {
	if claim.AssertedValue == "" || len(items) == 0 {
		return nil
	}
	claimVal, err := decimal.Parse(claim.AssertedValue)
	if err != nil {
		return nil
	}

	primaryTier := tiers.Get(d.resolve(items[0]))
	if primaryTier == nil {
		return nil
	}

	pool := d.strongerPool(items, primaryTier)
	if len(pool) == 0 {
		return nil
	}

	consensus, consensusItems := modalValue(pool)
	if !d.materialDeviation(claimVal, consensus) {
		return nil
	}
	if reconciled(chain, claim.ClaimID, items) {
		return nil
	}

	code := contracts.DefectShudhudhAnomaly
	switch {
	case unitMismatch(claim, consensusItems):
		code = contracts.DefectShudhudhUnitMismatch
	case timeWindowMismatch(claim, consensusItems):
		code = contracts.DefectShudhudhTimeWindow
	}

	detail := fmt.Sprintf("claim %s value %s deviates from stronger-tier consensus %s (%d sources)",
		claim.ClaimID, claimVal.Score(), consensus.Score(), len(consensusItems))
	if !consensus.IsZero() {
		ratio := claimVal.Sub(consensus).Abs().Div(consensus.Abs())
		detail += fmt.Sprintf(" by %s", ratio.Score())
	}
	defect := contracts.NewDefect(code, detail)
	return &defect
}

type pooled struct {
	item  contracts.EvidenceItem
	value decimal.Value
}

// strongerPool selects items whose tier is strictly stronger than the
// primary item's tier and that carry a parseable asserted value,
// sorted by evidence id.
func (d *Detector) strongerPool(items []contracts.EvidenceItem, primary *tiers.Tier) []pooled {
	var pool []pooled
	for _, item := range items {
		tier := tiers.Get(d.resolve(item))
		if tier == nil || !tier.StrongerThan(primary) {
			continue
		}
		if item.AssertedValue == "" {
			continue
		}
		v, err := decimal.Parse(item.AssertedValue)
		if err != nil {
			continue
		}
		pool = append(pool, pooled{item: item, value: v})
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].item.EvidenceID < pool[j].item.EvidenceID })
	return pool
}

// modalValue picks the most attested value in the pool; ties go to the
// numerically smallest value.
func modalValue(pool []pooled) (decimal.Value, []contracts.EvidenceItem) {
	sorted := make([]pooled, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].value.Cmp(sorted[j].value) < 0 })

	bestStart, bestLen := 0, 0
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i == len(sorted) || sorted[i].value.Cmp(sorted[start].value) != 0 {
			if i-start > bestLen {
				bestStart, bestLen = start, i-start
			}
			start = i
		}
	}

	items := make([]contracts.EvidenceItem, 0, bestLen)
	for _, p := range sorted[bestStart : bestStart+bestLen] {
		items = append(items, p.item)
	}
	return sorted[bestStart].value, items
}

// materialDeviation applies |claim − consensus| > threshold ×
// |consensus|; a zero consensus makes any nonzero claim material.
func (d *Detector) materialDeviation(claim, consensus decimal.Value) bool {
	if consensus.IsZero() {
		return !claim.IsZero()
	}
	deviation := claim.Sub(consensus).Abs()
	bound := d.threshold.Mul(consensus.Abs())
	return deviation.Cmp(bound) > 0
}

// reconciled reports whether a RECONCILE node references the claim or
// any supporting evidence item.
func reconciled(chain []contracts.TransmissionNode, claimID string, items []contracts.EvidenceItem) bool {
	refs := make(map[string]bool, len(items)+1)
	refs[claimID] = true
	for _, item := range items {
		refs[item.EvidenceID] = true
	}
	for _, n := range chain {
		if n.NodeType != contracts.NodeReconcile {
			continue
		}
		for _, ref := range n.InputRefs {
			if refs[ref] {
				return true
			}
		}
	}
	return false
}

// unitMismatch reports a mechanically identifiable unit difference
// between the claim and every consensus item that declares a unit.
func unitMismatch(claim contracts.Claim, consensusItems []contracts.EvidenceItem) bool {
	if claim.Unit == "" {
		return false
	}
	seen := false
	for _, item := range consensusItems {
		if item.Unit == "" {
			continue
		}
		seen = true
		if item.Unit == claim.Unit {
			return false
		}
	}
	return seen
}

func timeWindowMismatch(claim contracts.Claim, consensusItems []contracts.EvidenceItem) bool {
	if claim.PeriodLabel == "" {
		return false
	}
	seen := false
	for _, item := range consensusItems {
		if item.PeriodLabel == "" {
			continue
		}
		seen = true
		if item.PeriodLabel == claim.PeriodLabel {
			return false
		}
	}
	return seen
}
