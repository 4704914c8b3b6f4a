// Package coi evaluates conflict-of-interest exposure on evidence
// sources. An affiliated source that hides its affiliation is a MAJOR
// finding with a grade cap; a conflict block whose disclosure fields
// are absent is a MINOR finding. A recorded cure (explicit disclosure
// plus counter-corroboration) lifts the cap without erasing the
// finding.
package coi

import (
	"fmt"
	"sort"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
)

// Finding is the COI outcome for one evidence item.
type Finding struct {
	EvidenceID string
	Defect     contracts.DefectResult
	// Cap is the highest grade the item may support while the finding
	// is uncured. Empty when the finding carries no cap.
	Cap contracts.SanadGrade
}

// EvaluateSource classifies one item's COI posture. Items without a
// COI block have no disclosure surface and are never evaluated; the
// tier system already prices in what kind of source they are. A nil
// return means no finding.
func EvaluateSource(item contracts.EvidenceItem) *Finding {
	decl := item.COI
	if decl == nil {
		return nil
	}
	if decl.Affiliation != contracts.COIAffiliationNone && decl.Affiliation != "" && decl.Disclosure != contracts.COIDisclosed {
		d := contracts.NewDefect(contracts.DefectCOIHighUndisclosed,
			fmt.Sprintf("item %s has %s affiliation without disclosure", item.EvidenceID, decl.Affiliation))
		d.EvidenceID = item.EvidenceID
		return &Finding{
			EvidenceID: item.EvidenceID,
			Defect:     d,
			Cap:        GradeCap(contracts.DefectCOIHighUndisclosed),
		}
	}
	if decl.Disclosure == contracts.COIAbsent || decl.Disclosure == "" {
		d := contracts.NewDefect(contracts.DefectCOIDisclosureMissing,
			fmt.Sprintf("item %s carries a conflict block with no disclosure fields", item.EvidenceID))
		d.EvidenceID = item.EvidenceID
		return &Finding{
			EvidenceID: item.EvidenceID,
			Defect:     d,
			Cap:        GradeCap(contracts.DefectCOIDisclosureMissing),
		}
	}
	return nil
}

// GradeCap returns the maximum grade permissible while the given COI
// defect is present and uncured. Panics on a non-COI code.
func GradeCap(code contracts.DefectCode) contracts.SanadGrade {
	switch code {
	case contracts.DefectCOIHighUndisclosed:
		return contracts.GradeC
	case contracts.DefectCOIDisclosureMissing:
		return contracts.GradeB
	default:
		panic("coi: no grade cap for code " + string(code))
	}
}

// EvaluateCure reports whether a cure is on record for the item's COI
// finding. A cure requires both an explicit cure reference (the
// disclosure made after the fact) and counter-corroboration from at
// least one other effective independent source.
func EvaluateCure(item contracts.EvidenceItem, corroborated bool) bool {
	return item.COI != nil && item.COI.CureRef != "" && corroborated
}

// EvaluateAll evaluates every item, applying cures where recorded.
// Findings come back sorted by evidence id. corroborated reports
// whether the claim has counter-corroboration available for cures.
func EvaluateAll(items []contracts.EvidenceItem, corroborated bool) []Finding {
	var out []Finding
	for _, item := range items {
		f := EvaluateSource(item)
		if f == nil {
			continue
		}
		if EvaluateCure(item, corroborated) {
			f.Defect.Cured = true
			f.Cap = ""
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EvidenceID < out[j].EvidenceID })
	return out
}

// CollectDefects extracts the defect findings from an evaluation
// pass, preserving order.
func CollectDefects(findings []Finding) []contracts.DefectResult {
	if len(findings) == 0 {
		return nil
	}
	out := make([]contracts.DefectResult, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Defect)
	}
	return out
}

// CapForItem returns the uncured COI cap for one item, or "" when the
// item is clean or cured.
func CapForItem(item contracts.EvidenceItem, corroborated bool) contracts.SanadGrade {
	f := EvaluateSource(item)
	if f == nil {
		return ""
	}
	if EvaluateCure(item, corroborated) {
		return ""
	}
	return f.Cap
}
