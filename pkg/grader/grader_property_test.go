//go:build property
// +build property

package grader_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/grader"
)

var propClock = func() time.Time {
	return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
}

var propGrades = []contracts.SanadGrade{
	contracts.GradeA,
	contracts.GradeB,
	contracts.GradeC,
	contracts.GradeD,
}

var propSystems = []string{"netsuite", "salesforce", "sharepoint", "stripe", "workday"}

// propItems derives a deterministic evidence set from grade indices.
// Ids are distinct and systems cycle so corroboration stays independent.
func propItems(gradeIdx []int) []contracts.EvidenceItem {
	items := make([]contracts.EvidenceItem, 0, len(gradeIdx))
	for i, gi := range gradeIdx {
		items = append(items, contracts.EvidenceItem{
			EvidenceID:         fmt.Sprintf("ev-%02d", i),
			TenantID:           "acme",
			DealID:             "deal-9",
			SourceSystem:       propSystems[i%len(propSystems)],
			SourceGrade:        propGrades[gi%len(propGrades)],
			VerificationStatus: contracts.VerificationVerified,
			RetrievalTimestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
		})
	}
	return items
}

func propGrade(items []contracts.EvidenceItem, chain []contracts.TransmissionNode) (*contracts.SanadGradeResult, error) {
	g := grader.New().WithClock(propClock).WithMethodology("1.0.0")
	return g.Grade(grader.Inputs{
		Claim: contracts.Claim{
			ClaimID:  "claim-prop",
			TenantID: "acme",
			DealID:   "deal-9",
			Text:     "FY24 recurring revenue",
			Material: contracts.MaterialityMaterial,
		},
		Items: items,
		Chain: chain,
	})
}

// TestGradePassDeterminism checks the property that grading the same
// inputs twice yields the same pass: Grade(in) == Grade(in) for the
// grade, the pass id, and the explanation hash.
func TestGradePassDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("same inputs produce identical passes", prop.ForAll(
		func(gradeIdx []int) bool {
			items := propItems(gradeIdx)
			first, err := propGrade(items, nil)
			if err != nil {
				return false
			}
			second, err := propGrade(items, nil)
			if err != nil {
				return false
			}
			return first.Grade == second.Grade &&
				first.EffectiveGrade == second.EffectiveGrade &&
				first.PassID == second.PassID &&
				first.ExplanationHash == second.ExplanationHash &&
				first.Tawatur == second.Tawatur
		},
		gen.SliceOfN(4, gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

// TestGradeInputOrderInvariance checks the property that the order
// evidence arrives in never changes the outcome: grading a rotation of
// the item slice yields the same grade, pass id, and explanation hash
// as grading the original.
func TestGradeInputOrderInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("item order never changes the pass", prop.ForAll(
		func(gradeIdx []int, shift int) bool {
			items := propItems(gradeIdx)
			rotated := make([]contracts.EvidenceItem, len(items))
			for i := range items {
				rotated[i] = items[(i+shift)%len(items)]
			}
			base, err := propGrade(items, nil)
			if err != nil {
				return false
			}
			perm, err := propGrade(rotated, nil)
			if err != nil {
				return false
			}
			return base.Grade == perm.Grade &&
				base.PassID == perm.PassID &&
				base.ExplanationHash == perm.ExplanationHash
		},
		gen.SliceOfN(5, gen.IntRange(0, 3)),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}

// TestGradeWeakestLinkBound checks the property that the final grade
// never exceeds the weakest source grade raised by one level. Tawatur
// is the only upgrade in the pipeline and it lifts by a single step,
// so MinGrade(sources).Raised() bounds every outcome from above.
func TestGradeWeakestLinkBound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("grade never beats the raised weakest source", prop.ForAll(
		func(gradeIdx []int) bool {
			items := propItems(gradeIdx)
			sources := make([]contracts.SanadGrade, 0, len(items))
			for _, item := range items {
				sources = append(sources, item.SourceGrade)
			}
			weakest, err := contracts.MinGrade(sources)
			if err != nil {
				return false
			}
			res, err := propGrade(items, nil)
			if err != nil {
				return false
			}
			return !res.Grade.Better(weakest.Raised()) &&
				!res.EffectiveGrade.Better(res.Grade)
		},
		gen.SliceOfN(3, gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

// TestGradeFatalDefectDominates checks the property that a fatal
// chain defect forces grade D regardless of how strong the evidence
// is. A chain whose root is not an INGEST node breaks custody, and no
// corroboration recovers from that.
func TestGradeFatalDefectDominates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	brokenChain := []contracts.TransmissionNode{
		{
			NodeID:     "node-1",
			NodeType:   contracts.NodeExtract,
			ActorID:    "sys:extractor",
			ActorType:  contracts.ActorSystem,
			Timestamp:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
			EvidenceID: "ev-00",
		},
	}

	properties.Property("broken custody forces grade D", prop.ForAll(
		func(gradeIdx []int) bool {
			res, err := propGrade(propItems(gradeIdx), brokenChain)
			if err != nil {
				return false
			}
			return res.Grade == contracts.GradeD &&
				res.EffectiveGrade == contracts.GradeD &&
				res.HasFatalDefect()
		},
		gen.SliceOfN(3, gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
