// Package calcsanad propagates trust grades onto derived metrics. A
// calculation can never be more trustworthy than its least trustworthy
// input, so the propagated grade is the minimum over the input claims'
// grades, further constrained by formula-integrity defects.
package calcsanad

import (
	"fmt"
	"sort"
	"time"

	"github.com/Sanad-Labs/sanad/pkg/canonicalize"
	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/grader"
)

// FormulaDef pins one formula revision: the hash a conforming calc
// must declare and the smallest input set the formula can run on.
type FormulaDef struct {
	FormulaID string `json:"formula_id"`
	Hash      string `json:"hash"`
	MinInputs int    `json:"min_inputs"`
}

// Registry resolves formula definitions. Implementations must be
// read-only during grading.
type Registry interface {
	Formula(formulaID string) (FormulaDef, bool)
}

// StaticRegistry is a fixed in-memory formula registry.
type StaticRegistry map[string]FormulaDef

func (r StaticRegistry) Formula(formulaID string) (FormulaDef, bool) {
	def, ok := r[formulaID]
	return def, ok
}

// Propagator grades derived metrics from their input claim grades.
type Propagator struct {
	registry      Registry
	engineVersion string
	clock         func() time.Time
}

// NewPropagator builds a propagator. registry may be nil, in which
// case formula integrity goes unchecked and only grade propagation
// runs.
func NewPropagator(registry Registry) *Propagator {
	return &Propagator{
		registry:      registry,
		engineVersion: grader.EngineVersion,
		clock:         time.Now,
	}
}

// WithClock overrides clock for testing.
func (p *Propagator) WithClock(clock func() time.Time) *Propagator {
	p.clock = clock
	return p
}

// Propagate grades one calc from its inputs' grade results. It fails
// closed: a calc with no inputs, or any input claim without a grade on
// record, yields a typed error and no result.
func (p *Propagator) Propagate(calc contracts.CalcSanad, inputs map[string]*contracts.SanadGradeResult) (*contracts.CalcGradeResult, error) {
	if len(calc.InputClaimIDs) == 0 {
		return nil, &contracts.EmptyEvidenceError{ClaimID: calc.CalcID, Reason: "calc declares no input claims"}
	}

	claimIDs := make([]string, len(calc.InputClaimIDs))
	copy(claimIDs, calc.InputClaimIDs)
	sort.Strings(claimIDs)

	var entries []contracts.GradeExplanationEntry
	inputGrades := make(map[string]contracts.SanadGrade, len(claimIDs))
	inputPassIDs := make(map[string]string, len(claimIDs))
	for _, claimID := range claimIDs {
		res, ok := inputs[claimID]
		if !ok || res == nil || !res.EffectiveGrade.Valid() {
			return nil, &contracts.UngradedInputError{CalcID: calc.CalcID, ClaimID: claimID}
		}
		inputGrades[claimID] = res.EffectiveGrade
		detail := fmt.Sprintf("input claim %s holds grade %s", claimID, res.EffectiveGrade)
		if res.PassID != "" {
			inputPassIDs[claimID] = res.PassID
			detail += fmt.Sprintf(" (pass %s)", res.PassID)
		}
		entries = append(entries, contracts.GradeExplanationEntry{
			Kind:       contracts.ExplainCalc,
			Rule:       "input_grade",
			Detail:     detail,
			Impact:     contracts.ImpactNone,
			GradeAfter: res.EffectiveGrade,
		})
	}

	grades := make([]contracts.SanadGrade, 0, len(claimIDs))
	for _, claimID := range claimIDs {
		grades = append(grades, inputGrades[claimID])
	}
	weakest, err := contracts.MinGrade(grades)
	if err != nil {
		return nil, err
	}
	weakestInput := ""
	for _, claimID := range claimIDs {
		if inputGrades[claimID] == weakest {
			weakestInput = claimID
			break
		}
	}
	entries = append(entries, contracts.GradeExplanationEntry{
		Kind:       contracts.ExplainCalc,
		Rule:       "weakest_input",
		Detail:     fmt.Sprintf("minimum grade across %d inputs, set by %s", len(claimIDs), weakestInput),
		Impact:     contracts.ImpactNone,
		GradeAfter: weakest,
	})

	defects := p.formulaDefects(calc)

	grade := weakest
	for _, d := range defects {
		entry := contracts.GradeExplanationEntry{
			Kind:   contracts.ExplainCalc,
			Rule:   string(d.Code),
			Detail: d.Detail,
			Impact: contracts.ImpactNone,
		}
		switch d.Severity {
		case contracts.SeverityFatal:
			if grade != contracts.GradeD {
				entry.Impact = contracts.ImpactLowered
				entry.GradeBefore = grade
				entry.GradeAfter = contracts.GradeD
			}
			grade = contracts.GradeD
		case contracts.SeverityMajor:
			capped := grade.CapAt(contracts.GradeC)
			if capped != grade {
				entry.Impact = contracts.ImpactCapped
				entry.GradeBefore = grade
				entry.GradeAfter = capped
			}
			grade = capped
		case contracts.SeverityMinor:
			// Recorded, never grade-affecting.
		}
		entries = append(entries, entry)
	}

	entries = append(entries, contracts.GradeExplanationEntry{
		Kind:       contracts.ExplainCalc,
		Rule:       "final_grade",
		Detail:     fmt.Sprintf("%d defects recorded", len(defects)),
		Impact:     contracts.ImpactNone,
		GradeAfter: grade,
	})

	hash, err := canonicalize.CanonicalHash(entries)
	if err != nil {
		return nil, fmt.Errorf("calcsanad: explanation hash: %w", err)
	}

	result := &contracts.CalcGradeResult{
		CalcID:          calc.CalcID,
		Grade:           grade,
		EffectiveGrade:  grade,
		InputGrades:     inputGrades,
		WeakestInput:    weakestInput,
		Defects:         defects,
		Explanations:    entries,
		GradedAt:        p.clock().UTC(),
		EngineVersion:   p.engineVersion,
		ExplanationHash: hash,
	}
	if len(inputPassIDs) > 0 {
		result.InputPassIDs = inputPassIDs
	}
	return result, nil
}

// formulaDefects checks the calc against its registered formula
// revision. Findings come back in fixed order: input arity first, then
// hash mismatch.
func (p *Propagator) formulaDefects(calc contracts.CalcSanad) []contracts.DefectResult {
	if p.registry == nil {
		return nil
	}
	def, ok := p.registry.Formula(calc.FormulaID)
	if !ok {
		d := contracts.NewDefect(contracts.DefectCalcFormulaMismatch,
			fmt.Sprintf("formula %s is not in the registry", calc.FormulaID))
		return []contracts.DefectResult{d}
	}

	var out []contracts.DefectResult
	if len(calc.InputClaimIDs) < def.MinInputs {
		d := contracts.NewDefect(contracts.DefectCalcInputMissing,
			fmt.Sprintf("formula %s requires %d inputs, calc supplies %d", calc.FormulaID, def.MinInputs, len(calc.InputClaimIDs)))
		out = append(out, d)
	}
	if def.Hash != "" && calc.FormulaHash != def.Hash {
		d := contracts.NewDefect(contracts.DefectCalcFormulaMismatch,
			fmt.Sprintf("calc declares formula hash %s, registry records %s", calc.FormulaHash, def.Hash))
		out = append(out, d)
	}
	return out
}
