package contracts

import "time"

// CalcSanad is a derived metric whose trustworthiness flows from the
// grades of its input claims. The formula hash pins the exact formula
// revision the declared FormulaID is expected to match.
type CalcSanad struct {
	CalcID   string `json:"calc_id"`
	TenantID string `json:"tenant_id"`
	DealID   string `json:"deal_id"`

	FormulaID   string `json:"formula_id"`
	FormulaHash string `json:"formula_hash"`

	// InputClaimIDs are the claims the formula consumes, in declaration
	// order. Every one must already hold a grade before the calc can be
	// graded.
	InputClaimIDs []string `json:"input_claim_ids"`

	// OutputValue is the computed result as a decimal string.
	OutputValue string `json:"output_value,omitempty"`
	Unit        string `json:"unit,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}

// CalcGradeResult is the grading outcome for a derived metric.
type CalcGradeResult struct {
	CalcID string `json:"calc_id"`

	Grade          SanadGrade `json:"grade"`
	EffectiveGrade SanadGrade `json:"effective_grade"`

	// InputGrades snapshots each input claim's grade at grading time.
	InputGrades map[string]SanadGrade `json:"input_grades"`

	// InputPassIDs references the grading pass behind each input grade,
	// for claims whose result carried one.
	InputPassIDs map[string]string `json:"input_pass_ids,omitempty"`

	// WeakestInput is the claim whose grade bounded the result.
	WeakestInput string `json:"weakest_input,omitempty"`

	Defects      []DefectResult          `json:"defects,omitempty"`
	Explanations []GradeExplanationEntry `json:"explanations"`

	GradedAt        time.Time `json:"graded_at"`
	EngineVersion   string    `json:"engine_version"`
	ExplanationHash string    `json:"explanation_hash"`
}
