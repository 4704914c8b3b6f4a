package contracts

import "time"

// TawaturClass is the corroboration class of a claim's evidence set,
// computed over independent source clusters.
type TawaturClass string

const (
	TawaturMutawatir TawaturClass = "MUTAWATIR"
	TawaturAhad2     TawaturClass = "AHAD_2"
	TawaturAhad1     TawaturClass = "AHAD_1"
	TawaturNone      TawaturClass = "NONE"
)

// ParseTawaturClass validates a tawatur class string.
func ParseTawaturClass(s string) (TawaturClass, error) {
	switch t := TawaturClass(s); t {
	case TawaturMutawatir, TawaturAhad2, TawaturAhad1, TawaturNone:
		return t, nil
	default:
		return "", &UnknownCodeError{Kind: "tawatur_class", Code: s}
	}
}

// Impact is the effect an explanation step had on the running grade.
type Impact string

const (
	ImpactRaised       Impact = "RAISED"
	ImpactLowered      Impact = "LOWERED"
	ImpactCapped       Impact = "CAPPED"
	ImpactNone         Impact = "NONE"
	ImpactInadmissible Impact = "INADMISSIBLE"
)

// ExplanationKind groups explanation entries by pipeline stage.
type ExplanationKind string

const (
	ExplainAdmissibility ExplanationKind = "ADMISSIBILITY"
	ExplainTier          ExplanationKind = "TIER"
	ExplainDabt          ExplanationKind = "DABT"
	ExplainTawatur       ExplanationKind = "TAWATUR"
	ExplainShudhudh      ExplanationKind = "SHUDHUDH"
	ExplainIlal          ExplanationKind = "ILAL"
	ExplainCOI           ExplanationKind = "COI"
	ExplainAggregation   ExplanationKind = "AGGREGATION"
	ExplainVerification  ExplanationKind = "VERIFICATION"
	ExplainCalc          ExplanationKind = "CALC"
)

// GradeExplanationEntry is one step of the audit trail behind a grade.
// Entries are emitted in pipeline order and are byte-stable: the same
// inputs always produce the same entries in the same order.
type GradeExplanationEntry struct {
	Kind   ExplanationKind `json:"kind"`
	Rule   string          `json:"rule"`
	Detail string          `json:"detail"`
	Impact Impact          `json:"impact"`

	// EvidenceID scopes the entry to one item where applicable.
	EvidenceID string `json:"evidence_id,omitempty"`

	// GradeBefore and GradeAfter bracket the running grade around this
	// step, when the step touches the grade.
	GradeBefore SanadGrade `json:"grade_before,omitempty"`
	GradeAfter  SanadGrade `json:"grade_after,omitempty"`
}

// SanadGradeResult is the full output of grading one claim.
type SanadGradeResult struct {
	ClaimID  string `json:"claim_id"`
	TenantID string `json:"tenant_id"`
	DealID   string `json:"deal_id"`

	// PassID deterministically names this grading pass: a UUIDv5 over
	// the canonical form of the pass inputs. Re-grading identical inputs
	// yields the same PassID.
	PassID string `json:"pass_id"`

	// Grade is the stored grade from the grading pipeline.
	// EffectiveGrade additionally reflects post-grading verification: a
	// CONTRADICTED status forces it to D without rewriting Grade.
	Grade          SanadGrade `json:"grade"`
	EffectiveGrade SanadGrade `json:"effective_grade"`

	Tawatur TawaturClass `json:"tawatur_class"`

	// DabtScores maps evidence id to the item's precision score, a
	// scale-4 decimal string.
	DabtScores map[string]string `json:"dabt_scores,omitempty"`

	Defects      []DefectResult          `json:"defects,omitempty"`
	Explanations []GradeExplanationEntry `json:"explanations"`

	// InadmissibleEvidence lists items excluded before grading, keyed by
	// evidence id with the rejecting rule.
	InadmissibleEvidence map[string]string `json:"inadmissible_evidence,omitempty"`

	GradedAt           time.Time `json:"graded_at"`
	EngineVersion      string    `json:"engine_version"`
	MethodologyVersion string    `json:"methodology_version,omitempty"`

	// ExplanationHash is the SHA-256 of the canonical (RFC 8785) JSON
	// serialization of Explanations. Two runs over the same inputs must
	// produce the same hash.
	ExplanationHash string `json:"explanation_hash"`
}

// HasFatalDefect reports whether any uncured FATAL finding is present.
func (r *SanadGradeResult) HasFatalDefect() bool {
	for _, d := range r.Defects {
		if !d.Cured && d.Severity == SeverityFatal {
			return true
		}
	}
	return false
}
