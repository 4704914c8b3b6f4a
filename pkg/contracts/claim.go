package contracts

import "time"

// Materiality marks how much a claim matters to the deal outcome.
// Material claims face stricter admissibility rules.
type Materiality string

const (
	MaterialityMaterial Materiality = "MATERIAL"
	MaterialityMinor    Materiality = "MINOR"
)

// ParseMateriality validates a materiality string.
func ParseMateriality(s string) (Materiality, error) {
	switch m := Materiality(s); m {
	case MaterialityMaterial, MaterialityMinor:
		return m, nil
	default:
		return "", &UnknownCodeError{Kind: "materiality", Code: s}
	}
}

// Claim is one discrete assertion extracted from deal material, the
// unit of grading. Its evidence set and transmission chains live in
// their own records keyed by ClaimID.
type Claim struct {
	ClaimID  string      `json:"claim_id"`
	TenantID string      `json:"tenant_id"`
	DealID   string      `json:"deal_id"`
	Text     string      `json:"text"`
	Material Materiality `json:"materiality"`

	// ICBound marks claims headed for an investment committee memo.
	// They face the material-claim admissibility gates regardless of
	// their own materiality.
	ICBound bool `json:"ic_bound,omitempty"`

	// Value fields when the claim asserts a quantity. Decimal string,
	// never a binary float.
	AssertedValue string `json:"asserted_value,omitempty"`
	Unit          string `json:"unit,omitempty"`
	PeriodLabel   string `json:"period_label,omitempty"`

	// EventTime is when the asserted fact occurred, used for staleness
	// checks against a caller-supplied cutoff.
	EventTime time.Time `json:"event_time,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
