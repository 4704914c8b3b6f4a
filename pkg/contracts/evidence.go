package contracts

import "time"

// VerificationStatus tracks the human/system verification state of an
// evidence item. It is the only mutable aspect of an EvidenceItem's
// lifecycle; everything else is append-only.
type VerificationStatus string

const (
	VerificationUnverified   VerificationStatus = "UNVERIFIED"
	VerificationVerified     VerificationStatus = "VERIFIED"
	VerificationContradicted VerificationStatus = "CONTRADICTED"
)

// ParseVerificationStatus validates a verification status string.
func ParseVerificationStatus(s string) (VerificationStatus, error) {
	switch v := VerificationStatus(s); v {
	case VerificationUnverified, VerificationVerified, VerificationContradicted:
		return v, nil
	default:
		return "", &UnknownCodeError{Kind: "verification_status", Code: s}
	}
}

// CanTransitionTo reports whether the status may move to next.
// Allowed: UNVERIFIED→VERIFIED, UNVERIFIED→CONTRADICTED,
// VERIFIED→CONTRADICTED. CONTRADICTED is terminal.
func (v VerificationStatus) CanTransitionTo(next VerificationStatus) bool {
	switch v {
	case VerificationUnverified:
		return next == VerificationVerified || next == VerificationContradicted
	case VerificationVerified:
		return next == VerificationContradicted
	case VerificationContradicted:
		return false
	default:
		return false
	}
}

// COIAffiliation classifies the relationship between an evidence source
// and the deal it attests to.
type COIAffiliation string

const (
	COIAffiliationNone       COIAffiliation = "NONE"
	COIAffiliationManagement COIAffiliation = "MANAGEMENT"
	COIAffiliationAffiliate  COIAffiliation = "AFFILIATE"
	COIAffiliationAdvisor    COIAffiliation = "ADVISOR"
)

// COIDisclosure is the tri-state disclosure marker on a source record.
// ABSENT means the record carries no disclosure fields at all, which is
// distinct from an explicit UNDISCLOSED affiliation.
type COIDisclosure string

const (
	COIDisclosed   COIDisclosure = "DISCLOSED"
	COIUndisclosed COIDisclosure = "UNDISCLOSED"
	COIAbsent      COIDisclosure = "ABSENT"
)

// COIDeclaration is the conflict-of-interest block on an evidence item.
type COIDeclaration struct {
	Affiliation COIAffiliation `json:"affiliation"`
	Disclosure  COIDisclosure  `json:"disclosure"`
	// CureRef points at a recorded cure (explicit disclosure plus
	// counter-corroboration) when one exists.
	CureRef string `json:"cure_ref,omitempty"`
}

// EvidenceItem is one immutable piece of evidence supporting a claim.
// Created once at ingestion/extraction time and never deleted; only the
// verification status transitions afterwards.
type EvidenceItem struct {
	EvidenceID   string `json:"evidence_id"`
	TenantID     string `json:"tenant_id"`
	DealID       string `json:"deal_id"`
	SourceSpanID string `json:"source_span_id,omitempty"`
	SourceSystem string `json:"source_system"`

	// UpstreamOriginID identifies the upstream origin document or feed.
	// Required for independence testing: two items sharing an upstream
	// origin are one source, however many systems relayed them.
	UpstreamOriginID string `json:"upstream_origin_id,omitempty"`

	RetrievalTimestamp time.Time          `json:"retrieval_timestamp"`
	VerificationStatus VerificationStatus `json:"verification_status"`

	// SourceGrade is the public tier grade of the source. The internal
	// rank subgrade refines ordering inside a grade band and never gates.
	SourceGrade        SanadGrade `json:"source_grade"`
	SourceRankSubgrade int        `json:"source_rank_subgrade,omitempty"`

	// VersionLabel and ContentHash identify the revision of the
	// underlying source document; they feed version-drift detection.
	VersionLabel string `json:"version_label,omitempty"`
	ContentHash  string `json:"content_hash,omitempty"`

	// IngestActorID is the actor that retrieved this item. Shared actors
	// across nominally independent sources feed collusion analysis.
	IngestActorID string `json:"ingest_actor_id,omitempty"`

	// AssertedValue is the decimal value this item attests, when the
	// underlying span carries one. Always a decimal string, never a
	// binary float.
	AssertedValue string `json:"asserted_value,omitempty"`
	Unit          string `json:"unit,omitempty"`
	PeriodLabel   string `json:"period_label,omitempty"`

	COI *COIDeclaration `json:"coi,omitempty"`
}

// SourceDescriptor describes a source for tier classification, separate
// from any one evidence item: the same source descriptor may anchor many
// items.
type SourceDescriptor struct {
	SystemName    string `json:"system_name"`
	DocumentType  string `json:"document_type"`
	Audited       bool   `json:"audited"`
	HumanVerified bool   `json:"human_verified"`
}
