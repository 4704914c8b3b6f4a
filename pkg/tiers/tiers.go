// Package tiers defines the six-level source reliability hierarchy.
// Tiers map to base weights, grade ceilings, and admissibility rules.
package tiers

import (
	"fmt"
	"strings"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
)

// TierID identifies a source reliability tier.
type TierID string

const (
	TierPrimaryAudited        TierID = "PRIMARY_AUDITED"
	TierPrimarySystem         TierID = "PRIMARY_SYSTEM"
	TierSecondaryCorroborated TierID = "SECONDARY_CORROBORATED"
	TierManagementRep         TierID = "MANAGEMENT_REP"
	TierExternalUnverified    TierID = "EXTERNAL_UNVERIFIED"
	TierRumorInference        TierID = "RUMOR_INFERENCE"
)

// Admissibility defines usage gates for a tier.
type Admissibility struct {
	// SoleSupportMaterial permits the tier to stand as the only support
	// for a MATERIAL claim.
	SoleSupportMaterial bool
	// Gradeable permits the tier to enter grading at all.
	Gradeable bool
}

// Tier represents a reliability tier with weight, ceiling, and gates.
type Tier struct {
	ID          TierID
	Name        string
	Description string

	// Rank orders tiers strongest (0) to weakest. Strictly lower rank
	// means strictly stronger for anomaly consensus purposes.
	Rank int

	// BaseWeight is the tier's scoring weight in (0,1], a decimal
	// string.
	BaseWeight string

	// GradeCeiling is the best grade a claim resting solely on this
	// tier may reach.
	GradeCeiling contracts.SanadGrade

	Admissibility Admissibility
}

// All available tiers, strongest first.
var (
	PrimaryAudited = Tier{
		ID:           TierPrimaryAudited,
		Name:         "Primary audited",
		Description:  "Audited financial records and attested filings",
		Rank:         0,
		BaseWeight:   "1.00",
		GradeCeiling: contracts.GradeA,
		Admissibility: Admissibility{
			SoleSupportMaterial: true,
			Gradeable:           true,
		},
	}

	PrimarySystem = Tier{
		ID:           TierPrimarySystem,
		Name:         "Primary system",
		Description:  "Direct exports from systems of record",
		Rank:         1,
		BaseWeight:   "0.85",
		GradeCeiling: contracts.GradeA,
		Admissibility: Admissibility{
			SoleSupportMaterial: true,
			Gradeable:           true,
		},
	}

	SecondaryCorroborated = Tier{
		ID:           TierSecondaryCorroborated,
		Name:         "Secondary corroborated",
		Description:  "Secondary documents verified by a human reviewer",
		Rank:         2,
		BaseWeight:   "0.70",
		GradeCeiling: contracts.GradeB,
		Admissibility: Admissibility{
			SoleSupportMaterial: true,
			Gradeable:           true,
		},
	}

	ManagementRep = Tier{
		ID:           TierManagementRep,
		Name:         "Management representation",
		Description:  "Statements and decks provided by deal management",
		Rank:         3,
		BaseWeight:   "0.50",
		GradeCeiling: contracts.GradeC,
		Admissibility: Admissibility{
			SoleSupportMaterial: true,
			Gradeable:           true,
		},
	}

	ExternalUnverified = Tier{
		ID:           TierExternalUnverified,
		Name:         "External unverified",
		Description:  "Third-party publications without verification",
		Rank:         4,
		BaseWeight:   "0.35",
		GradeCeiling: contracts.GradeC,
		Admissibility: Admissibility{
			SoleSupportMaterial: false,
			Gradeable:           true,
		},
	}

	RumorInference = Tier{
		ID:           TierRumorInference,
		Name:         "Rumor or inference",
		Description:  "Unattributable rumor and model inference",
		Rank:         5,
		BaseWeight:   "0.15",
		GradeCeiling: contracts.GradeD,
		Admissibility: Admissibility{
			SoleSupportMaterial: false,
			Gradeable:           false,
		},
	}

	// AllTiers contains all tiers keyed by ID.
	AllTiers = map[TierID]Tier{
		TierPrimaryAudited:        PrimaryAudited,
		TierPrimarySystem:         PrimarySystem,
		TierSecondaryCorroborated: SecondaryCorroborated,
		TierManagementRep:         ManagementRep,
		TierExternalUnverified:    ExternalUnverified,
		TierRumorInference:        RumorInference,
	}

	// Ordered lists tiers strongest first.
	Ordered = []Tier{
		PrimaryAudited,
		PrimarySystem,
		SecondaryCorroborated,
		ManagementRep,
		ExternalUnverified,
		RumorInference,
	}
)

// Get returns a tier by ID, or nil if not found.
func Get(id TierID) *Tier {
	tier, ok := AllTiers[id]
	if !ok {
		return nil
	}
	return &tier
}

// Parse validates a tier ID string.
func Parse(s string) (TierID, error) {
	if _, ok := AllTiers[TierID(s)]; !ok {
		return "", &contracts.UnknownCodeError{Kind: "tier", Code: s}
	}
	return TierID(s), nil
}

// StrongerThan reports whether t is a strictly stronger tier than o.
func (t *Tier) StrongerThan(o *Tier) bool {
	return t.Rank < o.Rank
}

// UsageContext describes how a tier is being used for admissibility
// checking.
type UsageContext struct {
	Materiality contracts.Materiality
	// ICBound claims face the material gates regardless of their own
	// materiality.
	ICBound bool
	// SoleSupport marks that this tier is the only support the claim
	// has.
	SoleSupport bool
	ClaimID     string
}

// CheckAdmissibility applies the hard usage gates. A nil return means
// admissible; a non-nil ConflictInfo names the violated rule.
func CheckAdmissibility(id TierID, usage UsageContext) *contracts.ConflictInfo {
	tier := Get(id)
	if tier == nil {
		return &contracts.ConflictInfo{
			Rule:    "unknown_tier",
			Detail:  fmt.Sprintf("tier %q is not in the hierarchy", id),
			TierID:  string(id),
			ClaimID: usage.ClaimID,
		}
	}
	if !tier.Admissibility.Gradeable {
		return &contracts.ConflictInfo{
			Rule:    "tier_not_gradeable",
			Detail:  fmt.Sprintf("%s evidence cannot support any graded claim", tier.Name),
			TierID:  string(id),
			ClaimID: usage.ClaimID,
		}
	}
	if usage.SoleSupport &&
		(usage.Materiality == contracts.MaterialityMaterial || usage.ICBound) &&
		!tier.Admissibility.SoleSupportMaterial {
		return &contracts.ConflictInfo{
			Rule:    "sole_support_material",
			Detail:  fmt.Sprintf("%s evidence cannot be the sole support for a material claim", tier.Name),
			TierID:  string(id),
			ClaimID: usage.ClaimID,
		}
	}
	return nil
}

// FromGrade embeds a public source grade into the hierarchy. Used when
// no richer source descriptor is available; richer classification
// should go through Classify.
func FromGrade(g contracts.SanadGrade) TierID {
	switch g {
	case contracts.GradeA:
		return TierPrimaryAudited
	case contracts.GradeB:
		return TierSecondaryCorroborated
	case contracts.GradeC:
		return TierManagementRep
	default:
		return TierExternalUnverified
	}
}

// BaseGrade maps a tier to the ceiling grade for claims resting solely
// on it.
func BaseGrade(id TierID) (contracts.SanadGrade, error) {
	tier := Get(id)
	if tier == nil {
		return "", &contracts.UnknownCodeError{Kind: "tier", Code: string(id)}
	}
	return tier.GradeCeiling, nil
}

// Classify assigns a tier from a source descriptor. Classification is
// conservative: anything unrecognized lands in EXTERNAL_UNVERIFIED
// rather than a primary tier.
func Classify(src contracts.SourceDescriptor) TierID {
	doc := strings.ToLower(strings.TrimSpace(src.DocumentType))
	switch doc {
	case "audited_financials", "audit_report", "tax_filing", "regulatory_filing", "bank_statement":
		if src.Audited {
			return TierPrimaryAudited
		}
		return TierPrimarySystem
	case "system_export", "api_extract", "ledger_export", "erp_export", "crm_export":
		return TierPrimarySystem
	case "contract", "invoice", "board_minutes", "cap_table":
		if src.HumanVerified {
			return TierSecondaryCorroborated
		}
		return TierManagementRep
	case "management_deck", "management_accounts", "founder_statement", "data_room_summary":
		return TierManagementRep
	case "news_article", "analyst_report", "press_release", "web_page":
		if src.HumanVerified {
			return TierSecondaryCorroborated
		}
		return TierExternalUnverified
	case "rumor", "chat_message", "forum_post", "model_inference":
		return TierRumorInference
	default:
		if src.Audited {
			return TierPrimaryAudited
		}
		if src.HumanVerified {
			return TierSecondaryCorroborated
		}
		return TierExternalUnverified
	}
}
