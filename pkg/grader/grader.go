// Package grader runs the sanad grading pipeline for one claim: tier
// admissibility, per-item adjustment, weakest-link aggregation, the
// tawatur raise, defect detection, and severity application. The
// output carries an ordered explanation trail whose canonical hash is
// byte-stable across runs.
package grader

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Sanad-Labs/sanad/pkg/canonicalize"
	"github.com/Sanad-Labs/sanad/pkg/coi"
	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/dabt"
	"github.com/Sanad-Labs/sanad/pkg/decimal"
	"github.com/Sanad-Labs/sanad/pkg/ilal"
	"github.com/Sanad-Labs/sanad/pkg/shudhudh"
	"github.com/Sanad-Labs/sanad/pkg/tawatur"
	"github.com/Sanad-Labs/sanad/pkg/tiers"
)

// EngineVersion tags every result with the pipeline revision that
// produced it. Bumped on any change that can alter a grade or an
// explanation byte.
const EngineVersion = "2.0.0"

// Inputs is everything the pipeline needs to grade one claim.
type Inputs struct {
	Claim contracts.Claim
	Items []contracts.EvidenceItem
	Chain []contracts.TransmissionNode

	// Tiers optionally maps evidence id to a classified reliability
	// tier. Items without an entry carry no tier gate or ceiling; their
	// source grade stands on its own.
	Tiers map[string]tiers.TierID

	// StaleBefore, when non-zero, marks evidence retrieved before it as
	// stale.
	StaleBefore time.Time
}

// AdmissibilityHook vets a classified item's usage beyond the static
// tier gates. A non-nil conflict excludes the item exactly as a gate
// violation would. Methodology packs install their admissibility
// predicates through this hook.
type AdmissibilityHook func(item contracts.EvidenceItem, tierID tiers.TierID, usage tiers.UsageContext) *contracts.ConflictInfo

// Grader grades claims. Construct with New; the zero value is not
// usable.
type Grader struct {
	scorer             *dabt.Scorer
	engineVersion      string
	methodologyVersion string
	deviationThreshold *decimal.Value
	admitHook          AdmissibilityHook
	clock              func() time.Time
}

// New builds a grader with the neutral actor track record and the wall
// clock.
func New() *Grader {
	return &Grader{
		scorer:        dabt.NewScorer(nil),
		engineVersion: EngineVersion,
		clock:         time.Now,
	}
}

// WithClock overrides clock for testing.
func (g *Grader) WithClock(clock func() time.Time) *Grader {
	g.clock = clock
	return g
}

// WithTrackRecord installs an actor track record for precision
// scoring.
func (g *Grader) WithTrackRecord(track dabt.TrackRecord) *Grader {
	g.scorer = dabt.NewScorer(track)
	return g
}

// WithMethodology stamps results with the active methodology pack
// version. The version participates in the pass id.
func (g *Grader) WithMethodology(version string) *Grader {
	g.methodologyVersion = version
	return g
}

// WithDeviationThreshold overrides the anomaly detector's
// material-deviation bound with the methodology's effective value.
func (g *Grader) WithDeviationThreshold(t decimal.Value) *Grader {
	g.deviationThreshold = &t
	return g
}

// WithAdmissibilityHook installs an extra admissibility check run for
// classified items that pass the static tier gates.
func (g *Grader) WithAdmissibilityHook(hook AdmissibilityHook) *Grader {
	g.admitHook = hook
	return g
}

// itemAdjustment is the per-item outcome of the adjustment stage.
type itemAdjustment struct {
	item     contracts.EvidenceItem
	adjusted contracts.SanadGrade

	// capOnly is the best grade the item's caps alone would allow,
	// computed from grade A downward while ignoring the item's own
	// source grade. It bounds the tawatur raise.
	capOnly   contracts.SanadGrade
	breakdown dabt.Breakdown
}

// Grade runs the full pipeline. It fails closed: an empty evidence
// set, an unparseable grade, or a fully inadmissible set yields a
// typed error and no result.
func (g *Grader) Grade(in Inputs) (*contracts.SanadGradeResult, error) {
	claimID := in.Claim.ClaimID
	if len(in.Items) == 0 {
		return nil, &contracts.EmptyEvidenceError{ClaimID: claimID, Reason: "empty evidence set"}
	}
	items := sortedByID(in.Items)
	for _, item := range items {
		if !item.SourceGrade.Valid() {
			return nil, &contracts.UnknownCodeError{Kind: "grade", Code: string(item.SourceGrade)}
		}
	}

	var entries []contracts.GradeExplanationEntry
	inadmissible := map[string]string{}

	// Tier admissibility. A material claim may not rest solely on tiers
	// barred from standing alone; an unclassified item counts as an
	// anchor because no gate evidence exists against it.
	anchors := 0
	for _, item := range items {
		id, ok := in.Tiers[item.EvidenceID]
		if !ok {
			anchors++
			continue
		}
		if t := tiers.Get(id); t != nil && t.Admissibility.Gradeable && t.Admissibility.SoleSupportMaterial {
			anchors++
		}
	}

	var admissible []contracts.EvidenceItem
	var reasons []string
	usage := tiers.UsageContext{
		Materiality: in.Claim.Material,
		ICBound:     in.Claim.ICBound,
		SoleSupport: anchors == 0,
		ClaimID:     claimID,
	}
	for _, item := range items {
		tierID, classified := in.Tiers[item.EvidenceID]
		if !classified {
			admissible = append(admissible, item)
			continue
		}
		conflict := tiers.CheckAdmissibility(tierID, usage)
		if conflict == nil && g.admitHook != nil {
			conflict = g.admitHook(item, tierID, usage)
		}
		if conflict == nil {
			admissible = append(admissible, item)
			continue
		}
		inadmissible[item.EvidenceID] = conflict.Rule
		reasons = append(reasons, conflict.Rule)
		entries = append(entries, contracts.GradeExplanationEntry{
			Kind:       contracts.ExplainAdmissibility,
			Rule:       conflict.Rule,
			Detail:     conflict.Detail,
			Impact:     contracts.ImpactInadmissible,
			EvidenceID: item.EvidenceID,
		})
	}
	if len(admissible) == 0 {
		sort.Strings(reasons)
		return nil, &contracts.InadmissibleEvidenceError{ClaimID: claimID, Reasons: reasons}
	}

	assessment := tawatur.Assess(admissible)
	corroborated := assessment.EffectiveSources >= 2

	// Per-item adjustment, in evidence id order.
	adjustments := make([]itemAdjustment, 0, len(admissible))
	dabtScores := make(map[string]string, len(admissible))
	for _, item := range admissible {
		adj, itemEntries := g.adjustItem(item, in.Tiers, corroborated)
		adjustments = append(adjustments, adj)
		dabtScores[item.EvidenceID] = adj.breakdown.Score
		entries = append(entries, itemEntries...)
	}

	// Weakest link.
	grades := make([]contracts.SanadGrade, len(adjustments))
	capOnly := make([]contracts.SanadGrade, len(adjustments))
	for i, adj := range adjustments {
		grades[i] = adj.adjusted
		capOnly[i] = adj.capOnly
	}
	weakest, err := contracts.MinGrade(grades)
	if err != nil {
		return nil, err
	}
	entries = append(entries, contracts.GradeExplanationEntry{
		Kind:       contracts.ExplainAggregation,
		Rule:       "weakest_link",
		Detail:     fmt.Sprintf("minimum adjusted grade across %d admissible items, set by %s", len(adjustments), weakestContributor(adjustments, weakest)),
		Impact:     contracts.ImpactNone,
		GradeAfter: weakest,
	})

	// Tawatur raise. Only full corroboration raises, by one level,
	// never past what the items' caps alone would allow.
	raiseBound, err := contracts.MaxGrade(capOnly)
	if err != nil {
		return nil, err
	}
	grade := weakest
	tawaturEntry := contracts.GradeExplanationEntry{
		Kind:   contracts.ExplainTawatur,
		Rule:   "independent_corroboration",
		Detail: fmt.Sprintf("class %s: %d effective of %d nominal sources, collusion risk %s", assessment.Class, assessment.EffectiveSources, assessment.NominalSources, assessment.CollusionRisk),
		Impact: contracts.ImpactNone,
	}
	if assessment.Class == contracts.TawaturMutawatir {
		raised := weakest.Raised().CapAt(raiseBound)
		if raised.Better(weakest) {
			grade = raised
			tawaturEntry.Impact = contracts.ImpactRaised
			tawaturEntry.GradeBefore = weakest
			tawaturEntry.GradeAfter = raised
		} else {
			tawaturEntry.Detail += fmt.Sprintf("; raise held at cap bound %s", raiseBound)
		}
	}
	entries = append(entries, tawaturEntry)

	// Defect detection over the admissible set and the supplied chain.
	defects := g.collectDefects(in.Claim, admissible, in.Chain, in.Tiers, in.StaleBefore, corroborated)

	// Severity application, one explanation entry per finding.
	for _, d := range defects {
		entry := contracts.GradeExplanationEntry{
			Kind:       explanationKind(d.Code),
			Rule:       string(d.Code),
			Detail:     d.Detail,
			Impact:     contracts.ImpactNone,
			EvidenceID: d.EvidenceID,
		}
		if d.Cured {
			entry.Detail += "; cured by " + string(d.Cure)
			entries = append(entries, entry)
			continue
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
		Kind:       contracts.ExplainAggregation,
		Rule:       "final_grade",
		Detail:     fmt.Sprintf("%d defects recorded, %d inadmissible items excluded", len(defects), len(inadmissible)),
		Impact:     contracts.ImpactNone,
		GradeAfter: grade,
	})

	passID, err := computePassID(claimID, items, in.Chain, g.methodologyVersion)
	if err != nil {
		return nil, fmt.Errorf("grader: pass id: %w", err)
	}
	hash, err := canonicalize.CanonicalHash(entries)
	if err != nil {
		return nil, fmt.Errorf("grader: explanation hash: %w", err)
	}

	result := &contracts.SanadGradeResult{
		ClaimID:            claimID,
		TenantID:           in.Claim.TenantID,
		DealID:             in.Claim.DealID,
		PassID:             passID,
		Grade:              grade,
		EffectiveGrade:     grade,
		Tawatur:            assessment.Class,
		DabtScores:         dabtScores,
		Defects:            defects,
		Explanations:       entries,
		GradedAt:           g.clock().UTC(),
		EngineVersion:      g.engineVersion,
		MethodologyVersion: g.methodologyVersion,
		ExplanationHash:    hash,
	}
	if len(inadmissible) > 0 {
		result.InadmissibleEvidence = inadmissible
	}
	return result, nil
}

// adjustItem applies the per-item stages to one admissible item:
// contradiction override, tier ceiling, precision impact, COI cap.
func (g *Grader) adjustItem(item contracts.EvidenceItem, tierMap map[string]tiers.TierID, corroborated bool) (itemAdjustment, []contracts.GradeExplanationEntry) {
	var entries []contracts.GradeExplanationEntry

	grade := item.SourceGrade
	capOnly := contracts.GradeA

	if item.VerificationStatus == contracts.VerificationContradicted {
		entries = append(entries, contracts.GradeExplanationEntry{
			Kind:        contracts.ExplainVerification,
			Rule:        "contradicted_evidence",
			Detail:      "contradicted items contribute the floor grade",
			Impact:      contracts.ImpactLowered,
			EvidenceID:  item.EvidenceID,
			GradeBefore: grade,
			GradeAfter:  contracts.GradeD,
		})
		grade = contracts.GradeD
	}

	if tierID, ok := tierMap[item.EvidenceID]; ok {
		if t := tiers.Get(tierID); t != nil {
			entry := contracts.GradeExplanationEntry{
				Kind:       contracts.ExplainTier,
				Rule:       "tier_ceiling",
				Detail:     fmt.Sprintf("%s ceiling %s", t.Name, t.GradeCeiling),
				Impact:     contracts.ImpactNone,
				EvidenceID: item.EvidenceID,
			}
			capped := grade.CapAt(t.GradeCeiling)
			if capped != grade {
				entry.Impact = contracts.ImpactCapped
				entry.GradeBefore = grade
				entry.GradeAfter = capped
			}
			grade = capped
			capOnly = capOnly.CapAt(t.GradeCeiling)
			entries = append(entries, entry)
		}
	}

	breakdown := g.scorer.Score(item)
	entry := contracts.GradeExplanationEntry{
		Kind:       contracts.ExplainDabt,
		Rule:       "dabt_precision",
		Detail:     fmt.Sprintf("precision score %s", breakdown.Score),
		Impact:     contracts.ImpactNone,
		EvidenceID: item.EvidenceID,
	}
	applied := dabt.Apply(breakdown.Impact, grade)
	if applied != grade {
		if breakdown.Impact == dabt.ImpactHardCapC {
			entry.Impact = contracts.ImpactCapped
		} else {
			entry.Impact = contracts.ImpactLowered
		}
		entry.GradeBefore = grade
		entry.GradeAfter = applied
	}
	grade = applied
	capOnly = dabt.Apply(breakdown.Impact, capOnly)
	entries = append(entries, entry)

	if coiCap := coi.CapForItem(item, corroborated); coiCap != "" {
		entry := contracts.GradeExplanationEntry{
			Kind:       contracts.ExplainCOI,
			Rule:       "coi_cap",
			Detail:     fmt.Sprintf("conflict finding caps the item at %s", coiCap),
			Impact:     contracts.ImpactNone,
			EvidenceID: item.EvidenceID,
		}
		capped := grade.CapAt(coiCap)
		if capped != grade {
			entry.Impact = contracts.ImpactCapped
			entry.GradeBefore = grade
			entry.GradeAfter = capped
		}
		grade = capped
		capOnly = capOnly.CapAt(coiCap)
		entries = append(entries, entry)
	}

	return itemAdjustment{item: item, adjusted: grade, capOnly: capOnly, breakdown: breakdown}, entries
}

// collectDefects runs every detector and returns the union, sorted by
// code, then referenced id, then detail.
func (g *Grader) collectDefects(claim contracts.Claim, items []contracts.EvidenceItem, chain []contracts.TransmissionNode, tierMap map[string]tiers.TierID, staleBefore time.Time, corroborated bool) []contracts.DefectResult {
	var defects []contracts.DefectResult

	defects = append(defects, ilal.DetectAll(items, chain)...)
	if d := ilal.DetectCircularity(claim.ClaimID, items); d != nil {
		defects = append(defects, *d)
	}
	if d := ilal.DetectStaleness(items, staleBefore); d != nil {
		defects = append(defects, *d)
	}
	anomaly := shudhudh.NewDetector(func(item contracts.EvidenceItem) tiers.TierID {
		if id, ok := tierMap[item.EvidenceID]; ok {
			return id
		}
		return shudhudh.DefaultResolver(item)
	})
	if g.deviationThreshold != nil {
		anomaly = anomaly.WithThreshold(*g.deviationThreshold)
	}
	if d := anomaly.Detect(claim, items, chain); d != nil {
		defects = append(defects, *d)
	}
	defects = append(defects, coi.CollectDefects(coi.EvaluateAll(items, corroborated))...)

	sort.Slice(defects, func(i, j int) bool {
		if defects[i].Code != defects[j].Code {
			return defects[i].Code < defects[j].Code
		}
		ri, rj := defectRef(defects[i]), defectRef(defects[j])
		if ri != rj {
			return ri < rj
		}
		return defects[i].Detail < defects[j].Detail
	})
	return defects
}

func defectRef(d contracts.DefectResult) string {
	if d.EvidenceID != "" {
		return d.EvidenceID
	}
	return d.NodeID
}

// explanationKind buckets a defect code into its pipeline family.
func explanationKind(code contracts.DefectCode) contracts.ExplanationKind {
	switch code {
	case contracts.DefectShudhudhAnomaly, contracts.DefectShudhudhUnitMismatch, contracts.DefectShudhudhTimeWindow:
		return contracts.ExplainShudhudh
	case contracts.DefectCOIHighUndisclosed, contracts.DefectCOIDisclosureMissing:
		return contracts.ExplainCOI
	case contracts.DefectCalcFormulaMismatch, contracts.DefectCalcInputMissing:
		return contracts.ExplainCalc
	default:
		return contracts.ExplainIlal
	}
}

// weakestContributor names the first item, in id order, whose adjusted
// grade equals the weakest link.
func weakestContributor(adjustments []itemAdjustment, weakest contracts.SanadGrade) string {
	for _, adj := range adjustments {
		if adj.adjusted == weakest {
			return adj.item.EvidenceID
		}
	}
	return ""
}

// passSeed is the canonical identity of one grading pass.
type passSeed struct {
	ClaimID     string   `json:"claim_id"`
	Evidence    []string `json:"evidence"`
	Chain       []string `json:"chain"`
	Methodology string   `json:"methodology_version"`
}

// computePassID derives the deterministic pass id: a UUIDv5 over the
// JCS form of the claim id, the evidence ids with their source grades,
// the chain node ids, and the methodology version.
func computePassID(claimID string, items []contracts.EvidenceItem, chain []contracts.TransmissionNode, methodology string) (string, error) {
	seed := passSeed{ClaimID: claimID, Methodology: methodology}
	for _, item := range items {
		seed.Evidence = append(seed.Evidence, item.EvidenceID+":"+string(item.SourceGrade))
	}
	sort.Strings(seed.Evidence)
	for _, node := range chain {
		seed.Chain = append(seed.Chain, node.NodeID)
	}
	sort.Strings(seed.Chain)

	canonical, err := canonicalize.JCS(seed)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, canonical).String(), nil
}

func sortedByID(items []contracts.EvidenceItem) []contracts.EvidenceItem {
	out := make([]contracts.EvidenceItem, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool { return out[i].EvidenceID < out[j].EvidenceID })
	return out
}
