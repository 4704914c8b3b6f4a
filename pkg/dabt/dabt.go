// Package dabt computes precision scores for evidence items. The score
// is a fixed-weight combination of named dimensions, each in [0,1],
// carried as exact decimals so the same item always scores the same
// bytes.
package dabt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/decimal"
)

// Dimension names the scored aspects of an item's precision.
type Dimension string

const (
	DimUnitSpecificity     Dimension = "unit_specificity"
	DimTemporalSpecificity Dimension = "temporal_specificity"
	DimInternalConsistency Dimension = "internal_consistency"
	DimActorTrackRecord    Dimension = "actor_track_record"
)

// weights are fixed and sum to exactly 1. They are not tenant
// configurable; auditability depends on every tenant scoring alike.
var weights = map[Dimension]decimal.Value{
	DimUnitSpecificity:     decimal.MustParse("0.25"),
	DimTemporalSpecificity: decimal.MustParse("0.20"),
	DimInternalConsistency: decimal.MustParse("0.30"),
	DimActorTrackRecord:    decimal.MustParse("0.25"),
}

// Band thresholds for grade impact.
var (
	bandClean  = decimal.MustParse("0.80")
	bandCapped = decimal.MustParse("0.50")
)

// Impact is the grade effect of a precision score.
type Impact string

const (
	ImpactNone          Impact = "NONE"
	ImpactSoftDowngrade Impact = "SOFT_DOWNGRADE"
	ImpactHardCapC      Impact = "HARD_CAP_C"
)

// TrackRecord supplies historical accuracy for an ingest actor in
// [0,1]. Implementations missing a record return ok=false; the scorer
// substitutes a neutral prior.
type TrackRecord interface {
	ActorAccuracy(actorID string) (decimal.Value, bool)
}

// StaticTrackRecord is a fixed actor accuracy table.
type StaticTrackRecord map[string]string

// ActorAccuracy looks up the actor, parsing the stored decimal.
func (s StaticTrackRecord) ActorAccuracy(actorID string) (decimal.Value, bool) {
	raw, ok := s[actorID]
	if !ok {
		return decimal.Value{}, false
	}
	v, err := decimal.Parse(raw)
	if err != nil {
		return decimal.Value{}, false
	}
	return v.Clamp01(), true
}

// neutralAccuracy is the prior for actors with no history.
var neutralAccuracy = decimal.MustParse("0.60")

// Scorer computes precision scores.
type Scorer struct {
	track TrackRecord
}

// NewScorer builds a scorer. track may be nil, in which case every
// actor gets the neutral prior.
func NewScorer(track TrackRecord) *Scorer {
	return &Scorer{track: track}
}

// Breakdown carries the per-dimension values behind a score.
type Breakdown struct {
	Components map[Dimension]string `json:"components"`
	Score      string               `json:"score"`
	Impact     Impact               `json:"impact"`
}

// Score computes the precision score for one evidence item. The result
// is a scale-4 decimal string; Breakdown lists each dimension at the
// same scale.
func (s *Scorer) Score(item contracts.EvidenceItem) Breakdown {
	components := map[Dimension]decimal.Value{
		DimUnitSpecificity:     scoreUnitSpecificity(item),
		DimTemporalSpecificity: scoreTemporalSpecificity(item),
		DimInternalConsistency: scoreInternalConsistency(item),
		DimActorTrackRecord:    s.scoreActorTrackRecord(item),
	}

	acc := decimal.Zero()
	for dim, v := range components {
		acc = acc.Add(weights[dim].Mul(v))
	}

	out := Breakdown{
		Components: make(map[Dimension]string, len(components)),
		Score:      acc.Score(),
	}
	for dim, v := range components {
		out.Components[dim] = v.Score()
	}
	out.Impact = GradeImpact(acc)
	return out
}

// GradeImpact maps a score to its grade effect. Bands are half-open:
// score >= 0.80 is clean, 0.50 <= score < 0.80 soft-downgrades one
// level, score < 0.50 hard-caps at C.
func GradeImpact(score decimal.Value) Impact {
	if score.Cmp(bandClean) >= 0 {
		return ImpactNone
	}
	if score.Cmp(bandCapped) >= 0 {
		return ImpactSoftDowngrade
	}
	return ImpactHardCapC
}

// ImpactForScore parses a stored score string and maps it.
func ImpactForScore(score string) (Impact, error) {
	v, err := decimal.Parse(score)
	if err != nil {
		return "", fmt.Errorf("dabt: bad score %q: %w", score, err)
	}
	return GradeImpact(v), nil
}

// Apply adjusts a grade per the impact. SOFT_DOWNGRADE moves one level
// toward D; HARD_CAP_C caps at C.
func Apply(impact Impact, grade contracts.SanadGrade) contracts.SanadGrade {
	switch impact {
	case ImpactSoftDowngrade:
		return grade.Downgraded()
	case ImpactHardCapC:
		return grade.CapAt(contracts.GradeC)
	default:
		return grade
	}
}

// knownUnits are unit spellings that count as fully specific.
var knownUnits = map[string]bool{
	"usd": true, "eur": true, "gbp": true, "jpy": true, "chf": true,
	"percent": true, "%": true, "bps": true,
	"count": true, "units": true, "seats": true, "customers": true,
	"usd_thousands": true, "usd_millions": true,
}

func scoreUnitSpecificity(item contracts.EvidenceItem) decimal.Value {
	if item.AssertedValue == "" {
		// Non-quantitative items have nothing to be unit-imprecise about.
		return decimal.One()
	}
	unit := strings.ToLower(strings.TrimSpace(item.Unit))
	switch {
	case unit == "":
		return decimal.MustParse("0.20")
	case knownUnits[unit]:
		return decimal.One()
	default:
		return decimal.MustParse("0.60")
	}
}

var (
	isoDatePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	monthPattern      = regexp.MustCompile(`^\d{4}-\d{2}$`)
	quarterPattern    = regexp.MustCompile(`^(?i)(FY)?\d{4}[- ]?Q[1-4]$`)
	fiscalYearPattern = regexp.MustCompile(`^(?i)(FY)?\d{4}$`)
)

func scoreTemporalSpecificity(item contracts.EvidenceItem) decimal.Value {
	label := strings.TrimSpace(item.PeriodLabel)
	switch {
	case label == "":
		if item.AssertedValue == "" {
			return decimal.One()
		}
		return decimal.MustParse("0.20")
	case isoDatePattern.MatchString(label):
		return decimal.One()
	case monthPattern.MatchString(label):
		return decimal.MustParse("0.90")
	case quarterPattern.MatchString(label):
		return decimal.MustParse("0.80")
	case fiscalYearPattern.MatchString(label):
		return decimal.MustParse("0.60")
	default:
		return decimal.MustParse("0.40")
	}
}

func scoreInternalConsistency(item contracts.EvidenceItem) decimal.Value {
	score := decimal.One()
	penalty := decimal.MustParse("0.30")

	// A quantitative assertion must parse as a decimal.
	if item.AssertedValue != "" {
		if _, err := decimal.Parse(item.AssertedValue); err != nil {
			score = score.Sub(decimal.MustParse("0.50"))
		}
	}
	// A unit without a value, or a period without a value, signals a
	// mangled extraction.
	if item.AssertedValue == "" && (item.Unit != "" || item.PeriodLabel != "") {
		score = score.Sub(penalty)
	}
	// Contradicted items have failed verification against other records.
	if item.VerificationStatus == contracts.VerificationContradicted {
		score = score.Sub(decimal.MustParse("0.40"))
	}
	return score.Clamp01()
}

func (s *Scorer) scoreActorTrackRecord(item contracts.EvidenceItem) decimal.Value {
	if s.track == nil || item.IngestActorID == "" {
		return neutralAccuracy
	}
	acc, ok := s.track.ActorAccuracy(item.IngestActorID)
	if !ok {
		return neutralAccuracy
	}
	return acc
}

// Dimensions lists all scored dimensions in a fixed order.
func Dimensions() []Dimension {
	dims := make([]Dimension, 0, len(weights))
	for d := range weights {
		dims = append(dims, d)
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i] < dims[j] })
	return dims
}
