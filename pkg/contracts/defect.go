package contracts

// DefectCode is the closed set of defect findings the engine can emit.
// Detectors never invent codes; anything outside this set is a bug, not
// a finding.
type DefectCode string

const (
	DefectChainBreak           DefectCode = "ILAL_CHAIN_BREAK"
	DefectChronologyImpossible DefectCode = "ILAL_CHRONOLOGY_IMPOSSIBLE"
	DefectChainGrafting        DefectCode = "ILAL_CHAIN_GRAFTING"
	DefectVersionDrift         DefectCode = "ILAL_VERSION_DRIFT"
	DefectShudhudhAnomaly      DefectCode = "SHUDHUDH_ANOMALY"
	DefectShudhudhUnitMismatch DefectCode = "SHUDHUDH_UNIT_MISMATCH"
	DefectShudhudhTimeWindow   DefectCode = "SHUDHUDH_TIME_WINDOW"
	DefectCOIHighUndisclosed   DefectCode = "COI_HIGH_UNDISCLOSED"
	DefectCOIDisclosureMissing DefectCode = "COI_DISCLOSURE_MISSING"
	DefectCircularity          DefectCode = "CIRCULARITY"
	DefectStaleness            DefectCode = "STALENESS"
	DefectCalcFormulaMismatch  DefectCode = "CALC_FORMULA_MISMATCH"
	DefectCalcInputMissing     DefectCode = "CALC_INPUT_MISSING"
)

// legacyDefectCodes maps retired code spellings to their current form.
// Stored findings from older runs still parse.
var legacyDefectCodes = map[string]DefectCode{
	"BROKEN_CHAIN":       DefectChainBreak,
	"CHRONO_IMPOSSIBLE":  DefectChronologyImpossible,
	"GRAFTED_CHAIN":      DefectChainGrafting,
	"VERSION_DRIFT":      DefectVersionDrift,
	"COI_UNDISCLOSED":    DefectCOIHighUndisclosed,
	"COI_NO_DISCLOSURE":  DefectCOIDisclosureMissing,
	"CALC_MISSING_INPUT": DefectCalcInputMissing,
}

// ParseDefectCode validates a defect code string, accepting legacy
// spellings.
func ParseDefectCode(s string) (DefectCode, error) {
	c := DefectCode(s)
	if _, ok := defectSeverity[c]; ok {
		return c, nil
	}
	if mapped, ok := legacyDefectCodes[s]; ok {
		return mapped, nil
	}
	return "", &UnknownCodeError{Kind: "defect_code", Code: s}
}

// Severity fixes how a defect lands on the final grade. FATAL forces D,
// MAJOR caps at C, MINOR is recorded without changing the grade.
type Severity string

const (
	SeverityFatal Severity = "FATAL"
	SeverityMajor Severity = "MAJOR"
	SeverityMinor Severity = "MINOR"
)

// CureProtocol names the remediation path for a defect.
type CureProtocol string

const (
	CureReconstructChain CureProtocol = "RECONSTRUCT_CHAIN"
	CureRequireReaudit   CureProtocol = "REQUIRE_REAUDIT"
	CureRequestSource    CureProtocol = "REQUEST_SOURCE"
	CureHumanArbitration CureProtocol = "HUMAN_ARBITRATION"
	CureDiscardClaim     CureProtocol = "DISCARD_CLAIM"
)

// defectSeverity is the fixed severity matrix. Severity is a property
// of the code, not of the detector call site.
var defectSeverity = map[DefectCode]Severity{
	DefectChainBreak:           SeverityFatal,
	DefectChronologyImpossible: SeverityFatal,
	DefectChainGrafting:        SeverityMajor,
	DefectVersionDrift:         SeverityMajor,
	DefectShudhudhAnomaly:      SeverityMajor,
	DefectShudhudhUnitMismatch: SeverityMajor,
	DefectShudhudhTimeWindow:   SeverityMajor,
	DefectCOIHighUndisclosed:   SeverityMajor,
	DefectCOIDisclosureMissing: SeverityMinor,
	DefectCircularity:          SeverityFatal,
	DefectStaleness:            SeverityMinor,
	DefectCalcFormulaMismatch:  SeverityMajor,
	DefectCalcInputMissing:     SeverityFatal,
}

var defectCure = map[DefectCode]CureProtocol{
	DefectChainBreak:           CureReconstructChain,
	DefectChronologyImpossible: CureReconstructChain,
	DefectChainGrafting:        CureRequireReaudit,
	DefectVersionDrift:         CureRequestSource,
	DefectShudhudhAnomaly:      CureHumanArbitration,
	DefectShudhudhUnitMismatch: CureHumanArbitration,
	DefectShudhudhTimeWindow:   CureHumanArbitration,
	DefectCOIHighUndisclosed:   CureRequireReaudit,
	DefectCOIDisclosureMissing: CureRequestSource,
	DefectCircularity:          CureReconstructChain,
	DefectStaleness:            CureRequestSource,
	DefectCalcFormulaMismatch:  CureRequireReaudit,
	DefectCalcInputMissing:     CureDiscardClaim,
}

// Severity returns the fixed severity for the code. Panics on an
// unknown code; parse at the boundary.
func (c DefectCode) Severity() Severity {
	sev, ok := defectSeverity[c]
	if !ok {
		panic("contracts: invalid defect code " + string(c))
	}
	return sev
}

// Cure returns the remediation protocol for the code. Panics on an
// unknown code.
func (c DefectCode) Cure() CureProtocol {
	cure, ok := defectCure[c]
	if !ok {
		panic("contracts: invalid defect code " + string(c))
	}
	return cure
}

// Valid reports whether c is a known defect code.
func (c DefectCode) Valid() bool {
	_, ok := defectSeverity[c]
	return ok
}

// DefectResult is one defect finding attached to a claim's grade.
type DefectResult struct {
	Code     DefectCode   `json:"code"`
	Severity Severity     `json:"severity"`
	Cure     CureProtocol `json:"cure_protocol"`

	// EvidenceID scopes the finding to one item when it is not
	// chain-wide or claim-wide.
	EvidenceID string `json:"evidence_id,omitempty"`
	NodeID     string `json:"node_id,omitempty"`
	Detail     string `json:"detail"`

	// Metadata carries detector-specific facts about the finding, such
	// as the drift direction on a version-drift defect.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Cured marks that the cure protocol has been satisfied on record.
	// A cured MAJOR defect stops capping; the finding itself stays.
	Cured bool `json:"cured,omitempty"`
}

// NewDefect builds a finding with severity and cure filled from the
// fixed matrices.
func NewDefect(code DefectCode, detail string) DefectResult {
	return DefectResult{
		Code:     code,
		Severity: code.Severity(),
		Cure:     code.Cure(),
		Detail:   detail,
	}
}

// WithSeverity overrides the matrix severity. Only emission sites may
// call this; consumers read Severity as recorded.
func (d DefectResult) WithSeverity(sev Severity) DefectResult {
	d.Severity = sev
	return d
}

// WorstSeverity returns the most severe uncured finding in defects, or
// ok=false when every finding is cured or the list is empty.
func WorstSeverity(defects []DefectResult) (Severity, bool) {
	rank := map[Severity]int{SeverityFatal: 0, SeverityMajor: 1, SeverityMinor: 2}
	best := 3
	var worst Severity
	for _, d := range defects {
		if d.Cured {
			continue
		}
		if r := rank[d.Severity]; r < best {
			best = r
			worst = d.Severity
		}
	}
	return worst, best < 3
}
