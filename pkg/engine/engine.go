// Package engine is the integration facade over the grading pipeline.
// It wires the pure scoring packages to whatever collaborators a
// deployment supplies: evidence and chain repositories, a claims
// service, a defects service, an audit sink. Scoring itself stays in
// the pure packages; the engine only resolves inputs, applies the
// active methodology, and delivers results.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sanad-Labs/sanad/pkg/audit"
	"github.com/Sanad-Labs/sanad/pkg/calcsanad"
	"github.com/Sanad-Labs/sanad/pkg/canonicalize"
	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/dabt"
	"github.com/Sanad-Labs/sanad/pkg/grader"
	"github.com/Sanad-Labs/sanad/pkg/methodology"
	"github.com/Sanad-Labs/sanad/pkg/observability"
	"github.com/Sanad-Labs/sanad/pkg/sanadchain"
	"github.com/Sanad-Labs/sanad/pkg/tiers"
)

// defaultMaxParallel bounds batch fan-out when the caller does not.
const defaultMaxParallel = 4

// EvidenceRepository supplies the evidence items recorded for a claim.
type EvidenceRepository interface {
	EvidenceForClaim(ctx context.Context, tenantID, claimID string) ([]contracts.EvidenceItem, error)
}

// ChainRepository stores and retrieves transmission chains.
type ChainRepository interface {
	ChainForClaim(ctx context.Context, tenantID, claimID string) ([]contracts.TransmissionNode, error)
	SaveChain(ctx context.Context, tenantID, claimID string, nodes []contracts.TransmissionNode) error
}

// ClaimsService resolves claim records by id.
type ClaimsService interface {
	Claim(ctx context.Context, tenantID, claimID string) (contracts.Claim, error)
}

// DefectsService receives the defects found during a grading pass.
type DefectsService interface {
	RecordDefects(ctx context.Context, tenantID, subjectID string, defects []contracts.DefectResult) error
}

// AuditSink receives grading audit events. audit.Timeline satisfies it.
type AuditSink interface {
	Record(event audit.Event)
}

// Deps carries an Engine's collaborators and tuning. Every field is
// optional; a zero Deps yields a self-contained engine that grades
// whatever the caller hands it inline.
type Deps struct {
	Evidence EvidenceRepository
	Chains   ChainRepository
	Claims   ClaimsService
	Defects  DefectsService
	Audit    AuditSink

	// Registry is the active methodology. Nil selects the compiled-in
	// defaults.
	Registry *methodology.Registry

	// Formulas resolves calc formula definitions for drift checks.
	Formulas calcsanad.Registry

	// Telemetry, when set, records one span plus the grading metrics
	// per pass.
	Telemetry *observability.Provider

	// TrackRecord feeds actor precision scoring.
	TrackRecord dabt.TrackRecord

	// MaxParallel bounds batch fan-out. Zero or negative picks the
	// default.
	MaxParallel int

	Logger *slog.Logger
	Clock  func() time.Time
}

// Engine grades claims and calcs against one fixed methodology.
// Construct with New; the zero value is not usable. An Engine is safe
// for concurrent use.
type Engine struct {
	deps        Deps
	registry    *methodology.Registry
	grader      *grader.Grader
	builder     *sanadchain.Builder
	propagator  *calcsanad.Propagator
	logger      *slog.Logger
	clock       func() time.Time
	maxParallel int
}

// New builds an engine around deps. The methodology registry is bound
// once here: its version stamps every pass id, its thresholds reach
// the detectors, and its predicates become admissibility gates.
func New(deps Deps) *Engine {
	reg := deps.Registry
	if reg == nil {
		reg = methodology.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxParallel := deps.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}

	g := grader.New().
		WithClock(clock).
		WithMethodology(reg.Version()).
		WithDeviationThreshold(reg.DeviationThreshold())
	if deps.TrackRecord != nil {
		g = g.WithTrackRecord(deps.TrackRecord)
	}
	if hook := admissibilityHook(reg); hook != nil {
		g = g.WithAdmissibilityHook(hook)
	}

	return &Engine{
		deps:        deps,
		registry:    reg,
		grader:      g,
		builder:     sanadchain.NewBuilder().WithClock(clock),
		propagator:  calcsanad.NewPropagator(deps.Formulas).WithClock(clock),
		logger:      logger.With("component", "engine"),
		clock:       clock,
		maxParallel: maxParallel,
	}
}

// Methodology returns the active registry.
func (e *Engine) Methodology() *methodology.Registry { return e.registry }

// admissibilityHook adapts the registry's compiled predicates into the
// grader's admissibility extension. A predicate evaluation error fails
// closed: the item is excluded under the offending rule.
func admissibilityHook(reg *methodology.Registry) grader.AdmissibilityHook {
	preds := reg.Predicates()
	if len(preds) == 0 {
		return nil
	}
	return func(item contracts.EvidenceItem, tierID tiers.TierID, usage tiers.UsageContext) *contracts.ConflictInfo {
		usageVars, tierVars := methodology.Bindings(usage, tiers.Get(tierID))
		for _, p := range preds {
			hit, err := p.Eval(usageVars, tierVars)
			if err != nil {
				return &contracts.ConflictInfo{
					Rule:    p.Rule,
					Detail:  fmt.Sprintf("predicate evaluation failed closed: %v", err),
					TierID:  string(tierID),
					ClaimID: usage.ClaimID,
				}
			}
			if hit {
				return &contracts.ConflictInfo{
					Rule:    p.Rule,
					Detail:  fmt.Sprintf("methodology predicate %s bars this usage", p.Rule),
					TierID:  string(tierID),
					ClaimID: usage.ClaimID,
				}
			}
		}
		return nil
	}
}

// GradeRequest identifies one claim to grade, optionally carrying the
// inputs inline. Whatever the request leaves out, the engine fetches
// from its collaborators.
type GradeRequest struct {
	TenantID string
	ClaimID  string

	// Claim, when set, skips the claims service lookup.
	Claim *contracts.Claim

	// Items and Chain, when set, skip the repository lookups.
	Items []contracts.EvidenceItem
	Chain []contracts.TransmissionNode

	// Tiers maps evidence id to its classified reliability tier.
	Tiers map[string]tiers.TierID

	// Cutoff anchors the staleness horizon. Zero disables the check.
	Cutoff time.Time
}

func (r GradeRequest) claimID() string {
	if r.ClaimID != "" {
		return r.ClaimID
	}
	if r.Claim != nil {
		return r.Claim.ClaimID
	}
	return ""
}

// GradeSanadV2 grades one claim. It resolves the claim record,
// evidence set, and transmission chain, runs the grading pipeline
// under the active methodology, and delivers defects and audit events
// to the configured collaborators. Failures surface as errors; a
// fail-closed error means the claim is BLOCKED, never silently
// defaulted.
func (e *Engine) GradeSanadV2(ctx context.Context, req GradeRequest) (*contracts.SanadGradeResult, error) {
	ctx, finish := e.trackPass(ctx, "grade_sanad_v2", req.TenantID, req.claimID())

	claim, items, chain, err := e.resolve(ctx, req)
	if err != nil {
		e.blocked(ctx, req.TenantID, req.claimID(), err)
		finish(err)
		return nil, err
	}

	result, err := e.grader.Grade(grader.Inputs{
		Claim:       claim,
		Items:       items,
		Chain:       chain,
		Tiers:       req.Tiers,
		StaleBefore: e.registry.StaleBefore(req.Cutoff),
	})
	if err != nil {
		e.blocked(ctx, req.TenantID, claim.ClaimID, err)
		finish(err)
		return nil, err
	}

	e.deliver(ctx, req.TenantID, result)
	finish(nil)
	return result, nil
}

// resolve fills in whatever the request left out. Missing data is an
// error only when no collaborator can supply it; an empty evidence set
// is left for the grader to reject so the failure carries its typed
// fail-closed error.
func (e *Engine) resolve(ctx context.Context, req GradeRequest) (contracts.Claim, []contracts.EvidenceItem, []contracts.TransmissionNode, error) {
	var claim contracts.Claim
	switch {
	case req.Claim != nil:
		claim = *req.Claim
	case e.deps.Claims != nil:
		var err error
		claim, err = e.deps.Claims.Claim(ctx, req.TenantID, req.ClaimID)
		if err != nil {
			return contracts.Claim{}, nil, nil, fmt.Errorf("resolve claim %s: %w", req.ClaimID, err)
		}
	default:
		return contracts.Claim{}, nil, nil, fmt.Errorf("claim %s: no claim record supplied and no claims service configured", req.ClaimID)
	}
	if claim.ClaimID == "" {
		claim.ClaimID = req.ClaimID
	}

	items := req.Items
	if items == nil && e.deps.Evidence != nil {
		var err error
		items, err = e.deps.Evidence.EvidenceForClaim(ctx, req.TenantID, claim.ClaimID)
		if err != nil {
			return contracts.Claim{}, nil, nil, fmt.Errorf("resolve evidence for claim %s: %w", claim.ClaimID, err)
		}
	}

	chain := req.Chain
	if chain == nil && e.deps.Chains != nil {
		var err error
		chain, err = e.deps.Chains.ChainForClaim(ctx, req.TenantID, claim.ClaimID)
		if err != nil {
			return contracts.Claim{}, nil, nil, fmt.Errorf("resolve chain for claim %s: %w", claim.ClaimID, err)
		}
	}

	return claim, items, chain, nil
}

func (e *Engine) deliver(ctx context.Context, tenantID string, result *contracts.SanadGradeResult) {
	e.logger.InfoContext(ctx, "claim graded",
		"tenant_id", tenantID,
		"claim_id", result.ClaimID,
		"pass_id", result.PassID,
		"grade", string(result.Grade),
		"effective_grade", string(result.EffectiveGrade),
		"defects", len(result.Defects),
		"methodology_version", result.MethodologyVersion,
	)
	if e.deps.Telemetry != nil {
		e.deps.Telemetry.RecordDefects(ctx, len(result.Defects), observability.PassAttrs(result)...)
	}
	if e.deps.Defects != nil && len(result.Defects) > 0 {
		if err := e.deps.Defects.RecordDefects(ctx, tenantID, result.ClaimID, result.Defects); err != nil {
			e.logger.ErrorContext(ctx, "defect delivery failed",
				"claim_id", result.ClaimID, "error", err)
		}
	}
	if e.deps.Audit != nil {
		e.deps.Audit.Record(audit.GradedEvent(result))
	}
}

func (e *Engine) blocked(ctx context.Context, tenantID, subjectID string, err error) {
	e.logger.WarnContext(ctx, "grading blocked",
		"tenant_id", tenantID,
		"subject_id", subjectID,
		"fail_closed", contracts.IsFailClosed(err),
		"error", err,
	)
	if e.deps.Audit != nil {
		e.deps.Audit.Record(audit.BlockedEvent(tenantID, subjectID, err))
	}
}

// trackPass opens a telemetry span for one pass. The returned finish
// also counts the pass as graded or blocked.
func (e *Engine) trackPass(ctx context.Context, name, tenantID, subjectID string) (context.Context, func(error)) {
	if e.deps.Telemetry == nil {
		return ctx, func(error) {}
	}
	return e.deps.Telemetry.TrackPass(ctx, name, observability.ClaimAttrs(tenantID, "", subjectID)...)
}

// ChainRequest carries the inputs for chain construction.
type ChainRequest struct {
	TenantID string
	DealID   string
	ClaimID  string
	Items    []contracts.EvidenceItem
	Meta     sanadchain.ExtractionMetadata
}

// BuildSanadChain constructs the canonical transmission chain for a
// claim's evidence, persists it when a chain repository is configured,
// and audits the build. Construction fails closed on an empty evidence
// set.
func (e *Engine) BuildSanadChain(ctx context.Context, req ChainRequest) ([]contracts.TransmissionNode, error) {
	nodes, err := e.builder.Build(req.TenantID, req.DealID, req.ClaimID, req.Items, req.Meta)
	if err != nil {
		e.logger.WarnContext(ctx, "chain build failed",
			"claim_id", req.ClaimID, "error", err)
		return nil, err
	}

	if e.deps.Chains != nil {
		if err := e.deps.Chains.SaveChain(ctx, req.TenantID, req.ClaimID, nodes); err != nil {
			return nil, fmt.Errorf("save chain for claim %s: %w", req.ClaimID, err)
		}
	}

	if e.deps.Audit != nil {
		hash, err := canonicalize.CanonicalHash(nodes)
		if err != nil {
			e.logger.ErrorContext(ctx, "chain hash failed",
				"claim_id", req.ClaimID, "error", err)
		} else {
			e.deps.Audit.Record(audit.ChainEvent(req.TenantID, req.ClaimID, hash, len(nodes)))
		}
	}

	e.logger.InfoContext(ctx, "chain built",
		"claim_id", req.ClaimID, "nodes", len(nodes))
	return nodes, nil
}

// PropagateCalcGrade grades a derived metric from its input claims'
// grades. Input grades must be supplied by the caller; a calc never
// triggers regrading of its inputs.
func (e *Engine) PropagateCalcGrade(ctx context.Context, calc contracts.CalcSanad, inputs map[string]*contracts.SanadGradeResult) (*contracts.CalcGradeResult, error) {
	ctx, finish := e.trackPass(ctx, "propagate_calc_grade", calc.TenantID, calc.CalcID)

	result, err := e.propagator.Propagate(calc, inputs)
	if err != nil {
		e.blocked(ctx, calc.TenantID, calc.CalcID, err)
		finish(err)
		return nil, err
	}

	e.logger.InfoContext(ctx, "calc graded",
		"tenant_id", calc.TenantID,
		"calc_id", calc.CalcID,
		"grade", string(result.Grade),
		"weakest_input", result.WeakestInput,
		"defects", len(result.Defects),
	)
	if e.deps.Defects != nil && len(result.Defects) > 0 {
		if err := e.deps.Defects.RecordDefects(ctx, calc.TenantID, calc.CalcID, result.Defects); err != nil {
			e.logger.ErrorContext(ctx, "defect delivery failed",
				"calc_id", calc.CalcID, "error", err)
		}
	}
	if e.deps.Audit != nil {
		e.deps.Audit.Record(audit.CalcEvent(calc.TenantID, result))
	}

	finish(nil)
	return result, nil
}

// BatchStatus tags a batch entry's outcome.
type BatchStatus string

const (
	BatchGraded  BatchStatus = "GRADED"
	BatchBlocked BatchStatus = "BLOCKED"
)

// BatchEntry is the per-claim outcome of a batch pass. Blocked entries
// carry the error, graded entries the result.
type BatchEntry struct {
	ClaimID string                      `json:"claim_id"`
	Status  BatchStatus                 `json:"status"`
	Result  *contracts.SanadGradeResult `json:"result,omitempty"`
	Err     error                       `json:"-"`

	// Reason mirrors Err for serialized output.
	Reason string `json:"reason,omitempty"`
}

// GradeBatch grades independent claims with bounded fan-out. A claim
// that cannot be graded surfaces as BLOCKED in its own entry and never
// aborts its siblings. Entries come back in request order.
func (e *Engine) GradeBatch(ctx context.Context, reqs []GradeRequest) []BatchEntry {
	entries := make([]BatchEntry, len(reqs))
	sem := make(chan struct{}, e.maxParallel)
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req GradeRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := e.GradeSanadV2(ctx, req)
			if err != nil {
				entries[i] = BatchEntry{
					ClaimID: req.claimID(),
					Status:  BatchBlocked,
					Err:     err,
					Reason:  err.Error(),
				}
				return
			}
			entries[i] = BatchEntry{ClaimID: res.ClaimID, Status: BatchGraded, Result: res}
		}(i, req)
	}
	wg.Wait()
	return entries
}
