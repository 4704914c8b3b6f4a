package contracts

import (
	"errors"
	"fmt"
)

// The engine fails closed: a claim with no admissible evidence, an
// unparseable code, or a broken transmission chain yields a typed error,
// never a silent default grade.

// EmptyEvidenceError is returned when a grading operation receives a
// claim with no evidence set, or a set reduced to nothing admissible.
type EmptyEvidenceError struct {
	ClaimID string
	Reason  string
}

func (e *EmptyEvidenceError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("claim %s: no evidence to grade", e.ClaimID)
	}
	return fmt.Sprintf("claim %s: no evidence to grade: %s", e.ClaimID, e.Reason)
}

// UnknownCodeError is returned when a string fails to parse into one of
// the closed enumerations (grades, tiers, defect codes, statuses).
type UnknownCodeError struct {
	Kind string
	Code string
}

func (e *UnknownCodeError) Error() string {
	return fmt.Sprintf("unknown %s code %q", e.Kind, e.Code)
}

// ChainBuildError is returned when a transmission chain cannot be
// assembled into a valid form: cycles, multiple roots, missing nodes,
// or a non-INGEST root.
type ChainBuildError struct {
	ClaimID string
	NodeID  string
	Reason  string
}

func (e *ChainBuildError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("claim %s: chain build failed: %s", e.ClaimID, e.Reason)
	}
	return fmt.Sprintf("claim %s: chain build failed at node %s: %s", e.ClaimID, e.NodeID, e.Reason)
}

// UngradedInputError is returned by calculation grading when an input
// claim named by the formula has no grade on record.
type UngradedInputError struct {
	CalcID  string
	ClaimID string
}

func (e *UngradedInputError) Error() string {
	return fmt.Sprintf("calc %s: input claim %s has no recorded grade", e.CalcID, e.ClaimID)
}

// InadmissibleEvidenceError is returned when every supplied item fell to
// an inadmissibility rule, leaving nothing to grade.
type InadmissibleEvidenceError struct {
	ClaimID string
	Reasons []string
}

func (e *InadmissibleEvidenceError) Error() string {
	return fmt.Sprintf("claim %s: all %d evidence items inadmissible", e.ClaimID, len(e.Reasons))
}

// ConflictInfo describes why a tier admissibility check rejected an
// item. A nil ConflictInfo means the item is admissible.
type ConflictInfo struct {
	Rule    string `json:"rule"`
	Detail  string `json:"detail"`
	TierID  string `json:"tier_id"`
	ClaimID string `json:"claim_id,omitempty"`
}

// IsFailClosed reports whether err is one of the typed fail-closed
// grading errors, as opposed to an infrastructure failure. Errors from
// other packages participate by implementing FailClosed() bool.
func IsFailClosed(err error) bool {
	var empty *EmptyEvidenceError
	var unknown *UnknownCodeError
	var chain *ChainBuildError
	var ungraded *UngradedInputError
	var inadmissible *InadmissibleEvidenceError
	if errors.As(err, &empty) ||
		errors.As(err, &unknown) ||
		errors.As(err, &chain) ||
		errors.As(err, &ungraded) ||
		errors.As(err, &inadmissible) {
		return true
	}
	var marked interface{ FailClosed() bool }
	return errors.As(err, &marked) && marked.FailClosed()
}
