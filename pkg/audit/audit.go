// Package audit records one event per grading pass. The Timeline is an
// in-memory, mutex-guarded sink for tests and the CLI demo; production
// deployments provide their own sink behind the engine's collaborator
// interface.
package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
)

// EventType categorizes audit events.
type EventType string

const (
	EventClaimGraded  EventType = "CLAIM_GRADED"
	EventClaimBlocked EventType = "CLAIM_BLOCKED"
	EventCalcGraded   EventType = "CALC_GRADED"
	EventChainBuilt   EventType = "CHAIN_BUILT"
)

// Event is one structured audit record. IDs are content-derived so
// identical passes audit identically.
type Event struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	Type               EventType `json:"type"`
	SubjectID          string    `json:"subject_id"`
	PassID             string    `json:"pass_id,omitempty"`
	Grade              string    `json:"grade,omitempty"`
	DefectCount        int       `json:"defect_count"`
	ExplanationHash    string    `json:"explanation_hash,omitempty"`
	MethodologyVersion string    `json:"methodology_version,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	RecordedAt         time.Time `json:"recorded_at"`
}

// eventID derives a UUIDv5 from the fields that identify the event.
func eventID(eventType EventType, subjectID, passID, hash string) string {
	seed := fmt.Sprintf("sanad/audit/%s/%s/%s/%s", eventType, subjectID, passID, hash)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// GradedEvent builds the audit record for a completed grading pass.
func GradedEvent(result *contracts.SanadGradeResult) Event {
	return Event{
		ID:                 eventID(EventClaimGraded, result.ClaimID, result.PassID, result.ExplanationHash),
		TenantID:           result.TenantID,
		Type:               EventClaimGraded,
		SubjectID:          result.ClaimID,
		PassID:             result.PassID,
		Grade:              string(result.Grade),
		DefectCount:        len(result.Defects),
		ExplanationHash:    result.ExplanationHash,
		MethodologyVersion: result.MethodologyVersion,
	}
}

// BlockedEvent builds the audit record for a claim that failed closed.
func BlockedEvent(tenantID, claimID string, reason error) Event {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return Event{
		ID:        eventID(EventClaimBlocked, claimID, "", msg),
		TenantID:  tenantID,
		Type:      EventClaimBlocked,
		SubjectID: claimID,
		Reason:    msg,
	}
}

// CalcEvent builds the audit record for a calc propagation pass.
func CalcEvent(tenantID string, result *contracts.CalcGradeResult) Event {
	return Event{
		ID:              eventID(EventCalcGraded, result.CalcID, "", result.ExplanationHash),
		TenantID:        tenantID,
		Type:            EventCalcGraded,
		SubjectID:       result.CalcID,
		Grade:           string(result.Grade),
		DefectCount:     len(result.Defects),
		ExplanationHash: result.ExplanationHash,
	}
}

// ChainEvent builds the audit record for a chain build.
func ChainEvent(tenantID, claimID, chainHash string, nodeCount int) Event {
	return Event{
		ID:              eventID(EventChainBuilt, claimID, "", chainHash),
		TenantID:        tenantID,
		Type:            EventChainBuilt,
		SubjectID:       claimID,
		DefectCount:     0,
		ExplanationHash: chainHash,
		Reason:          fmt.Sprintf("%d nodes", nodeCount),
	}
}

// Timeline collects events in memory. Safe for concurrent use.
type Timeline struct {
	mu     sync.Mutex
	clock  func() time.Time
	events []Event
}

// NewTimeline builds an empty timeline on the wall clock.
func NewTimeline() *Timeline {
	return &Timeline{clock: time.Now}
}

// WithClock overrides clock for testing.
func (t *Timeline) WithClock(clock func() time.Time) *Timeline {
	t.clock = clock
	return t
}

// Record stamps the event with the timeline clock and appends it.
func (t *Timeline) Record(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	event.RecordedAt = t.clock().UTC()
	t.events = append(t.events, event)
}

// Events returns a copy of all recorded events in insertion order.
func (t *Timeline) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// ForSubject returns events for one subject id, insertion order kept.
func (t *Timeline) ForSubject(subjectID string) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Event
	for _, e := range t.events {
		if e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the recorded event count.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// Export renders the timeline as JSON, events sorted by recording time
// then id for a stable byte form.
func (t *Timeline) Export() ([]byte, error) {
	events := t.Events()
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].RecordedAt.Equal(events[j].RecordedAt) {
			return events[i].RecordedAt.Before(events[j].RecordedAt)
		}
		return events[i].ID < events[j].ID
	})
	return json.MarshalIndent(events, "", "  ")
}
