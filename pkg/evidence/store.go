// Package evidence provides the in-memory evidence and chain stores
// backing the engine's resolution path. Items are keyed by tenant and
// claim, verification-status transitions are enforced fail-closed, and
// chains persist alongside the items they describe. Production
// deployments substitute their own repositories; these stores serve
// the CLI and tests.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
)

// ErrNotFound marks a lookup that matched nothing.
var ErrNotFound = errors.New("not found")

type tenantKey struct {
	tenantID string
	id       string
}

// Store holds evidence items per tenant and indexes them by claim.
// Items are append-only: a re-put replaces the record in place, and
// only the verification status moves afterwards. Safe for concurrent
// use.
type Store struct {
	mu      sync.RWMutex
	items   map[tenantKey]contracts.EvidenceItem
	byClaim map[tenantKey][]string
	claimOf map[tenantKey]string
}

// NewStore creates an empty evidence store.
func NewStore() *Store {
	return &Store{
		items:   make(map[tenantKey]contracts.EvidenceItem),
		byClaim: make(map[tenantKey][]string),
		claimOf: make(map[tenantKey]string),
	}
}

// Put records item as evidence for claimID under the item's tenant.
// A blank verification status defaults to UNVERIFIED. Re-putting an
// evidence id replaces the record but keeps its position in the
// claim's evidence order.
func (s *Store) Put(claimID string, item contracts.EvidenceItem) error {
	if item.EvidenceID == "" {
		return fmt.Errorf("evidence item for claim %s missing evidence_id", claimID)
	}
	if claimID == "" {
		return fmt.Errorf("evidence %s: empty claim id", item.EvidenceID)
	}
	if !item.SourceGrade.Valid() {
		return &contracts.UnknownCodeError{Kind: "grade", Code: string(item.SourceGrade)}
	}
	if item.VerificationStatus == "" {
		item.VerificationStatus = contracts.VerificationUnverified
	} else if _, err := contracts.ParseVerificationStatus(string(item.VerificationStatus)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenantKey{item.TenantID, item.EvidenceID}
	if owner, existed := s.claimOf[key]; existed {
		if owner != claimID {
			return fmt.Errorf("evidence %s already recorded for claim %s", item.EvidenceID, owner)
		}
		s.items[key] = item
		return nil
	}
	s.items[key] = item
	s.claimOf[key] = claimID
	claimKey := tenantKey{item.TenantID, claimID}
	s.byClaim[claimKey] = append(s.byClaim[claimKey], item.EvidenceID)
	return nil
}

// Get returns the stored item.
func (s *Store) Get(tenantID, evidenceID string) (contracts.EvidenceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[tenantKey{tenantID, evidenceID}]
	if !ok {
		return contracts.EvidenceItem{}, fmt.Errorf("evidence %s: %w", evidenceID, ErrNotFound)
	}
	return item, nil
}

// Transition moves the item's verification status. Disallowed moves
// fail closed; CONTRADICTED is terminal. Returns the updated snapshot.
func (s *Store) Transition(tenantID, evidenceID string, next contracts.VerificationStatus) (contracts.EvidenceItem, error) {
	if _, err := contracts.ParseVerificationStatus(string(next)); err != nil {
		return contracts.EvidenceItem{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenantKey{tenantID, evidenceID}
	item, ok := s.items[key]
	if !ok {
		return contracts.EvidenceItem{}, fmt.Errorf("evidence %s: %w", evidenceID, ErrNotFound)
	}
	if !item.VerificationStatus.CanTransitionTo(next) {
		return contracts.EvidenceItem{}, fmt.Errorf("evidence %s: verification cannot move %s to %s",
			evidenceID, item.VerificationStatus, next)
	}
	item.VerificationStatus = next
	s.items[key] = item
	return item, nil
}

// EvidenceForClaim returns the claim's evidence in recorded order. An
// unknown claim yields an empty set, which the grader turns into its
// fail-closed empty-evidence error.
func (s *Store) EvidenceForClaim(ctx context.Context, tenantID, claimID string) ([]contracts.EvidenceItem, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byClaim[tenantKey{tenantID, claimID}]
	if len(ids) == 0 {
		return nil, nil
	}
	items := make([]contracts.EvidenceItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, s.items[tenantKey{tenantID, id}])
	}
	return items, nil
}

// ChainStore holds transmission chains per tenant and claim. Safe for
// concurrent use.
type ChainStore struct {
	mu     sync.RWMutex
	chains map[tenantKey][]contracts.TransmissionNode
}

// NewChainStore creates an empty chain store.
func NewChainStore() *ChainStore {
	return &ChainStore{chains: make(map[tenantKey][]contracts.TransmissionNode)}
}

// SaveChain records the claim's chain, replacing any previous one. The
// nodes are copied; later mutation of the caller's slice does not
// reach the store.
func (c *ChainStore) SaveChain(ctx context.Context, tenantID, claimID string, nodes []contracts.TransmissionNode) error {
	_ = ctx
	if claimID == "" {
		return fmt.Errorf("save chain: empty claim id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make([]contracts.TransmissionNode, len(nodes))
	copy(copied, nodes)
	c.chains[tenantKey{tenantID, claimID}] = copied
	return nil
}

// ChainForClaim returns a copy of the claim's chain, or nil when none
// was recorded.
func (c *ChainStore) ChainForClaim(ctx context.Context, tenantID, claimID string) ([]contracts.TransmissionNode, error) {
	_ = ctx

	c.mu.RLock()
	defer c.mu.RUnlock()

	nodes, ok := c.chains[tenantKey{tenantID, claimID}]
	if !ok {
		return nil, nil
	}
	copied := make([]contracts.TransmissionNode, len(nodes))
	copy(copied, nodes)
	return copied, nil
}
