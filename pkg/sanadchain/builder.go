// Package sanadchain constructs and validates transmission chains. A
// chain records every custody step between a raw source and a graded
// claim; grading trusts nothing that cannot show its chain.
package sanadchain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Sanad-Labs/sanad/pkg/canonicalize"
	"github.com/Sanad-Labs/sanad/pkg/contracts"
)

// ExtractionMetadata describes the extraction pass behind a chain.
type ExtractionMetadata struct {
	ExtractorID string `json:"extractor_id"`
	ToolVersion string `json:"tool_version,omitempty"`
	// Deduped marks that a normalization pass merged duplicate spans;
	// it appends a NORMALIZE node to the chain.
	Deduped bool `json:"deduped"`
}

// Builder assembles canonical chains.
type Builder struct {
	clock func() time.Time
}

// NewBuilder creates a chain builder using the wall clock.
func NewBuilder() *Builder {
	return &Builder{clock: time.Now}
}

// WithClock overrides clock for testing.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// nodeStep separates successive node timestamps. Strict monotonicity
// holds by construction, not by later repair.
const nodeStep = time.Millisecond

// Build constructs the canonical INGEST -> EXTRACT -> [NORMALIZE]
// chain for a claim. It fails closed with a ChainBuildError when the
// evidence set is empty; a chain can never exist without an evidence
// anchor. The primary evidence id is taken from the first item.
func (b *Builder) Build(tenantID, dealID, claimID string, items []contracts.EvidenceItem, meta ExtractionMetadata) ([]contracts.TransmissionNode, error) {
	if len(items) == 0 {
		return nil, &contracts.ChainBuildError{
			ClaimID: claimID,
			Reason:  "empty evidence set",
		}
	}
	primary := items[0]

	base := b.clock().UTC()
	ingestActor := primary.IngestActorID
	if ingestActor == "" {
		ingestActor = meta.ExtractorID
	}

	ingestRef := primary.ContentHash
	if ingestRef == "" {
		ingestRef = canonicalize.HashBytes([]byte(primary.SourceSystem + "|" + primary.EvidenceID))
	}

	ingest := contracts.TransmissionNode{
		NodeID:     b.nodeID(tenantID, claimID, primary.EvidenceID, contracts.NodeIngest),
		NodeType:   contracts.NodeIngest,
		ActorID:    ingestActor,
		ActorType:  contracts.ActorSystem,
		Timestamp:  base,
		EvidenceID: primary.EvidenceID,
		OutputRefs: []string{ingestRef},
	}

	extractRef := canonicalize.HashBytes([]byte(ingestRef + "|extract|" + claimID))
	extract := contracts.TransmissionNode{
		NodeID:      b.nodeID(tenantID, claimID, primary.EvidenceID, contracts.NodeExtract),
		PrevNodeID:  ingest.NodeID,
		NodeType:    contracts.NodeExtract,
		ActorID:     meta.ExtractorID,
		ActorType:   contracts.ActorAgent,
		Timestamp:   base.Add(nodeStep),
		EvidenceID:  primary.EvidenceID,
		ToolVersion: meta.ToolVersion,
		InputRefs:   []string{ingestRef},
		OutputRefs:  []string{extractRef},
	}

	chain := []contracts.TransmissionNode{ingest, extract}

	if meta.Deduped {
		normalizeRef := canonicalize.HashBytes([]byte(extractRef + "|normalize|" + claimID))
		chain = append(chain, contracts.TransmissionNode{
			NodeID:      b.nodeID(tenantID, claimID, primary.EvidenceID, contracts.NodeNormalize),
			PrevNodeID:  extract.NodeID,
			NodeType:    contracts.NodeNormalize,
			ActorID:     meta.ExtractorID,
			ActorType:   contracts.ActorSystem,
			Timestamp:   base.Add(2 * nodeStep),
			EvidenceID:  primary.EvidenceID,
			ToolVersion: meta.ToolVersion,
			InputRefs:   []string{extractRef},
			OutputRefs:  []string{normalizeRef},
		})
	}
	return chain, nil
}

// nodeID derives a stable content-addressed node id. The same claim,
// evidence, and stage always produce the same id.
func (b *Builder) nodeID(tenantID, claimID, evidenceID string, stage contracts.NodeType) string {
	seed := fmt.Sprintf("%s|%s|%s|%s", tenantID, claimID, evidenceID, stage)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}
