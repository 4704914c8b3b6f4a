package sanadchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
)

var buildClock = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testBuilder() *Builder {
	return NewBuilder().WithClock(func() time.Time { return buildClock })
}

func anchorItems() []contracts.EvidenceItem {
	return []contracts.EvidenceItem{
		{
			EvidenceID:    "ev-1",
			SourceSystem:  "netsuite",
			ContentHash:   "abc123",
			IngestActorID: "etl-1",
		},
		{EvidenceID: "ev-2", SourceSystem: "stripe"},
	}
}

func TestBuildCanonicalChain(t *testing.T) {
	chain, err := testBuilder().Build("t1", "d1", "c1", anchorItems(), ExtractionMetadata{
		ExtractorID: "extractor-2",
		ToolVersion: "1.4.0",
	})
	require.NoError(t, err)
	require.Len(t, chain, 2, "no NORMALIZE without dedupe")

	ingest, extract := chain[0], chain[1]
	assert.Equal(t, contracts.NodeIngest, ingest.NodeType)
	assert.Empty(t, ingest.PrevNodeID)
	assert.Equal(t, "ev-1", ingest.EvidenceID, "primary evidence is the first item")
	assert.Equal(t, "etl-1", ingest.ActorID)
	assert.Equal(t, []string{"abc123"}, ingest.OutputRefs)

	assert.Equal(t, contracts.NodeExtract, extract.NodeType)
	assert.Equal(t, contracts.ActorAgent, extract.ActorType)
	assert.Equal(t, ingest.NodeID, extract.PrevNodeID)
	assert.Equal(t, []string{"abc123"}, extract.InputRefs)
	assert.NotEmpty(t, extract.OutputRefs)
	assert.True(t, extract.Timestamp.After(ingest.Timestamp), "monotonic by construction")

	require.NoError(t, Validate("c1", chain))
}

func TestBuildAppendsNormalizeWhenDeduped(t *testing.T) {
	chain, err := testBuilder().Build("t1", "d1", "c1", anchorItems(), ExtractionMetadata{
		ExtractorID: "extractor-2",
		Deduped:     true,
	})
	require.NoError(t, err)
	require.Len(t, chain, 3)

	normalize := chain[2]
	assert.Equal(t, contracts.NodeNormalize, normalize.NodeType)
	assert.Equal(t, chain[1].NodeID, normalize.PrevNodeID)
	assert.Equal(t, chain[1].OutputRefs, normalize.InputRefs)
	assert.True(t, normalize.Timestamp.After(chain[1].Timestamp))

	require.NoError(t, Validate("c1", chain))
}

func TestBuildFailsClosedOnEmptyEvidence(t *testing.T) {
	_, err := testBuilder().Build("t1", "d1", "c1", nil, ExtractionMetadata{ExtractorID: "x"})
	require.Error(t, err)
	var chainErr *contracts.ChainBuildError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, "c1", chainErr.ClaimID)
}

func TestBuildNodeIDsAreStable(t *testing.T) {
	b := testBuilder()
	first, err := b.Build("t1", "d1", "c1", anchorItems(), ExtractionMetadata{ExtractorID: "x"})
	require.NoError(t, err)
	second, err := b.Build("t1", "d1", "c1", anchorItems(), ExtractionMetadata{ExtractorID: "x"})
	require.NoError(t, err)
	assert.Equal(t, first, second, "same inputs and clock reproduce the same chain")

	other, err := b.Build("t1", "d1", "c2", anchorItems(), ExtractionMetadata{ExtractorID: "x"})
	require.NoError(t, err)
	assert.NotEqual(t, first[0].NodeID, other[0].NodeID, "ids are claim scoped")
}

func TestBuildSynthesizesIngestRefWhenHashMissing(t *testing.T) {
	items := []contracts.EvidenceItem{{EvidenceID: "ev-9", SourceSystem: "stripe"}}
	chain, err := testBuilder().Build("t1", "d1", "c1", items, ExtractionMetadata{ExtractorID: "x"})
	require.NoError(t, err)
	require.Len(t, chain[0].OutputRefs, 1)
	assert.Len(t, chain[0].OutputRefs[0], 64, "synthesized ref is a sha-256 hex digest")
}
