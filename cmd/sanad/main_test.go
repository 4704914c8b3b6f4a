package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/engine"
	"github.com/Sanad-Labs/sanad/pkg/grader"
)

func neutralEnv(t *testing.T) {
	t.Setenv("SANAD_STRICT", "false")
	t.Setenv("SANAD_METHODOLOGY_PACK", "")
	t.Setenv("SANAD_LOG_LEVEL", "ERROR")
}

func writeDoc(t *testing.T, name string, doc any) string {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func tripleItems(grade contracts.SanadGrade) []contracts.EvidenceItem {
	return []contracts.EvidenceItem{
		{
			EvidenceID:         "ev-1",
			SourceSystem:       "netsuite",
			RetrievalTimestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
			VerificationStatus: contracts.VerificationVerified,
			SourceGrade:        grade,
		},
		{
			EvidenceID:         "ev-2",
			SourceSystem:       "salesforce",
			RetrievalTimestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
			VerificationStatus: contracts.VerificationVerified,
			SourceGrade:        grade,
		},
		{
			EvidenceID:         "ev-3",
			SourceSystem:       "sharepoint",
			RetrievalTimestamp: time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
			VerificationStatus: contracts.VerificationVerified,
			SourceGrade:        grade,
		},
	}
}

func singleClaimDoc() gradeDoc {
	return gradeDoc{
		TenantID: "tenant-1",
		Claim: &contracts.Claim{
			ClaimID:  "claim-1",
			TenantID: "tenant-1",
			DealID:   "deal-1",
			Text:     "ARR for FY2024",
			Material: contracts.MaterialityMaterial,
		},
		Items: tripleItems(contracts.GradeB),
	}
}

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stdout.String(), "USAGE")
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "frobnicate"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Unknown command")
}

func TestVersionCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "version"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), grader.EngineVersion)
}

func TestGradeCommandSingleClaim(t *testing.T) {
	neutralEnv(t)
	path := writeDoc(t, "grade.json", singleClaimDoc())

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "grade", "--input", path}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	var entries []engine.BatchEntry
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, engine.BatchGraded, entries[0].Status)
	assert.Equal(t, contracts.GradeA, entries[0].Result.Grade)
}

func TestGradeCommandBatchIsolatesBlocked(t *testing.T) {
	neutralEnv(t)
	doc := gradeDoc{
		TenantID: "tenant-1",
		Claims: []gradeClaimDoc{
			{
				Claim: contracts.Claim{ClaimID: "claim-ok", Material: contracts.MaterialityMinor},
				Items: tripleItems(contracts.GradeB),
			},
			{
				Claim: contracts.Claim{ClaimID: "claim-empty", Material: contracts.MaterialityMinor},
			},
		},
	}
	path := writeDoc(t, "batch.json", doc)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "grade", "--input", path}, &stdout, &stderr)
	assert.Equal(t, 1, code, "a blocked claim fails the run")

	var entries []engine.BatchEntry
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, engine.BatchGraded, entries[0].Status)
	assert.Equal(t, engine.BatchBlocked, entries[1].Status)
	assert.Contains(t, entries[1].Reason, "no evidence")
}

func TestGradeCommandStrictMode(t *testing.T) {
	neutralEnv(t)
	doc := singleClaimDoc()
	doc.CutoffDate = "2026-06-01"
	path := writeDoc(t, "stale.json", doc)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "grade", "--input", path}, &stdout, &stderr)
	assert.Equal(t, 0, code, "defects alone do not fail a run")

	stdout.Reset()
	stderr.Reset()
	code = Run([]string{"sanad", "grade", "--input", path, "--strict"}, &stdout, &stderr)
	assert.Equal(t, 1, code, "strict mode fails runs with defects")
}

func TestGradeCommandSummaryOutput(t *testing.T) {
	neutralEnv(t)
	path := writeDoc(t, "grade.json", singleClaimDoc())

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "grade", "--input", path, "--output", "summary"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "claim-1")
	assert.Contains(t, stdout.String(), "GRADED")
	assert.Contains(t, stdout.String(), "grade=A")
}

func TestGradeCommandWritesAuditTimeline(t *testing.T) {
	neutralEnv(t)
	path := writeDoc(t, "grade.json", singleClaimDoc())
	auditPath := filepath.Join(t.TempDir(), "audit.json")

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "grade", "--input", path, "--audit", auditPath}, &stdout, &stderr)
	require.Equal(t, 0, code)

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CLAIM_GRADED")
}

func TestGradeCommandRejectsBadPack(t *testing.T) {
	neutralEnv(t)
	inputPath := writeDoc(t, "grade.json", singleClaimDoc())
	packPath := filepath.Join(t.TempDir(), "pack.yaml")
	require.NoError(t, os.WriteFile(packPath, []byte("methodology:\n  name: NotAName\n  version: 1.0.0\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "grade", "--input", inputPath, "--pack", packPath}, &stdout, &stderr)
	assert.Equal(t, 1, code, "an invalid pack blocks the whole run")
	assert.Contains(t, stderr.String(), "methodology")
}

func TestGradeCommandAppliesPackPredicate(t *testing.T) {
	neutralEnv(t)
	doc := singleClaimDoc()
	doc.Claim.ICBound = true
	doc.Items = doc.Items[:2]
	doc.Tiers = map[string]string{
		"ev-1": "PRIMARY_AUDITED",
		"ev-2": "MANAGEMENT_REP",
	}
	inputPath := writeDoc(t, "grade.json", doc)

	pack := `
methodology:
  name: acme/deal-grading
  version: 1.1.0
  predicates:
    - rule: ic_management_rep
      expr: usage.ic_bound && tier.id == "MANAGEMENT_REP"
`
	packPath := filepath.Join(t.TempDir(), "pack.yaml")
	require.NoError(t, os.WriteFile(packPath, []byte(pack), 0o644))

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "grade", "--input", inputPath, "--pack", packPath}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	var entries []engine.BatchEntry
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "1.1.0", entries[0].Result.MethodologyVersion)
	assert.Equal(t, map[string]string{"ev-2": "ic_management_rep"}, entries[0].Result.InadmissibleEvidence)
}

func TestChainCommand(t *testing.T) {
	neutralEnv(t)
	doc := chainDoc{
		TenantID:    "tenant-1",
		DealID:      "deal-1",
		ClaimID:     "claim-1",
		Items:       tripleItems(contracts.GradeB),
		ExtractorID: "extractor-1",
		Deduped:     true,
	}
	path := writeDoc(t, "chain.json", doc)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "chain", "--input", path}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	var nodes []contracts.TransmissionNode
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &nodes))
	require.Len(t, nodes, 3, "INGEST, EXTRACT, NORMALIZE")
	assert.Equal(t, contracts.NodeIngest, nodes[0].NodeType)
}

func TestChainCommandEmptyEvidence(t *testing.T) {
	neutralEnv(t)
	path := writeDoc(t, "chain.json", chainDoc{TenantID: "tenant-1", ClaimID: "claim-1"})

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "chain", "--input", path}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "empty evidence set")
}

func TestChainVerifyCommand(t *testing.T) {
	neutralEnv(t)
	ingested := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	doc := chainDoc{
		TenantID: "tenant-1",
		ClaimID:  "claim-1",
		Chain: []contracts.TransmissionNode{
			{NodeID: "n-1", NodeType: contracts.NodeIngest, ActorID: "sys:connector",
				ActorType: contracts.ActorSystem, Timestamp: ingested, EvidenceID: "ev-1"},
			{NodeID: "n-2", PrevNodeID: "n-1", NodeType: contracts.NodeExtract, ActorID: "sys:extractor",
				ActorType: contracts.ActorSystem, Timestamp: ingested.Add(time.Minute), EvidenceID: "ev-1"},
		},
	}
	path := writeDoc(t, "chain.json", doc)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "chain", "--verify", "--input", path}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "Chain valid: 2 nodes")
}

func TestChainVerifyCommandRejectsDanglingLink(t *testing.T) {
	neutralEnv(t)
	doc := chainDoc{
		TenantID: "tenant-1",
		ClaimID:  "claim-1",
		Chain: []contracts.TransmissionNode{
			{NodeID: "n-1", NodeType: contracts.NodeIngest, ActorID: "sys:connector",
				ActorType: contracts.ActorSystem, Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), EvidenceID: "ev-1"},
			{NodeID: "n-2", PrevNodeID: "n-404", NodeType: contracts.NodeExtract, ActorID: "sys:extractor",
				ActorType: contracts.ActorSystem, Timestamp: time.Date(2025, 3, 1, 9, 1, 0, 0, time.UTC), EvidenceID: "ev-1"},
		},
	}
	path := writeDoc(t, "chain.json", doc)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "chain", "--verify", "--input", path}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "prev_node_id does not resolve")
}

func TestCalcCommand(t *testing.T) {
	neutralEnv(t)
	doc := calcDoc{
		Calc: contracts.CalcSanad{
			CalcID:        "calc-1",
			TenantID:      "tenant-1",
			FormulaID:     "net-revenue-retention",
			InputClaimIDs: []string{"claim-a", "claim-b"},
		},
		Inputs: map[string]*contracts.SanadGradeResult{
			"claim-a": {ClaimID: "claim-a", Grade: contracts.GradeA, EffectiveGrade: contracts.GradeA},
			"claim-b": {ClaimID: "claim-b", Grade: contracts.GradeC, EffectiveGrade: contracts.GradeC},
		},
	}
	path := writeDoc(t, "calc.json", doc)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "calc", "--input", path}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	var res contracts.CalcGradeResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, contracts.GradeC, res.Grade)
	assert.Equal(t, "claim-b", res.WeakestInput)
}

func TestExplainCommandVerifiesHash(t *testing.T) {
	neutralEnv(t)
	eng := engine.New(engine.Deps{})
	claim := contracts.Claim{ClaimID: "claim-1", Material: contracts.MaterialityMinor}
	res, err := eng.GradeSanadV2(context.Background(), engine.GradeRequest{
		TenantID: "tenant-1",
		Claim:    &claim,
		Items:    tripleItems(contracts.GradeB),
	})
	require.NoError(t, err)

	path := writeDoc(t, "result.json", res)
	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "explain", "--input", path}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "verified")

	// Tampering with any explanation breaks the hash.
	res.Explanations[0].Detail += " (edited)"
	tampered := writeDoc(t, "tampered.json", res)
	stdout.Reset()
	code = Run([]string{"sanad", "explain", "--input", tampered}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "MISMATCH")
}

func TestPackValidateCommand(t *testing.T) {
	valid := `
methodology:
  name: acme/deal-grading
  version: 1.2.0
  thresholds:
    deviation: "0.08"
`
	dir := t.TempDir()
	validPath := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(validPath, []byte(valid), 0o644))

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "pack", "validate", "--file", validPath}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "acme/deal-grading 1.2.0")

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("methodology:\n  name: acme/deal-grading\n  version: 2.0.0\n"), 0o644))
	stdout.Reset()
	stderr.Reset()
	code = Run([]string{"sanad", "pack", "validate", "--file", badPath}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "version compatibility")
}

func TestPackShowCommand(t *testing.T) {
	pack := `
methodology:
  name: acme/deal-grading
  version: 1.3.0
  tiers:
    MANAGEMENT_REP:
      weight: "0.45"
  thresholds:
    staleness_days: 270
`
	path := filepath.Join(t.TempDir(), "pack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pack), 0o644))

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sanad", "pack", "show", "--file", path, "--json"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	var result map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
	assert.Equal(t, true, result["valid"])
	assert.Equal(t, "1.3.0", result["version"])
	assert.Equal(t, float64(270), result["staleness_horizon_days"])
}
