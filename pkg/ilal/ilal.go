// Package ilal detects hidden defects in a claim's transmission chain
// and evidence history. Each check is independent, examines a disjoint
// failure mode, and returns at most one finding; DetectAll returns
// their union. Findings are data, not errors: severity and cure come
// from the fixed defect matrices.
package ilal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/sanadchain"
)

// DetectAll runs the four canonical chain checks and returns the union
// of their findings. Detector order is fixed so the union is
// byte-stable; the checks themselves are order-insensitive.
func DetectAll(items []contracts.EvidenceItem, chain []contracts.TransmissionNode) []contracts.DefectResult {
	var out []contracts.DefectResult
	if d := DetectChainBreak(chain); d != nil {
		out = append(out, *d)
	}
	if d := DetectChronology(chain); d != nil {
		out = append(out, *d)
	}
	if d := DetectGrafting(chain); d != nil {
		out = append(out, *d)
	}
	if d := DetectVersionDrift(items, chain); d != nil {
		out = append(out, *d)
	}
	return out
}

// DetectChainBreak finds an unresolvable predecessor link or a root
// that is not INGEST.
func DetectChainBreak(chain []contracts.TransmissionNode) *contracts.DefectResult {
	if len(chain) == 0 {
		return nil
	}
	byID := make(map[string]bool, len(chain))
	for _, n := range chain {
		byID[n.NodeID] = true
	}
	for _, n := range sanadchain.Ordered(chain) {
		if n.PrevNodeID == "" {
			if n.NodeType != contracts.NodeIngest {
				d := contracts.NewDefect(contracts.DefectChainBreak,
					fmt.Sprintf("root node %s is %s, not INGEST", n.NodeID, n.NodeType))
				d.NodeID = n.NodeID
				return &d
			}
			continue
		}
		if !byID[n.PrevNodeID] {
			d := contracts.NewDefect(contracts.DefectChainBreak,
				fmt.Sprintf("node %s references missing predecessor %s", n.NodeID, n.PrevNodeID))
			d.NodeID = n.NodeID
			return &d
		}
	}
	return nil
}

// DetectChronology finds a node whose timestamp is not strictly later
// than its predecessor's.
func DetectChronology(chain []contracts.TransmissionNode) *contracts.DefectResult {
	byID := make(map[string]contracts.TransmissionNode, len(chain))
	for _, n := range chain {
		byID[n.NodeID] = n
	}
	for _, n := range sanadchain.Ordered(chain) {
		if n.PrevNodeID == "" {
			continue
		}
		prev, ok := byID[n.PrevNodeID]
		if !ok {
			// Unresolvable links are the chain-break check's finding.
			continue
		}
		if !n.Timestamp.After(prev.Timestamp) {
			d := contracts.NewDefect(contracts.DefectChronologyImpossible,
				fmt.Sprintf("node %s at %s does not follow predecessor %s at %s",
					n.NodeID, n.Timestamp.UTC().Format(time.RFC3339Nano),
					prev.NodeID, prev.Timestamp.UTC().Format(time.RFC3339Nano)))
			d.NodeID = n.NodeID
			return &d
		}
	}
	return nil
}

// DetectGrafting finds content teleportation: a mid-chain node whose
// output has no lineage. Two shapes count: a non-root node producing
// output with no inputs at all, and a node none of whose inputs appear
// among its ancestors' outputs or the chain's anchored evidence ids.
func DetectGrafting(chain []contracts.TransmissionNode) *contracts.DefectResult {
	byID := make(map[string]contracts.TransmissionNode, len(chain))
	anchored := make(map[string]bool)
	for _, n := range chain {
		byID[n.NodeID] = n
		if n.EvidenceID != "" {
			anchored[n.EvidenceID] = true
		}
	}
	for _, n := range sanadchain.Ordered(chain) {
		if n.PrevNodeID == "" || len(n.OutputRefs) == 0 {
			continue
		}
		if _, ok := byID[n.PrevNodeID]; !ok {
			continue
		}
		if len(n.InputRefs) == 0 {
			d := contracts.NewDefect(contracts.DefectChainGrafting,
				fmt.Sprintf("node %s introduces output %s with no inputs", n.NodeID, strings.Join(n.OutputRefs, ",")))
			d.NodeID = n.NodeID
			return &d
		}
		allowed := make(map[string]bool, len(chain))
		for ref := range anchored {
			allowed[ref] = true
		}
		cur, hops := n, 0
		for cur.PrevNodeID != "" && hops <= len(chain) {
			prev, ok := byID[cur.PrevNodeID]
			if !ok {
				break
			}
			for _, ref := range prev.OutputRefs {
				allowed[ref] = true
			}
			cur, hops = prev, hops+1
		}
		linked := false
		for _, ref := range n.InputRefs {
			if allowed[ref] {
				linked = true
				break
			}
		}
		if !linked {
			d := contracts.NewDefect(contracts.DefectChainGrafting,
				fmt.Sprintf("node %s inputs have no lineage to ancestor outputs or anchored evidence", n.NodeID))
			d.NodeID = n.NodeID
			return &d
		}
	}
	return nil
}

// DetectVersionDrift finds evidence items anchored to the same
// underlying source but carrying different version labels or content
// hashes. Items share a source when they share a non-empty upstream
// origin or a non-empty source span. A RECONCILE node whose inputs
// reference both diverging items documents the revision and suppresses
// the finding. When both labels parse as semver the finding records the
// drift direction.
func DetectVersionDrift(items []contracts.EvidenceItem, chain []contracts.TransmissionNode) *contracts.DefectResult {
	byID := make(map[string]contracts.EvidenceItem, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		byID[item.EvidenceID] = item
		ids = append(ids, item.EvidenceID)
	}
	sort.Strings(ids)

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := byID[ids[i]], byID[ids[j]]
			if !sharesSource(a, b) {
				continue
			}
			diverges := (a.VersionLabel != "" && b.VersionLabel != "" && a.VersionLabel != b.VersionLabel) ||
				(a.ContentHash != "" && b.ContentHash != "" && a.ContentHash != b.ContentHash)
			if !diverges {
				continue
			}
			if reconciledPair(chain, a.EvidenceID, b.EvidenceID) {
				continue
			}
			detail := fmt.Sprintf("items %s,%s share a source with diverging versions and no documented update",
				a.EvidenceID, b.EvidenceID)
			dir := driftDirection(a.VersionLabel, b.VersionLabel, a.ContentHash, b.ContentHash)
			if dir != "" {
				detail += " (" + dir + ")"
			}
			d := contracts.NewDefect(contracts.DefectVersionDrift, detail)
			d.EvidenceID = a.EvidenceID
			if dir != "" {
				d.Metadata = map[string]string{"direction": dir}
			}
			return &d
		}
	}
	return nil
}

func sharesSource(a, b contracts.EvidenceItem) bool {
	if a.UpstreamOriginID != "" && a.UpstreamOriginID == b.UpstreamOriginID {
		return true
	}
	if a.SourceSpanID != "" && a.SourceSpanID == b.SourceSpanID {
		return true
	}
	return false
}

// reconciledPair reports whether a RECONCILE node references both
// evidence ids in its inputs.
func reconciledPair(chain []contracts.TransmissionNode, idA, idB string) bool {
	for _, n := range chain {
		if n.NodeType != contracts.NodeReconcile {
			continue
		}
		if contains(n.InputRefs, idA) && contains(n.InputRefs, idB) {
			return true
		}
	}
	return false
}

// driftDirection classifies the drift when both labels parse as
// semver: upgrade, downgrade, or rebuild (same version, new content).
func driftDirection(labelA, labelB, hashA, hashB string) string {
	va, errA := semver.NewVersion(labelA)
	vb, errB := semver.NewVersion(labelB)
	if errA != nil || errB != nil {
		return ""
	}
	switch {
	case va.LessThan(vb):
		return "upgrade"
	case vb.LessThan(va):
		return "downgrade"
	case hashA != "" && hashB != "" && hashA != hashB:
		return "rebuild"
	default:
		return ""
	}
}

// DetectCircularity finds evidence whose upstream origin is the claim
// it supports. A claim corroborated by its own output is unsupported
// however many copies exist.
func DetectCircularity(claimID string, items []contracts.EvidenceItem) *contracts.DefectResult {
	sorted := make([]contracts.EvidenceItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EvidenceID < sorted[j].EvidenceID })
	for _, item := range sorted {
		if item.UpstreamOriginID != "" && item.UpstreamOriginID == claimID {
			d := contracts.NewDefect(contracts.DefectCircularity,
				fmt.Sprintf("item %s originates from claim %s itself", item.EvidenceID, claimID))
			d.EvidenceID = item.EvidenceID
			return &d
		}
	}
	return nil
}

// DetectStaleness finds evidence retrieved before the caller-supplied
// cutoff. The cutoff is an input, never a wall-clock read, so the
// finding is reproducible.
func DetectStaleness(items []contracts.EvidenceItem, staleBefore time.Time) *contracts.DefectResult {
	if staleBefore.IsZero() {
		return nil
	}
	var stale []string
	for _, item := range items {
		if item.RetrievalTimestamp.Before(staleBefore) {
			stale = append(stale, item.EvidenceID)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	sort.Strings(stale)
	d := contracts.NewDefect(contracts.DefectStaleness,
		fmt.Sprintf("items %s retrieved before cutoff %s",
			strings.Join(stale, ","), staleBefore.UTC().Format(time.RFC3339)))
	d.EvidenceID = stale[0]
	return &d
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
