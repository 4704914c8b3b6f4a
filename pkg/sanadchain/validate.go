package sanadchain

import (
	"sort"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/decimal"
)

// Validate applies the structural integrity rules a chain must satisfy
// before it may enter grading or persistence: unique node ids, exactly
// one root, an INGEST root, resolvable predecessor links, no cycles,
// and stage order never running backwards across a link. Violations
// return a ChainBuildError naming the claim and offending node.
//
// Timestamp monotonicity is deliberately not checked here: a supplied
// chain with impossible chronology is a grading-time defect finding,
// not a structural rejection.
func Validate(claimID string, nodes []contracts.TransmissionNode) error {
	if len(nodes) == 0 {
		return &contracts.ChainBuildError{ClaimID: claimID, Reason: "empty chain"}
	}

	byID := make(map[string]contracts.TransmissionNode, len(nodes))
	var roots []string
	for _, n := range nodes {
		if n.NodeID == "" {
			return &contracts.ChainBuildError{ClaimID: claimID, Reason: "node with empty id"}
		}
		if _, dup := byID[n.NodeID]; dup {
			return &contracts.ChainBuildError{ClaimID: claimID, NodeID: n.NodeID, Reason: "duplicate node id"}
		}
		if !n.NodeType.Valid() {
			return &contracts.ChainBuildError{ClaimID: claimID, NodeID: n.NodeID, Reason: "unknown node type " + string(n.NodeType)}
		}
		if err := scoreInRange(claimID, n.NodeID, "confidence", n.Confidence); err != nil {
			return err
		}
		if err := scoreInRange(claimID, n.NodeID, "dhabt_score", n.DhabtScore); err != nil {
			return err
		}
		byID[n.NodeID] = n
		if n.PrevNodeID == "" {
			roots = append(roots, n.NodeID)
		}
	}

	if len(roots) == 0 {
		return &contracts.ChainBuildError{ClaimID: claimID, Reason: "no root node"}
	}
	if len(roots) > 1 {
		sort.Strings(roots)
		return &contracts.ChainBuildError{ClaimID: claimID, NodeID: roots[1], Reason: "multiple root nodes"}
	}
	root := byID[roots[0]]
	if root.NodeType != contracts.NodeIngest {
		return &contracts.ChainBuildError{ClaimID: claimID, NodeID: root.NodeID, Reason: "root node is not INGEST"}
	}

	for _, n := range nodes {
		if n.PrevNodeID == "" {
			continue
		}
		prev, ok := byID[n.PrevNodeID]
		if !ok {
			return &contracts.ChainBuildError{ClaimID: claimID, NodeID: n.NodeID, Reason: "prev_node_id does not resolve"}
		}
		if n.NodeType.Stage() < prev.NodeType.Stage() {
			return &contracts.ChainBuildError{ClaimID: claimID, NodeID: n.NodeID, Reason: "stage runs backwards from " + string(prev.NodeType) + " to " + string(n.NodeType)}
		}
	}

	// Cycle scan: walk predecessor links from every node; a walk longer
	// than the node count has looped.
	for _, n := range nodes {
		cur, hops := n, 0
		for cur.PrevNodeID != "" {
			hops++
			if hops > len(nodes) {
				return &contracts.ChainBuildError{ClaimID: claimID, NodeID: n.NodeID, Reason: "cycle in predecessor links"}
			}
			cur = byID[cur.PrevNodeID]
		}
	}
	return nil
}

// scoreInRange checks an optional node score field: empty passes,
// anything else must parse as a decimal in [0,1].
func scoreInRange(claimID, nodeID, field, raw string) error {
	if raw == "" {
		return nil
	}
	v, err := decimal.Parse(raw)
	if err != nil {
		return &contracts.ChainBuildError{ClaimID: claimID, NodeID: nodeID, Reason: field + " is not a decimal: " + raw}
	}
	if v.Sign() < 0 || v.Cmp(decimal.One()) > 0 {
		return &contracts.ChainBuildError{ClaimID: claimID, NodeID: nodeID, Reason: field + " outside [0,1]: " + raw}
	}
	return nil
}

// Ordered returns the chain's nodes sorted stably for deterministic
// traversal: by timestamp, then stage, then node id.
func Ordered(nodes []contracts.TransmissionNode) []contracts.TransmissionNode {
	out := make([]contracts.TransmissionNode, len(nodes))
	copy(out, nodes)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		si, sj := 99, 99
		if out[i].NodeType.Valid() {
			si = out[i].NodeType.Stage()
		}
		if out[j].NodeType.Valid() {
			sj = out[j].NodeType.Stage()
		}
		if si != sj {
			return si < sj
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

// FindReconcile returns the RECONCILE nodes in the chain, in
// deterministic order.
func FindReconcile(nodes []contracts.TransmissionNode) []contracts.TransmissionNode {
	var out []contracts.TransmissionNode
	for _, n := range Ordered(nodes) {
		if n.NodeType == contracts.NodeReconcile {
			out = append(out, n)
		}
	}
	return out
}
