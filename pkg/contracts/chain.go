package contracts

import "time"

// NodeType is the stage a transmission node represents. INGEST is always
// the root; EXTRACT follows; the remaining stages are optional later
// steps. The builder only ever emits INGEST, EXTRACT, and NORMALIZE;
// the rest arrive on chains supplied by collaborators.
type NodeType string

const (
	NodeIngest      NodeType = "INGEST"
	NodeExtract     NodeType = "EXTRACT"
	NodeNormalize   NodeType = "NORMALIZE"
	NodeReconcile   NodeType = "RECONCILE"
	NodeCalculate   NodeType = "CALCULATE"
	NodeInfer       NodeType = "INFER"
	NodeHumanVerify NodeType = "HUMAN_VERIFY"
	NodeExport      NodeType = "EXPORT"
)

// ParseNodeType validates a node type string.
func ParseNodeType(s string) (NodeType, error) {
	n := NodeType(s)
	if !n.Valid() {
		return "", &UnknownCodeError{Kind: "node_type", Code: s}
	}
	return n, nil
}

// stageOrder fixes the permitted ordering of stages along a chain. A
// child's stage must never precede its parent's.
var stageOrder = map[NodeType]int{
	NodeIngest:      0,
	NodeExtract:     1,
	NodeNormalize:   2,
	NodeReconcile:   3,
	NodeCalculate:   4,
	NodeInfer:       5,
	NodeHumanVerify: 6,
	NodeExport:      7,
}

// Stage returns the ordinal position of the node type in the pipeline.
// Panics on an invalid type; parse at the boundary.
func (n NodeType) Stage() int {
	ord, ok := stageOrder[n]
	if !ok {
		panic("contracts: invalid node type " + string(n))
	}
	return ord
}

// Valid reports whether n is a known node type.
func (n NodeType) Valid() bool {
	_, ok := stageOrder[n]
	return ok
}

// ActorType classifies who performed a transmission step.
type ActorType string

const (
	ActorSystem ActorType = "SYSTEM"
	ActorHuman  ActorType = "HUMAN"
	ActorAgent  ActorType = "AGENT"
)

// ParseActorType validates an actor type string.
func ParseActorType(s string) (ActorType, error) {
	switch a := ActorType(s); a {
	case ActorSystem, ActorHuman, ActorAgent:
		return a, nil
	default:
		return "", &UnknownCodeError{Kind: "actor_type", Code: s}
	}
}

// TransmissionNode is one custody step in an evidence item's chain from
// raw source to graded claim. Nodes form a sequence rooted at a single
// INGEST node; timestamps are strictly monotonic along every path.
type TransmissionNode struct {
	NodeID     string    `json:"node_id"`
	PrevNodeID string    `json:"prev_node_id,omitempty"`
	NodeType   NodeType  `json:"node_type"`
	ActorID    string    `json:"actor_id"`
	ActorType  ActorType `json:"actor_type"`
	Timestamp  time.Time `json:"timestamp"`

	// EvidenceID ties the node to the evidence item whose custody it
	// records.
	EvidenceID string `json:"evidence_id"`

	// ToolVersion records the extractor/normalizer build when the actor
	// is a SYSTEM or AGENT.
	ToolVersion string `json:"tool_version,omitempty"`

	// InputRefs are the content refs this step consumed; OutputRefs are
	// the refs it produced. A child whose inputs include none of its
	// ancestors' outputs signals grafting.
	InputRefs  []string `json:"input_refs,omitempty"`
	OutputRefs []string `json:"output_refs,omitempty"`

	// Confidence and DhabtScore are optional decimal strings in [0,1]
	// recorded by the producing actor. Non-gating; validated for range
	// when present.
	Confidence string `json:"confidence,omitempty"`
	DhabtScore string `json:"dhabt_score,omitempty"`

	// Note carries a free-text annotation, used by RECONCILE nodes to
	// name what was reconciled.
	Note string `json:"note,omitempty"`
}

// ReconcileCause values carried in a RECONCILE node's Note field that
// detectors recognize mechanically.
const (
	ReconcileUnitDifference = "unit_difference"
	ReconcileTimeWindow     = "time_window_difference"
	ReconcileVersionUpdate  = "version_update"
)
