// Package tree provides the dynamic decision tree that agents expand at
// runtime: hypotheses fan out into research paths, research feeds
// analysis and validation, and completed decision nodes are scored and
// selected by confidence-weighted path search.
package tree

import "time"

// NodeKind identifies the role a node plays in the reasoning process.
type NodeKind string

const (
	// KindRoot is the single entry node of a tree.
	KindRoot NodeKind = "root"
	// KindHypothesis is a candidate explanation or approach.
	KindHypothesis NodeKind = "hypothesis"
	// KindResearch is an information-gathering step under a hypothesis.
	KindResearch NodeKind = "research"
	// KindAnalysis interprets research output.
	KindAnalysis NodeKind = "analysis"
	// KindValidation checks an analysis against independent evidence.
	KindValidation NodeKind = "validation"
	// KindDecision is a terminal choice; best-path search targets these.
	KindDecision NodeKind = "decision"
	// KindAction is a concrete step taken after a decision.
	KindAction NodeKind = "action"
	// KindOutcome records the observed effect of an action.
	KindOutcome NodeKind = "outcome"
)

// Valid returns true if the kind is a known value.
func (k NodeKind) Valid() bool {
	switch k {
	case KindRoot, KindHypothesis, KindResearch, KindAnalysis,
		KindValidation, KindDecision, KindAction, KindOutcome:
		return true
	default:
		return false
	}
}

// NodeStatus represents the current state of a node.
type NodeStatus string

const (
	// StatusPending indicates the node has not been executed.
	StatusPending NodeStatus = "pending"
	// StatusInProgress indicates the node's executor is running.
	StatusInProgress NodeStatus = "in_progress"
	// StatusCompleted indicates the node executed successfully.
	StatusCompleted NodeStatus = "completed"
	// StatusFailed indicates the node's executor returned an error.
	StatusFailed NodeStatus = "failed"
	// StatusPruned indicates the node was removed by subtree pruning.
	// Pruned is terminal; no transition leaves it.
	StatusPruned NodeStatus = "pruned"
)

// Valid returns true if the status is a known value.
func (s NodeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusPruned:
		return true
	default:
		return false
	}
}

// defaultConfidence is assigned to new nodes until an executor result
// reports its own confidence.
const defaultConfidence = 0.5

// Node is a single reasoning step. Nodes are owned by their tree and
// are only reachable through tree methods; Node values returned by
// accessors are copies.
type Node struct {
	// ID is the unique identifier for this node.
	ID string `json:"id"`
	// Kind is the role this node plays in the reasoning process.
	Kind NodeKind `json:"kind"`
	// Content is the free-text label describing the step.
	Content string `json:"content"`
	// Payload carries opaque data handed to the node's executor.
	Payload map[string]any `json:"payload,omitempty"`
	// ParentID is the ID of the parent node; empty for the root.
	// It is a lookup key only, never an owning reference.
	ParentID string `json:"parent_id,omitempty"`
	// ChildIDs lists child node IDs in insertion order.
	ChildIDs []string `json:"child_ids,omitempty"`
	// Status is the current state of the node.
	Status NodeStatus `json:"status"`
	// Confidence is the 0.0-1.0 reliability estimate for this step.
	Confidence float64 `json:"confidence"`
	// Result holds the executor's output once the node has run.
	Result map[string]any `json:"result,omitempty"`
	// CreatedAt is when the node was added to the tree.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the node last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// clone returns a copy of the node safe to hand outside the tree.
// Maps and the child list are copied shallowly; payload and result
// values are treated as immutable by convention.
func (n *Node) clone() Node {
	out := *n
	out.ChildIDs = append([]string(nil), n.ChildIDs...)
	if n.Payload != nil {
		out.Payload = make(map[string]any, len(n.Payload))
		for k, v := range n.Payload {
			out.Payload[k] = v
		}
	}
	if n.Result != nil {
		out.Result = make(map[string]any, len(n.Result))
		for k, v := range n.Result {
			out.Result[k] = v
		}
	}
	return out
}
