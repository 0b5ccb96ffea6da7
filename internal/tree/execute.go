package tree

import (
	"context"
	"fmt"
	"sync"
)

// NoExecutorResult is returned by ExecuteNode when the node has no
// executor attached and the registry has no entry for its kind. It is
// a data value, not an error: callers that expand structural nodes
// (hypotheses, the root) execute them for uniformity and skip over
// this result.
func NoExecutorResult() map[string]any {
	return map[string]any{"status": "no_executor"}
}

// IsNoExecutorResult reports whether a result came from a node without
// an executor.
func IsNoExecutorResult(result map[string]any) bool {
	s, ok := result["status"].(string)
	return ok && s == "no_executor"
}

// Outcome is the result of executing one node in a batch. Exactly one
// of Result and Err is meaningful; a batch never aborts on a member
// failure.
type Outcome struct {
	// NodeID is the node this outcome belongs to.
	NodeID string
	// Result is the executor output on success.
	Result map[string]any
	// Err is the executor or structural error on failure.
	Err error
}

// ExecuteNode runs the node's executor with its payload. The node is
// marked InProgress for the duration of the call and Completed or
// Failed afterward. If the result carries a "confidence" field, the
// node adopts it. Nodes without an executor return NoExecutorResult and
// keep their status. A node executes at most once: calling again on a
// Completed node returns its stored result, and on a Failed node
// returns ErrNodeResolved.
//
// The tree lock is not held across the executor call, so ExecuteNode is
// safe to call concurrently for disjoint node IDs.
func (t *Tree) ExecuteNode(ctx context.Context, id string) (map[string]any, error) {
	t.mu.Lock()
	node, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("execute %s: %w", id, ErrUnknownNode)
	}
	if node.Status == StatusPruned {
		t.mu.Unlock()
		return nil, fmt.Errorf("execute %s: %w", id, ErrNodePruned)
	}
	// Completed and Failed are terminal for execution: a node runs at
	// most once. A repeated call returns the stored result rather than
	// re-entering InProgress.
	if node.Status == StatusCompleted {
		result := node.Result
		t.mu.Unlock()
		return result, nil
	}
	if node.Status == StatusFailed {
		t.mu.Unlock()
		return nil, fmt.Errorf("execute %s: %w", id, ErrNodeResolved)
	}
	exec := t.executorForLocked(node)
	if exec == nil {
		t.mu.Unlock()
		return NoExecutorResult(), nil
	}
	node.Status = StatusInProgress
	node.UpdatedAt = t.now()
	payload := node.Payload
	t.mu.Unlock()

	result, err := exec.Execute(ctx, payload)

	t.mu.Lock()
	defer t.mu.Unlock()
	// The subtree may have been pruned while the executor ran; pruned is
	// terminal, so the outcome is discarded.
	if node.Status == StatusPruned {
		return nil, fmt.Errorf("execute %s: %w", id, ErrNodePruned)
	}
	node.UpdatedAt = t.now()
	if err != nil {
		node.Status = StatusFailed
		node.Result = map[string]any{"error": err.Error()}
		return nil, fmt.Errorf("execute %s: %w", id, err)
	}
	node.Status = StatusCompleted
	node.Result = result
	if conf, ok := confidenceFrom(result); ok {
		node.Confidence = conf
	}
	return result, nil
}

// ExecuteParallelBranches executes the given nodes concurrently and
// returns one outcome per input ID, in input order. Per-node failures
// become error-shaped outcomes; the batch itself never fails.
func (t *Tree) ExecuteParallelBranches(ctx context.Context, ids []string) []Outcome {
	outcomes := make([]Outcome, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			result, err := t.ExecuteNode(ctx, id)
			outcomes[i] = Outcome{NodeID: id, Result: result, Err: err}
		}(i, id)
	}
	wg.Wait()

	return outcomes
}

// confidenceFrom extracts and clamps a confidence value from an
// executor result.
func confidenceFrom(result map[string]any) (float64, bool) {
	raw, ok := result["confidence"]
	if !ok {
		return 0, false
	}
	var conf float64
	switch v := raw.(type) {
	case float64:
		conf = v
	case float32:
		conf = float64(v)
	case int:
		conf = float64(v)
	default:
		return 0, false
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf, true
}
