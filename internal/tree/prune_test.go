package tree

import (
	"context"
	"errors"
	"testing"
)

func TestPrune_RemovesSubtreeAndDetaches(t *testing.T) {
	tr := New(Config{PruningThreshold: 0.5})
	rootID := mustRoot(t, tr)

	keep := mustAdd(t, tr, rootID, KindHypothesis, "keep", nil)
	drop := mustAdd(t, tr, rootID, KindHypothesis, "drop", nil)
	dropChild := mustAdd(t, tr, drop, KindResearch, "drop child", nil)
	dropGrandchild := mustAdd(t, tr, dropChild, KindAnalysis, "drop grandchild", nil)

	completeWithConfidence(t, tr, keep, 0.8)
	completeWithConfidence(t, tr, drop, 0.2)

	if pruned := tr.PruneLowConfidencePaths(); pruned != 3 {
		t.Errorf("PruneLowConfidencePaths() = %d, want 3", pruned)
	}

	// Every node in the subtree is marked Pruned; the arena keeps them.
	for _, id := range []string{drop, dropChild, dropGrandchild} {
		node, ok := tr.Node(id)
		if !ok {
			t.Fatalf("node %s missing from arena after prune", id)
		}
		if node.Status != StatusPruned {
			t.Errorf("node %s status = %s, want pruned", id, node.Status)
		}
	}

	// The subtree root is detached from its parent.
	root, _ := tr.Node(rootID)
	if len(root.ChildIDs) != 1 || root.ChildIDs[0] != keep {
		t.Errorf("root children = %v, want [%s]", root.ChildIDs, keep)
	}
}

func TestPrune_SkipsRootAndIncomplete(t *testing.T) {
	tr := New(Config{PruningThreshold: 0.9})
	rootID := mustRoot(t, tr)

	// Root completes below threshold but is never pruned.
	completeWithConfidence(t, tr, rootID, 0.1)

	// Pending node below the threshold stays: only Completed nodes prune.
	pending := mustAdd(t, tr, rootID, KindHypothesis, "pending", nil)

	if pruned := tr.PruneLowConfidencePaths(); pruned != 0 {
		t.Errorf("PruneLowConfidencePaths() = %d, want 0", pruned)
	}
	node, _ := tr.Node(pending)
	if node.Status != StatusPending {
		t.Errorf("pending node status = %s, want pending", node.Status)
	}
}

func TestPrune_PrunedIsTerminal(t *testing.T) {
	tr := New(Config{PruningThreshold: 0.5})
	rootID := mustRoot(t, tr)
	drop := mustAdd(t, tr, rootID, KindHypothesis, "drop", nil)
	completeWithConfidence(t, tr, drop, 0.1)

	if pruned := tr.PruneLowConfidencePaths(); pruned != 1 {
		t.Fatalf("PruneLowConfidencePaths() = %d, want 1", pruned)
	}

	// No expansion or execution under or on a pruned node.
	if _, err := tr.AddNode(drop, KindResearch, "r", nil, nil); !errors.Is(err, ErrNodePruned) {
		t.Errorf("AddNode under pruned error = %v, want ErrNodePruned", err)
	}
	if _, err := tr.ExecuteNode(context.Background(), drop); !errors.Is(err, ErrNodePruned) {
		t.Errorf("ExecuteNode on pruned error = %v, want ErrNodePruned", err)
	}

	// A second prune pass is a no-op.
	if pruned := tr.PruneLowConfidencePaths(); pruned != 0 {
		t.Errorf("second PruneLowConfidencePaths() = %d, want 0", pruned)
	}
}
