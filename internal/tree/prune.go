package tree

// PruneLowConfidencePaths prunes every completed, non-root node whose
// confidence fell below the pruning threshold, together with its entire
// subtree. Subtrees are pruned children-first, the pruned node is
// detached from its parent's child list, and every removed node is
// marked Pruned. Returns the number of nodes pruned.
//
// This is a structural mutation and takes the tree's write lock; it
// must not be interleaved with AddNode or ExecuteNode on the same tree,
// which the lock enforces.
func (t *Tree) PruneLowConfidencePaths() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Candidates are collected up front: pruning mutates the arena and
	// an earlier prune may swallow a later candidate's whole subtree.
	var candidates []string
	for _, id := range t.order {
		node := t.nodes[id]
		if node.ID == t.rootID {
			continue
		}
		if node.Status == StatusCompleted && node.Confidence < t.cfg.PruningThreshold {
			candidates = append(candidates, id)
		}
	}

	pruned := 0
	for _, id := range candidates {
		node := t.nodes[id]
		if node.Status == StatusPruned {
			continue // already removed as part of an earlier subtree
		}
		t.detachFromParentLocked(node)
		pruned += t.pruneSubtreeLocked(id)
	}
	return pruned
}

// pruneSubtreeLocked marks the node and all descendants Pruned,
// children before the node itself. Caller must hold the write lock.
func (t *Tree) pruneSubtreeLocked(id string) int {
	node, ok := t.nodes[id]
	if !ok {
		return 0
	}
	count := 0
	for _, childID := range node.ChildIDs {
		count += t.pruneSubtreeLocked(childID)
	}
	node.Status = StatusPruned
	node.UpdatedAt = t.now()
	return count + 1
}

// detachFromParentLocked removes the node from its parent's child list.
// Caller must hold the write lock.
func (t *Tree) detachFromParentLocked(node *Node) {
	parent, ok := t.nodes[node.ParentID]
	if !ok {
		return
	}
	children := parent.ChildIDs[:0]
	for _, childID := range parent.ChildIDs {
		if childID != node.ID {
			children = append(children, childID)
		}
	}
	parent.ChildIDs = children
	parent.UpdatedAt = t.now()
}
