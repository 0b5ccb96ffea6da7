package tree

// ActiveLeaves returns the IDs of nodes with no children whose status is
// Pending or InProgress, in insertion order. Callers use this to decide
// whether the tree needs further expansion.
func (t *Tree) ActiveLeaves() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var leaves []string
	for _, id := range t.order {
		node := t.nodes[id]
		if len(node.ChildIDs) != 0 {
			continue
		}
		if node.Status == StatusPending || node.Status == StatusInProgress {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// Summary returns a plain nested record describing the tree: node
// counts by status and kind, the root, and the stored best path. The
// output is identical across calls when the tree has not changed.
func (t *Tree) Summary() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	statusCounts := make(map[string]int)
	kindCounts := make(map[string]int)
	for _, node := range t.nodes {
		statusCounts[string(node.Status)]++
		kindCounts[string(node.Kind)]++
	}

	summary := map[string]any{
		"root_id":       t.rootID,
		"node_count":    len(t.nodes),
		"status_counts": statusCounts,
		"kind_counts":   kindCounts,
	}
	if t.bestPath != nil {
		summary["best_path"] = append([]string(nil), t.bestPath...)
		summary["best_score"] = t.bestScore
	}
	return summary
}

// Snapshot returns every node as a plain nested record, in insertion
// order, for handoff to a result sink. The tree keeps no reference to
// the returned data.
func (t *Tree) Snapshot() []map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	records := make([]map[string]any, 0, len(t.order))
	for _, id := range t.order {
		node := t.nodes[id]
		rec := map[string]any{
			"id":         node.ID,
			"kind":       string(node.Kind),
			"content":    node.Content,
			"status":     string(node.Status),
			"confidence": node.Confidence,
			"created_at": node.CreatedAt,
			"updated_at": node.UpdatedAt,
		}
		if node.ParentID != "" {
			rec["parent_id"] = node.ParentID
		}
		if len(node.ChildIDs) > 0 {
			rec["child_ids"] = append([]string(nil), node.ChildIDs...)
		}
		if node.Payload != nil {
			rec["payload"] = node.Payload
		}
		if node.Result != nil {
			rec["result"] = node.Result
		}
		records = append(records, rec)
	}
	return records
}
