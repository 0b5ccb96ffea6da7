package tree

// recencyWeight returns the weight of the i-th node along a path,
// 0-indexed from the root. Later steps weigh more: a path's score is
// dominated by the reasoning closest to the decision.
func recencyWeight(i int) float64 {
	return 1.0 + 0.1*float64(i)
}

// FindBestPath enumerates every root-to-node path ending at a completed
// Decision node, excluding paths that pass through a pruned node, and
// returns the path with the highest recency-weighted confidence score:
//
//	score = Σ confidence_i · (1 + 0.1·i) / Σ (1 + 0.1·i)
//
// Ties keep the first path found in node insertion order. The winning
// path and score are stored on the tree and returned; ok is false when
// no qualifying path exists.
func (t *Tree) FindBestPath() (path []string, score float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var bestPath []string
	bestScore := -1.0

	for _, id := range t.order {
		node := t.nodes[id]
		if node.Kind != KindDecision || node.Status != StatusCompleted {
			continue
		}
		candidate := t.pathToRootLocked(id)
		if candidate == nil {
			continue // passes through a pruned node
		}
		s := t.scorePathLocked(candidate)
		if s > bestScore {
			bestScore = s
			bestPath = candidate
		}
	}

	if bestPath == nil {
		return nil, 0, false
	}
	t.bestPath = bestPath
	t.bestScore = bestScore
	return append([]string(nil), bestPath...), bestScore, true
}

// BestPath returns the most recent FindBestPath result, or false if no
// search has succeeded yet.
func (t *Tree) BestPath() (path []string, score float64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.bestPath == nil {
		return nil, 0, false
	}
	return append([]string(nil), t.bestPath...), t.bestScore, true
}

// pathToRootLocked builds the root-to-node path for id, or nil if any
// node along the way is pruned. Caller must hold the lock.
func (t *Tree) pathToRootLocked(id string) []string {
	var reversed []string
	for id != "" {
		node, ok := t.nodes[id]
		if !ok || node.Status == StatusPruned {
			return nil
		}
		reversed = append(reversed, id)
		id = node.ParentID
	}
	path := make([]string, len(reversed))
	for i, nodeID := range reversed {
		path[len(reversed)-1-i] = nodeID
	}
	return path
}

// scorePathLocked computes the recency-weighted confidence score for a
// root-to-node path. Caller must hold the lock.
func (t *Tree) scorePathLocked(path []string) float64 {
	var weighted, total float64
	for i, id := range path {
		w := recencyWeight(i)
		weighted += t.nodes[id].Confidence * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}
