package tree

import "fmt"

// ResearchSpec describes one research path to expand under a hypothesis.
type ResearchSpec struct {
	// Content is the free-text label for the research step.
	Content string
	// Payload carries the data the research executor needs.
	Payload map[string]any
	// Executor runs the research step. Optional; falls back to the
	// registry entry for KindResearch.
	Executor Executor
}

// ExpandHypotheses adds one hypothesis child per entry under parentID.
// Expansion is best-effort: entries rejected by depth or breadth limits
// are skipped, and the returned slice holds only the IDs that were
// created. Callers compare its length against the request to detect
// partial expansion. An unknown or pruned parent is a structural error.
func (t *Tree) ExpandHypotheses(parentID string, hypotheses []string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkExpandParentLocked(parentID); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(hypotheses))
	for _, h := range hypotheses {
		id, err := t.addNodeLocked(parentID, KindHypothesis, h, nil, nil)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ExpandResearchPaths adds one research child per spec under the given
// hypothesis. Same best-effort semantics as ExpandHypotheses.
func (t *Tree) ExpandResearchPaths(hypothesisID string, specs []ResearchSpec) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkExpandParentLocked(hypothesisID); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		id, err := t.addNodeLocked(hypothesisID, KindResearch, spec.Content, spec.Payload, spec.Executor)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// checkExpandParentLocked validates the parent of a batch expansion.
// Caller must hold the lock.
func (t *Tree) checkExpandParentLocked(parentID string) error {
	parent, ok := t.nodes[parentID]
	if !ok {
		return fmt.Errorf("expand under %s: %w", parentID, ErrUnknownNode)
	}
	if parent.Status == StatusPruned {
		return fmt.Errorf("expand under %s: %w", parentID, ErrNodePruned)
	}
	return nil
}
