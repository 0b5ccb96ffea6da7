package tree

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Admission and structural errors. Depth and breadth violations are
// recoverable signals: callers narrow their exploration and continue.
var (
	// ErrRootExists indicates CreateRoot was called twice on one tree.
	ErrRootExists = errors.New("tree already has a root")
	// ErrNoRoot indicates an operation that requires a root ran on an empty tree.
	ErrNoRoot = errors.New("tree has no root")
	// ErrUnknownNode indicates a node ID that is not in the tree.
	ErrUnknownNode = errors.New("unknown node")
	// ErrNodePruned indicates the target node has been pruned.
	ErrNodePruned = errors.New("node is pruned")
	// ErrNodeResolved indicates the node already ran to failure and
	// cannot be executed again.
	ErrNodeResolved = errors.New("node already resolved")
	// ErrBreadthExceeded indicates the parent is already at max breadth.
	ErrBreadthExceeded = errors.New("breadth limit exceeded")
	// ErrDepthExceeded indicates the new node would be at or past max depth.
	ErrDepthExceeded = errors.New("depth limit exceeded")
)

// Default tunables, used when Config leaves a field zero.
const (
	DefaultMaxDepth         = 6
	DefaultMaxBreadth       = 4
	DefaultPruningThreshold = 0.3
)

// Config holds the tunables for a tree instance.
type Config struct {
	// MaxDepth bounds the root-to-node edge count of any node.
	MaxDepth int
	// MaxBreadth bounds the number of children under one parent.
	MaxBreadth int
	// PruningThreshold is the confidence below which completed subtrees
	// are pruned.
	PruningThreshold float64
	// Registry provides fallback executors by node kind for nodes added
	// without their own executor. Optional.
	Registry *Registry
}

// Tree is a mutable, single-owner decision tree for one reasoning
// episode. All nodes live in an id-keyed arena owned by the tree;
// parent/child references are plain keys. One tree has one
// mutual-exclusion domain: structural mutation is single-writer,
// read-only traversal may run concurrently with execution of other
// nodes.
type Tree struct {
	mu sync.RWMutex

	// nodes is the owning arena, keyed by node ID.
	nodes map[string]*Node
	// order records node IDs in insertion order so traversals and
	// tie-breaking are deterministic.
	order []string
	// executors maps node IDs to their attached executors. Kept outside
	// Node so node copies stay plain data.
	executors map[string]Executor

	rootID string
	cfg    Config

	// bestPath and bestScore hold the most recent FindBestPath result.
	bestPath  []string
	bestScore float64

	// now is stubbed in tests.
	now func() time.Time
}

// New creates an empty tree with the given tunables.
func New(cfg Config) *Tree {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxBreadth <= 0 {
		cfg.MaxBreadth = DefaultMaxBreadth
	}
	if cfg.PruningThreshold <= 0 {
		cfg.PruningThreshold = DefaultPruningThreshold
	}
	return &Tree{
		nodes:     make(map[string]*Node),
		executors: make(map[string]Executor),
		cfg:       cfg,
		now:       time.Now,
	}
}

// CreateRoot creates the root node. A tree has exactly one root;
// calling CreateRoot twice returns ErrRootExists.
func (t *Tree) CreateRoot(content string, payload map[string]any) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rootID != "" {
		return "", ErrRootExists
	}

	now := t.now()
	node := &Node{
		ID:         uuid.New().String(),
		Kind:       KindRoot,
		Content:    content,
		Payload:    payload,
		Status:     StatusPending,
		Confidence: defaultConfidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.nodes[node.ID] = node
	t.order = append(t.order, node.ID)
	t.rootID = node.ID
	return node.ID, nil
}

// AddNode adds a child under parentID. Depth and breadth violations are
// returned as ErrDepthExceeded / ErrBreadthExceeded so callers can adapt
// their exploration width; referencing an unknown or pruned parent is a
// structural error.
func (t *Tree) AddNode(parentID string, kind NodeKind, content string, payload map[string]any, exec Executor) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addNodeLocked(parentID, kind, content, payload, exec)
}

// addNodeLocked is the internal implementation that assumes the lock is held.
func (t *Tree) addNodeLocked(parentID string, kind NodeKind, content string, payload map[string]any, exec Executor) (string, error) {
	parent, ok := t.nodes[parentID]
	if !ok {
		return "", fmt.Errorf("add node under %s: %w", parentID, ErrUnknownNode)
	}
	if parent.Status == StatusPruned {
		return "", fmt.Errorf("add node under %s: %w", parentID, ErrNodePruned)
	}
	if len(parent.ChildIDs) >= t.cfg.MaxBreadth {
		return "", fmt.Errorf("parent %s has %d children: %w", parentID, len(parent.ChildIDs), ErrBreadthExceeded)
	}
	if t.depthLocked(parentID)+1 >= t.cfg.MaxDepth {
		return "", fmt.Errorf("node under %s: %w", parentID, ErrDepthExceeded)
	}

	now := t.now()
	node := &Node{
		ID:         uuid.New().String(),
		Kind:       kind,
		Content:    content,
		Payload:    payload,
		ParentID:   parentID,
		Status:     StatusPending,
		Confidence: defaultConfidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.nodes[node.ID] = node
	t.order = append(t.order, node.ID)
	parent.ChildIDs = append(parent.ChildIDs, node.ID)
	parent.UpdatedAt = now
	if exec != nil {
		t.executors[node.ID] = exec
	}
	return node.ID, nil
}

// depthLocked returns the root-to-node edge count. Caller must hold the lock.
func (t *Tree) depthLocked(id string) int {
	depth := 0
	for {
		node, ok := t.nodes[id]
		if !ok || node.ParentID == "" {
			return depth
		}
		id = node.ParentID
		depth++
	}
}

// Node returns a copy of the node, or false if the ID is unknown.
func (t *Tree) Node(id string) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	return node.clone(), true
}

// RootID returns the root node ID, or empty if CreateRoot has not run.
func (t *Tree) RootID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootID
}

// Size returns the number of nodes in the arena, pruned nodes included.
func (t *Tree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Depth returns the root-to-node edge count for the given node.
func (t *Tree) Depth(id string) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.nodes[id]; !ok {
		return 0, fmt.Errorf("depth of %s: %w", id, ErrUnknownNode)
	}
	return t.depthLocked(id), nil
}

// executorFor resolves the executor for a node: its own attachment
// first, then the registry entry for its kind. Caller must hold the lock.
func (t *Tree) executorForLocked(node *Node) Executor {
	if exec, ok := t.executors[node.ID]; ok {
		return exec
	}
	return t.cfg.Registry.Lookup(node.Kind)
}
