package tree

import "context"

// Executor runs the work attached to a node. Implementations may block
// on I/O (the inference call lives behind this interface); the tree
// never holds its lock across an Execute call.
type Executor interface {
	Execute(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, payload map[string]any) (map[string]any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return f(ctx, payload)
}

// Registry maps node kinds to executors. A node with no executor of its
// own falls back to the registry entry for its kind.
type Registry struct {
	byKind map[NodeKind]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[NodeKind]Executor)}
}

// Register associates an executor with a node kind, replacing any
// previous entry.
func (r *Registry) Register(kind NodeKind, exec Executor) {
	r.byKind[kind] = exec
}

// Lookup returns the executor registered for the kind, or nil.
func (r *Registry) Lookup(kind NodeKind) Executor {
	if r == nil {
		return nil
	}
	return r.byKind[kind]
}
