// Package graph provides a dependency graph for mission task scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/skalene/canopy/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// Plan is the wave layering produced by Waves. Tasks within one wave
// have no dependencies on each other; every task's dependencies live in
// earlier waves. When the graph contains a cycle the tasks trapped in it
// are collected into one final wave and CycleFallback is set.
type Plan struct {
	Waves         [][]string
	CycleFallback bool
}

// DependencyGraph is a directed graph of task dependencies. Tasks are
// nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.ExecutionTask
	// order records insertion order so traversals are deterministic.
	order []string
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
	// resolved tracks which tasks finished, successfully or not. A
	// failed task still unblocks its dependents.
	resolved map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]*models.ExecutionTask),
		edges:    make(map[string][]string),
		resolved: make(map[string]bool),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a slice of tasks. It
// returns an error if a dependency references an unknown task. Cycles
// do not fail the build; Waves folds them into a fallback final wave.
func (g *DependencyGraph) Build(tasks []*models.ExecutionTask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d tasks", len(tasks))

	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		g.debugLog("[graph.Build] adding task: id=%s objective=%q deps=%v", task.ID, task.Objective, task.Dependencies)
		if _, exists := g.nodes[task.ID]; !exists {
			g.order = append(g.order, task.ID)
		}
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
	}

	// Second pass: build edges from the Dependencies fields.
	for _, task := range tasks {
		for _, depID := range task.Dependencies {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	g.debugLog("[graph.Build] graph built with %d nodes", len(g.nodes))
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked is the internal implementation that assumes the lock is held.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge: cycle detected.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// Waves layers the graph into execution waves. A task joins the first
// wave in which all of its dependencies are already placed. When no
// progress can be made and tasks remain (a cycle), the remainder is
// emitted as a single final wave and CycleFallback is set so callers
// can surface the degraded ordering.
func (g *DependencyGraph) Waves() Plan {
	g.mu.RLock()
	defer g.mu.RUnlock()

	placed := make(map[string]bool, len(g.nodes))
	remaining := len(g.nodes)

	var plan Plan
	for remaining > 0 {
		var wave []string
		for _, id := range g.order {
			if placed[id] {
				continue
			}
			ready := true
			for _, depID := range g.edges[id] {
				if !placed[depID] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			}
		}

		if len(wave) == 0 {
			// Cycle: nothing became ready. Collect the trapped tasks into
			// one final wave rather than deadlocking the mission.
			var rest []string
			for _, id := range g.order {
				if !placed[id] {
					rest = append(rest, id)
				}
			}
			g.sortByPriorityLocked(rest)
			plan.Waves = append(plan.Waves, rest)
			plan.CycleFallback = true
			g.debugLog("[graph.Waves] cycle fallback: %d tasks in final wave", len(rest))
			break
		}

		g.sortByPriorityLocked(wave)
		for _, id := range wave {
			placed[id] = true
		}
		remaining -= len(wave)
		plan.Waves = append(plan.Waves, wave)
	}

	g.debugLog("[graph.Waves] planned %d waves (fallback=%v)", len(plan.Waves), plan.CycleFallback)
	return plan
}

// sortByPriorityLocked orders wave members by admission priority.
func (g *DependencyGraph) sortByPriorityLocked(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := g.nodes[ids[i]], g.nodes[ids[j]]
		if a == nil || b == nil {
			return ids[i] < ids[j]
		}
		return a.Less(b)
	})
}

// Ready returns task IDs whose dependencies are all resolved and that
// are not themselves resolved, in insertion order.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.resolved[id] {
			continue
		}
		task := g.nodes[id]
		if task.Status.Resolved() || task.Status == models.TaskStatusCancelled {
			continue
		}
		blocked := false
		for _, depID := range g.edges[id] {
			if !g.resolved[depID] {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, id)
		}
	}
	return ready
}

// DependenciesResolved reports whether every dependency of the task has
// finished, successfully or not.
func (g *DependencyGraph) DependenciesResolved(taskID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, depID := range g.edges[taskID] {
		if !g.resolved[depID] {
			return false
		}
	}
	return true
}

// MarkResolved records that a task finished, successfully or not, which
// unblocks its dependents.
func (g *DependencyGraph) MarkResolved(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.MarkResolved] task %s resolved", taskID)
	g.resolved[taskID] = true
}

// FailedDependencies returns the IDs of the given task's dependencies
// that resolved with a failed status, in dependency order.
func (g *DependencyGraph) FailedDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var failed []string
	for _, depID := range g.edges[taskID] {
		if dep, ok := g.nodes[depID]; ok && dep.Status == models.TaskStatusFailed {
			failed = append(failed, depID)
		}
	}
	return failed
}

// Task returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) Task(taskID string) *models.ExecutionTask {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs of tasks that the given task depends on.
func (g *DependencyGraph) Dependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[taskID]
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *DependencyGraph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}
