// Package models defines the shared data types for canopy missions:
// execution tasks, workers, and resource requirements.
package models

import "time"

// TaskStatus represents the current state of an execution task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not been considered for admission.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusQueued indicates the task was denied admission and is waiting for capacity.
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusRunning indicates the task is executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task finished with an error.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before or during execution.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusQueued, TaskStatusRunning,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Resolved returns true if the status counts as a resolved dependency.
// Both success and failure unblock dependents; a failed dependency is
// surfaced to the dependent through its context, not by blocking it.
func (s TaskStatus) Resolved() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskKind distinguishes ordinary worker tasks from synthetic tasks the
// engine creates itself.
type TaskKind string

const (
	// TaskKindWork is a unit of mission work assigned to a worker.
	TaskKindWork TaskKind = "work"
	// TaskKindCoordination is a synthetic fan-in task that synthesizes
	// the results of all tasks it depends on.
	TaskKindCoordination TaskKind = "coordination"
)

// ResourceKind identifies a bounded resource tracked by the pool.
type ResourceKind string

const (
	// ResourceSlots is concurrent execution slots. Every admitted task
	// consumes exactly one regardless of the declared quantity.
	ResourceSlots ResourceKind = "slots"
	// ResourceCalls is external inference calls within the rolling window.
	ResourceCalls ResourceKind = "calls"
	// ResourceMemory is the fraction of the memory budget (0.0-1.0).
	ResourceMemory ResourceKind = "memory"
)

// Requirements maps resource kinds to requested quantities.
type Requirements map[ResourceKind]float64

// Calls returns the requested number of external calls.
func (r Requirements) Calls() int {
	return int(r[ResourceCalls])
}

// MemoryFraction returns the requested memory fraction.
func (r Requirements) MemoryFraction() float64 {
	return r[ResourceMemory]
}

// Clone returns a copy of the requirements map.
func (r Requirements) Clone() Requirements {
	out := make(Requirements, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ContextKeyDependencyFailures is the task context key under which the
// engine records the IDs of failed dependencies before a dependent runs.
const ContextKeyDependencyFailures = "dependency_failures"

// ExecutionTask is a unit of schedulable mission work.
type ExecutionTask struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// MissionID is the identifier of the mission this task belongs to.
	MissionID string `json:"mission_id,omitempty"`
	// OwnerID is the ID of the worker assigned to this task.
	OwnerID string `json:"owner_id"`
	// Kind distinguishes worker tasks from synthetic coordination tasks.
	Kind TaskKind `json:"kind"`
	// Objective is the short description of what the task should achieve.
	Objective string `json:"objective"`
	// Context carries opaque data handed to the task executor.
	Context map[string]any `json:"context,omitempty"`
	// Priority orders tasks for admission; lower is more urgent.
	Priority int `json:"priority"`
	// Requirements declares the resources the task needs to run.
	Requirements Requirements `json:"requirements,omitempty"`
	// EstimatedDuration is the expected execution time, used as a
	// priority tiebreaker and for monitoring. Advisory only.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	// Timeout is the per-task deadline. Zero means no deadline.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Dependencies lists task IDs that must resolve before this task starts.
	Dependencies []string `json:"dependencies,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Result holds the executor's output on completion.
	Result map[string]any `json:"result,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// StartTime is when execution began, if it did.
	StartTime *time.Time `json:"start_time,omitempty"`
	// EndTime is when execution finished, if it did.
	EndTime *time.Time `json:"end_time,omitempty"`
}

// Less reports whether this task should be admitted before other.
// Ordering is by priority ascending, tie-broken by estimated duration
// ascending, then by ID for determinism.
func (t *ExecutionTask) Less(other *ExecutionTask) bool {
	if t.Priority != other.Priority {
		return t.Priority < other.Priority
	}
	if t.EstimatedDuration != other.EstimatedDuration {
		return t.EstimatedDuration < other.EstimatedDuration
	}
	return t.ID < other.ID
}

// Duration returns the measured execution time, or zero if the task has
// not both started and finished.
func (t *ExecutionTask) Duration() time.Duration {
	if t.StartTime == nil || t.EndTime == nil {
		return 0
	}
	return t.EndTime.Sub(*t.StartTime)
}
