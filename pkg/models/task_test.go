package models

import (
	"testing"
	"time"
)

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"queued is valid", TaskStatusQueued, true},
		{"running is valid", TaskStatusRunning, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"failed is valid", TaskStatusFailed, true},
		{"cancelled is valid", TaskStatusCancelled, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("unknown"), false},
		{"typo status is invalid", TaskStatus("runing"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_Resolved(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusPending, false},
		{TaskStatusQueued, false},
		{TaskStatusRunning, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
		{TaskStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Resolved(); got != tt.want {
				t.Errorf("TaskStatus(%q).Resolved() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestExecutionTask_Less(t *testing.T) {
	tests := []struct {
		name string
		a, b ExecutionTask
		want bool
	}{
		{
			name: "lower priority wins",
			a:    ExecutionTask{ID: "z", Priority: 1, EstimatedDuration: time.Hour},
			b:    ExecutionTask{ID: "a", Priority: 2, EstimatedDuration: time.Second},
			want: true,
		},
		{
			name: "equal priority falls back to duration",
			a:    ExecutionTask{ID: "z", Priority: 1, EstimatedDuration: time.Second},
			b:    ExecutionTask{ID: "a", Priority: 1, EstimatedDuration: time.Minute},
			want: true,
		},
		{
			name: "equal priority and duration falls back to id",
			a:    ExecutionTask{ID: "a", Priority: 1, EstimatedDuration: time.Second},
			b:    ExecutionTask{ID: "b", Priority: 1, EstimatedDuration: time.Second},
			want: true,
		},
		{
			name: "higher priority loses",
			a:    ExecutionTask{ID: "a", Priority: 3},
			b:    ExecutionTask{ID: "b", Priority: 1},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(&tt.b); got != tt.want {
				t.Errorf("Less() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecutionTask_Duration(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	task := ExecutionTask{}
	if got := task.Duration(); got != 0 {
		t.Errorf("Duration() on unstarted task = %v, want 0", got)
	}

	task.StartTime = &start
	if got := task.Duration(); got != 0 {
		t.Errorf("Duration() on unfinished task = %v, want 0", got)
	}

	task.EndTime = &end
	if got := task.Duration(); got != 90*time.Second {
		t.Errorf("Duration() = %v, want 90s", got)
	}
}

func TestRequirements_Accessors(t *testing.T) {
	req := Requirements{
		ResourceCalls:  3,
		ResourceMemory: 0.25,
	}

	if got := req.Calls(); got != 3 {
		t.Errorf("Calls() = %d, want 3", got)
	}
	if got := req.MemoryFraction(); got != 0.25 {
		t.Errorf("MemoryFraction() = %f, want 0.25", got)
	}

	empty := Requirements{}
	if got := empty.Calls(); got != 0 {
		t.Errorf("Calls() on empty = %d, want 0", got)
	}
	if got := empty.MemoryFraction(); got != 0 {
		t.Errorf("MemoryFraction() on empty = %f, want 0", got)
	}
}

func TestRequirements_Clone(t *testing.T) {
	orig := Requirements{ResourceCalls: 2, ResourceMemory: 0.1}
	clone := orig.Clone()

	clone[ResourceCalls] = 99
	if orig[ResourceCalls] != 2 {
		t.Errorf("mutating clone changed original: %v", orig)
	}
	if len(clone) != 2 {
		t.Errorf("clone has %d entries, want 2", len(clone))
	}
}
