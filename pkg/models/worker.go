package models

// WorkerStatus represents the availability of a worker.
type WorkerStatus string

const (
	// WorkerStatusIdle indicates the worker has no assigned task.
	WorkerStatusIdle WorkerStatus = "idle"
	// WorkerStatusBusy indicates the worker is executing a task.
	WorkerStatusBusy WorkerStatus = "busy"
	// WorkerStatusOffline indicates the worker is not accepting tasks.
	WorkerStatusOffline WorkerStatus = "offline"
)

// Valid returns true if the status is a known value.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerStatusIdle, WorkerStatusBusy, WorkerStatusOffline:
		return true
	default:
		return false
	}
}

// Worker is an agent that can execute mission tasks. Workers in the same
// roster are interchangeable from the scheduler's point of view; the
// load balancer picks among them by current load.
type Worker struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id"`
	// Name is the human-readable worker name.
	Name string `json:"name,omitempty"`
	// Status is the current availability of the worker.
	Status WorkerStatus `json:"status"`
	// Requirements declares the resources a task run by this worker needs.
	Requirements Requirements `json:"requirements,omitempty"`
}
