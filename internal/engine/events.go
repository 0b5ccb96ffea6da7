// Package engine coordinates mission execution: decomposition into
// tasks, dependency-aware wave scheduling, resource admission, and
// result synthesis.
package engine

import (
	"time"
)

// EventType represents the type of engine event.
type EventType string

const (
	// EventMissionStarted indicates a mission run has begun.
	EventMissionStarted EventType = "mission_started"
	// EventMissionCompleted indicates a mission run finished.
	EventMissionCompleted EventType = "mission_completed"
	// EventPlanReady indicates the wave plan has been computed.
	EventPlanReady EventType = "plan_ready"
	// EventCycleFallback indicates the dependency graph contained a
	// cycle and the trapped tasks were folded into one final wave.
	EventCycleFallback EventType = "cycle_fallback"
	// EventWaveStarted indicates a scheduling wave has begun.
	EventWaveStarted EventType = "wave_started"
	// EventTaskStarted indicates a task has started execution.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskQueued indicates a task was denied admission and is
	// waiting for capacity.
	EventTaskQueued EventType = "task_queued"
	// EventTaskCancelled indicates a task was abandoned before running.
	EventTaskCancelled EventType = "task_cancelled"
)

// Event is emitted by the engine as a mission progresses. Events feed
// the TUI and the persistence sink.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// MissionID is the ID of the mission this event belongs to.
	MissionID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// WorkerID is the ID of the related worker, if applicable.
	WorkerID string
	// Wave is the index of the related scheduling wave, if applicable.
	Wave int
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the task's measured execution time, for completion
	// and failure events.
	Duration time.Duration
}

// emit delivers an event without ever blocking the scheduling loop.
// When the subscriber falls behind, events are dropped and counted.
func (e *Engine) emit(ev Event) {
	ev.Timestamp = e.now()
	ev.MissionID = e.missionID

	select {
	case e.events <- ev:
	default:
		e.droppedEvents.Add(1)
		e.logger.Log("[engine.emit] dropped event %s (subscriber behind)", ev.Type)
	}
}

// Events returns the channel on which the engine publishes progress
// events. The channel is closed when Run returns.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// DroppedEvents returns how many events were discarded because the
// subscriber was not keeping up.
func (e *Engine) DroppedEvents() int64 {
	return e.droppedEvents.Load()
}
