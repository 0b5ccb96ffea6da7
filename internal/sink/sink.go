// Package sink persists mission runs: the mission record itself and
// every task's final state. The SQLite implementation is the durable
// store; NopSink serves runs that do not need persistence.
package sink

import (
	"time"

	"github.com/skalene/canopy/pkg/models"
)

// MissionRecord is the persisted summary of one mission run.
type MissionRecord struct {
	ID        string
	Name      string
	Objective string
	Status    string
	StartedAt time.Time
	EndedAt   time.Time
}

// Sink receives mission and task records as a run progresses.
type Sink interface {
	// SaveMission inserts or updates the mission record.
	SaveMission(m MissionRecord) error
	// SaveTask inserts or updates a task's state.
	SaveTask(t *models.ExecutionTask) error
	// Close releases any underlying resources.
	Close() error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) SaveMission(MissionRecord) error { return nil }

func (NopSink) SaveTask(*models.ExecutionTask) error { return nil }

func (NopSink) Close() error { return nil }
