package engine

import (
	"sync"
	"time"

	"github.com/skalene/canopy/pkg/models"
)

// defaultEstimate is used when no history exists for a worker.
const defaultEstimate = 30 * time.Second

// historyLimit caps how many samples per worker are kept in memory.
const historyLimit = 32

// DurationStore persists task duration samples across missions. The
// metrics package provides the SQLite-backed implementation.
type DurationStore interface {
	Record(workerID string, kind models.TaskKind, d time.Duration) error
	EstimateFor(workerID string) (time.Duration, bool, error)
}

// PerformanceMonitor passively observes task execution and answers
// duration estimates used for admission tiebreaking. It never
// influences scheduling decisions directly.
type PerformanceMonitor struct {
	mu      sync.Mutex
	samples map[string][]time.Duration
	store   DurationStore
	logger  *DebugLogger
}

// NewPerformanceMonitor creates a monitor. store may be nil, in which
// case history lives only for the process lifetime.
func NewPerformanceMonitor(store DurationStore, logger *DebugLogger) *PerformanceMonitor {
	if logger == nil {
		logger = NopLogger()
	}
	return &PerformanceMonitor{
		samples: make(map[string][]time.Duration),
		store:   store,
		logger:  logger,
	}
}

// Record observes a finished task. Tasks without both timestamps are
// ignored.
func (m *PerformanceMonitor) Record(task *models.ExecutionTask) {
	d := task.Duration()
	if d <= 0 {
		return
	}

	m.mu.Lock()
	hist := append(m.samples[task.OwnerID], d)
	if len(hist) > historyLimit {
		hist = hist[len(hist)-historyLimit:]
	}
	m.samples[task.OwnerID] = hist
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Record(task.OwnerID, task.Kind, d); err != nil {
			m.logger.Log("[monitor.Record] persist failed for worker %s: %v", task.OwnerID, err)
		}
	}
}

// Estimate returns the expected duration of a task for the given
// worker: the mean of the in-memory samples, the persisted estimate
// when memory is cold, or a fixed default.
func (m *PerformanceMonitor) Estimate(workerID string) time.Duration {
	m.mu.Lock()
	hist := m.samples[workerID]
	m.mu.Unlock()

	if len(hist) > 0 {
		var total time.Duration
		for _, d := range hist {
			total += d
		}
		return total / time.Duration(len(hist))
	}

	if m.store != nil {
		if d, ok, err := m.store.EstimateFor(workerID); err == nil && ok {
			return d
		}
	}
	return defaultEstimate
}
