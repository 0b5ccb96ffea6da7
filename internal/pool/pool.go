// Package pool provides admission control over the bounded resources a
// mission shares: concurrent execution slots, external-call quota per
// rolling window, and a memory budget. It also holds the least-loaded
// worker balancer.
package pool

import (
	"sync"
	"time"

	"github.com/skalene/canopy/pkg/models"
)

// Default limits, used when Config leaves a field zero.
const (
	DefaultMaxConcurrentTasks = 4
	DefaultMaxCallsPerWindow  = 30
	DefaultWindowLength       = time.Minute
	DefaultMaxMemoryFraction  = 0.8
)

// Config holds the capacity limits for a ResourcePool.
type Config struct {
	// MaxConcurrentTasks bounds how many tasks hold a slot at once.
	MaxConcurrentTasks int
	// MaxCallsPerWindow bounds external calls within one window.
	MaxCallsPerWindow int
	// WindowLength is the length of the rolling call-quota window.
	WindowLength time.Duration
	// MaxMemoryFraction bounds the summed memory fraction of admitted
	// tasks (0.0-1.0).
	MaxMemoryFraction float64
}

// Usage is a point-in-time view of pool consumption.
type Usage struct {
	ActiveTasks    int
	CallCount      int
	MemoryFraction float64
	WindowResetAt  time.Time
}

// ResourcePool tracks bounded capacity and grants or denies allocation
// requests. It is the one piece of shared mutable state in the
// scheduling core; all fields are guarded by a single mutex, and
// TryAllocate/Release must be called in matching pairs around a task's
// execution.
type ResourcePool struct {
	mu  sync.Mutex
	cfg Config

	activeTasks    int
	callCount      int
	windowResetAt  time.Time
	memoryFraction float64

	// now is stubbed in tests.
	now func() time.Time
}

// New creates a ResourcePool with the given limits.
func New(cfg Config) *ResourcePool {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}
	if cfg.MaxCallsPerWindow <= 0 {
		cfg.MaxCallsPerWindow = DefaultMaxCallsPerWindow
	}
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = DefaultWindowLength
	}
	if cfg.MaxMemoryFraction <= 0 {
		cfg.MaxMemoryFraction = DefaultMaxMemoryFraction
	}
	p := &ResourcePool{cfg: cfg, now: time.Now}
	p.windowResetAt = p.now()
	return p
}

// TryAllocate attempts to reserve capacity for a task with the given
// requirements. It returns false with no side effects when any limit
// would be exceeded; on success it reserves one slot, consumes the
// requested call quota, and adds the requested memory fraction.
func (p *ResourcePool) TryAllocate(req models.Requirements) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.activeTasks >= p.cfg.MaxConcurrentTasks {
		return false
	}

	// The call window resets lazily: quota is consumed, never returned.
	now := p.now()
	if now.Sub(p.windowResetAt) >= p.cfg.WindowLength {
		p.callCount = 0
		p.windowResetAt = now
	}
	calls := req.Calls()
	if p.callCount+calls > p.cfg.MaxCallsPerWindow {
		return false
	}

	mem := req.MemoryFraction()
	if p.memoryFraction+mem > p.cfg.MaxMemoryFraction {
		return false
	}

	p.activeTasks++
	p.callCount += calls
	p.memoryFraction += mem
	return true
}

// Release returns the slot and memory reserved by a successful
// TryAllocate. Call quota is not returned; it is consumed for the
// window. Counters floor at zero.
func (p *ResourcePool) Release(req models.Requirements) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.activeTasks--
	if p.activeTasks < 0 {
		p.activeTasks = 0
	}
	p.memoryFraction -= req.MemoryFraction()
	if p.memoryFraction < 0 {
		p.memoryFraction = 0
	}
}

// Usage returns a snapshot of current consumption.
func (p *ResourcePool) Usage() Usage {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Usage{
		ActiveTasks:    p.activeTasks,
		CallCount:      p.callCount,
		MemoryFraction: p.memoryFraction,
		WindowResetAt:  p.windowResetAt,
	}
}
