package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skalene/canopy/internal/graph"
	"github.com/skalene/canopy/internal/pool"
	"github.com/skalene/canopy/internal/sink"
	"github.com/skalene/canopy/pkg/models"
)

// TaskExecutor runs one task and returns its result. Implementations
// must honor ctx cancellation; the engine applies per-task deadlines
// through it.
type TaskExecutor interface {
	Execute(ctx context.Context, task *models.ExecutionTask) (map[string]any, error)
}

// TaskExecutorFunc adapts a plain function to the TaskExecutor interface.
type TaskExecutorFunc func(ctx context.Context, task *models.ExecutionTask) (map[string]any, error)

func (f TaskExecutorFunc) Execute(ctx context.Context, task *models.ExecutionTask) (map[string]any, error) {
	return f(ctx, task)
}

// RequiredConfig contains the minimal required configuration for an Engine.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Pool grants and denies resource admission.
	Pool *pool.ResourcePool
	// Executor runs the mission's tasks.
	Executor TaskExecutor
}

// Option configures an Engine. Use With* functions to create Options.
type Option func(*engineOptions)

// engineOptions holds all optional configuration.
type engineOptions struct {
	logger      *DebugLogger
	control     *ControlWatcher
	missionSink sink.Sink
	monitor     *PerformanceMonitor
	graph       *graph.DependencyGraph
	eventBuffer int
	now         func() time.Time
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithControlWatcher sets the operator control watcher.
func WithControlWatcher(cw *ControlWatcher) Option {
	return func(o *engineOptions) { o.control = cw }
}

// WithSink sets the persistence sink for mission and task records.
func WithSink(s sink.Sink) Option {
	return func(o *engineOptions) { o.missionSink = s }
}

// WithMonitor sets a custom performance monitor (mainly for testing).
func WithMonitor(m *PerformanceMonitor) Option {
	return func(o *engineOptions) { o.monitor = m }
}

// WithGraph sets a custom dependency graph (mainly for testing).
func WithGraph(g *graph.DependencyGraph) Option {
	return func(o *engineOptions) { o.graph = g }
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(o *engineOptions) { o.eventBuffer = n }
}

// WithClock sets the time source (mainly for testing).
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// Engine runs one mission: decomposition, wave planning, and
// admission-gated parallel execution. An Engine is single-use; create
// a new one per mission.
type Engine struct {
	pool     *pool.ResourcePool
	executor TaskExecutor
	graph    *graph.DependencyGraph
	monitor  *PerformanceMonitor
	logger   *DebugLogger
	control  *ControlWatcher
	sink     sink.Sink

	missionID     string
	events        chan Event
	droppedEvents atomic.Int64
	now           func() time.Time
}

// New creates an Engine from required config plus options.
func New(req RequiredConfig, opts ...Option) *Engine {
	o := &engineOptions{eventBuffer: 64, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}
	if o.graph == nil {
		o.graph = graph.New()
	}
	if o.monitor == nil {
		o.monitor = NewPerformanceMonitor(nil, o.logger)
	}
	if o.missionSink == nil {
		o.missionSink = sink.NopSink{}
	}

	e := &Engine{
		pool:      req.Pool,
		executor:  req.Executor,
		graph:     o.graph,
		monitor:   o.monitor,
		logger:    o.logger,
		control:   o.control,
		sink:      o.missionSink,
		missionID: uuid.NewString(),
		events:    make(chan Event, o.eventBuffer),
		now:       o.now,
	}
	e.graph.SetDebugLog(e.logger.Log)
	return e
}

// MissionID returns the identifier assigned to this engine's mission.
func (e *Engine) MissionID() string {
	return e.missionID
}
