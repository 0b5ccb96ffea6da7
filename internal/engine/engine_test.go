package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skalene/canopy/internal/mission"
	"github.com/skalene/canopy/internal/pool"
	"github.com/skalene/canopy/pkg/models"
)

// recordingExecutor captures every task it runs, tracks peak
// concurrency, and keeps an ordered start/end log.
type recordingExecutor struct {
	mu       sync.Mutex
	tasks    map[string]*models.ExecutionTask
	log      []string
	inFlight int
	peak     int
	fail     map[string]bool // owner IDs whose tasks should fail
	delay    time.Duration
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{
		tasks: make(map[string]*models.ExecutionTask),
		fail:  make(map[string]bool),
	}
}

func (r *recordingExecutor) Execute(ctx context.Context, task *models.ExecutionTask) (map[string]any, error) {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.peak {
		r.peak = r.inFlight
	}
	r.tasks[task.OwnerID] = task
	r.log = append(r.log, "start:"+task.OwnerID)
	shouldFail := r.fail[task.OwnerID]
	r.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-ctx.Done():
			r.done(task.OwnerID)
			return nil, ctx.Err()
		case <-time.After(r.delay):
		}
	}

	r.done(task.OwnerID)
	if shouldFail {
		return nil, fmt.Errorf("worker %s broke", task.OwnerID)
	}
	return map[string]any{"owner": task.OwnerID}, nil
}

func (r *recordingExecutor) done(ownerID string) {
	r.mu.Lock()
	r.inFlight--
	r.log = append(r.log, "end:"+ownerID)
	r.mu.Unlock()
}

func (r *recordingExecutor) task(ownerID string) *models.ExecutionTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[ownerID]
}

// logIndex returns the position of an entry in the executor log, or -1.
func (r *recordingExecutor) logIndex(t *testing.T, entry string) int {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.log {
		if e == entry {
			return i
		}
	}
	t.Fatalf("log entry %q never recorded (log: %v)", entry, r.log)
	return -1
}

func workers(ids ...string) []mission.WorkerSpec {
	out := make([]mission.WorkerSpec, 0, len(ids))
	for _, id := range ids {
		out = append(out, mission.WorkerSpec{ID: id})
	}
	return out
}

func newTestEngine(exec TaskExecutor, cfg pool.Config) *Engine {
	return New(RequiredConfig{Pool: pool.New(cfg), Executor: exec})
}

func drainEvents(e *Engine) map[EventType]int {
	counts := make(map[EventType]int)
	for ev := range e.Events() {
		counts[ev.Type]++
	}
	return counts
}

func TestDecompose_OneTaskPerWorker(t *testing.T) {
	e := newTestEngine(newRecordingExecutor(), pool.Config{})
	tasks := e.Decompose(&mission.Spec{
		Objective: "map the canopy",
		Workers:   workers("a", "b"),
	})

	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2 (no coordination at two workers)", len(tasks))
	}
	for _, task := range tasks {
		if task.Kind != models.TaskKindWork {
			t.Errorf("task %s kind = %s, want work", task.ID, task.Kind)
		}
		if task.Objective != "map the canopy" {
			t.Errorf("task %s objective = %q, want mission objective", task.ID, task.Objective)
		}
	}
}

func TestDecompose_CoordinationFanIn(t *testing.T) {
	e := newTestEngine(newRecordingExecutor(), pool.Config{})
	tasks := e.Decompose(&mission.Spec{
		Objective: "survey",
		Workers:   workers("a", "b", "c"),
	})

	if len(tasks) != 4 {
		t.Fatalf("len(tasks) = %d, want 4 (three workers plus fan-in)", len(tasks))
	}

	coord := tasks[len(tasks)-1]
	if coord.Kind != models.TaskKindCoordination {
		t.Fatalf("last task kind = %s, want coordination", coord.Kind)
	}
	if len(coord.Dependencies) != 3 {
		t.Errorf("coordination dependencies = %d, want 3", len(coord.Dependencies))
	}
	if got := coord.Requirements[models.ResourceSlots]; got != 1 {
		t.Errorf("coordination slot requirement = %v, want 1", got)
	}
	if coord.Requirements.Calls() != 0 {
		t.Errorf("coordination call requirement = %d, want 0", coord.Requirements.Calls())
	}
}

func TestRun_AllTasksComplete(t *testing.T) {
	exec := newRecordingExecutor()
	e := newTestEngine(exec, pool.Config{})

	report, err := e.Run(context.Background(), &mission.Spec{
		Name:      "smoke",
		Objective: "do the thing",
		Workers:   workers("a", "b"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Completed != 2 || report.Failed != 0 || report.Cancelled != 0 {
		t.Errorf("report = %d/%d/%d completed/failed/cancelled, want 2/0/0",
			report.Completed, report.Failed, report.Cancelled)
	}

	counts := drainEvents(e)
	if counts[EventMissionStarted] != 1 || counts[EventMissionCompleted] != 1 {
		t.Errorf("mission events = %v, want one started and one completed", counts)
	}
	if counts[EventTaskCompleted] != 2 {
		t.Errorf("task_completed events = %d, want 2", counts[EventTaskCompleted])
	}
}

func TestRun_CoordinationReceivesWorkerResults(t *testing.T) {
	exec := newRecordingExecutor()
	e := newTestEngine(exec, pool.Config{})

	report, err := e.Run(context.Background(), &mission.Spec{
		Objective: "survey",
		Workers:   workers("a", "b", "c"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Completed != 4 {
		t.Fatalf("completed = %d, want 4", report.Completed)
	}

	coord := exec.task("coordinator")
	if coord == nil {
		t.Fatal("coordination task never executed")
	}
	results, ok := coord.Context[contextKeyWorkerResults].(map[string]any)
	if !ok {
		t.Fatalf("coordination context missing %s", contextKeyWorkerResults)
	}
	if len(results) != 3 {
		t.Errorf("worker results = %d entries, want 3", len(results))
	}
	if report.Synthesis == nil {
		t.Error("report.Synthesis is nil, want coordination result")
	}
}

func TestRun_FailedDependencyResolvesAndIsInjected(t *testing.T) {
	exec := newRecordingExecutor()
	exec.fail["a"] = true
	e := newTestEngine(exec, pool.Config{})

	report, err := e.Run(context.Background(), &mission.Spec{
		Objective: "chain",
		Workers: []mission.WorkerSpec{
			{ID: "a"},
			{ID: "b", DependsOn: []string{"a"}},
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// b still ran: failure resolves the dependency rather than blocking it.
	if report.Completed != 1 || report.Failed != 1 {
		t.Fatalf("report = %d completed, %d failed; want 1 and 1", report.Completed, report.Failed)
	}

	b := exec.task("b")
	if b == nil {
		t.Fatal("dependent task never executed")
	}
	failedDeps, ok := b.Context[models.ContextKeyDependencyFailures].([]string)
	if !ok || len(failedDeps) != 1 {
		t.Fatalf("dependent context %s = %v, want one failed dep ID", models.ContextKeyDependencyFailures, b.Context[models.ContextKeyDependencyFailures])
	}
	a := exec.task("a")
	if failedDeps[0] != a.ID {
		t.Errorf("injected failed dep = %s, want %s", failedDeps[0], a.ID)
	}
}

func TestRun_AdmissionBoundsConcurrency(t *testing.T) {
	exec := newRecordingExecutor()
	exec.delay = 20 * time.Millisecond
	e := newTestEngine(exec, pool.Config{MaxConcurrentTasks: 2})

	report, err := e.Run(context.Background(), &mission.Spec{
		Objective: "fan out",
		Workers:   workers("a", "b", "c", "d", "e"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Five workers plus the fan-in all finish despite only two slots.
	if report.Completed != 6 {
		t.Errorf("completed = %d, want 6", report.Completed)
	}
	if exec.peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", exec.peak)
	}

	counts := drainEvents(e)
	if counts[EventTaskQueued] == 0 {
		t.Error("no task_queued events despite slot pressure")
	}
}

func TestDrainQueue_DependentWaitsForQueuedDependency(t *testing.T) {
	exec := newRecordingExecutor()
	exec.delay = 30 * time.Millisecond
	e := newTestEngine(exec, pool.Config{MaxConcurrentTasks: 2})

	// A dependency left queued across a wave boundary ends up in the same
	// queue as its dependent. Capacity alone would admit both at once;
	// the dependent must still wait for the dependency to resolve.
	dep := &models.ExecutionTask{
		ID: "dep", OwnerID: "dep", Kind: models.TaskKindWork,
		Objective: "first", Status: models.TaskStatusQueued,
		Requirements: models.Requirements{models.ResourceSlots: 1},
	}
	child := &models.ExecutionTask{
		ID: "child", OwnerID: "child", Kind: models.TaskKindWork,
		Objective: "second", Status: models.TaskStatusPending,
		Dependencies: []string{"dep"},
		Requirements: models.Requirements{models.ResourceSlots: 1},
	}
	if err := e.graph.Build([]*models.ExecutionTask{dep, child}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	leftover, err := e.drainQueue(context.Background(), []string{"dep", "child"}, nil)
	if err != nil {
		t.Fatalf("drainQueue() error = %v", err)
	}
	if len(leftover) != 0 {
		t.Fatalf("leftover queue = %v, want empty", leftover)
	}

	if dep.Status != models.TaskStatusCompleted || child.Status != models.TaskStatusCompleted {
		t.Fatalf("statuses = %s/%s, want both completed", dep.Status, child.Status)
	}
	if exec.logIndex(t, "start:child") < exec.logIndex(t, "end:dep") {
		t.Error("dependent started before its dependency finished")
	}
}

func TestRun_DependentStartsAfterDependenciesResolve(t *testing.T) {
	exec := newRecordingExecutor()
	exec.delay = 20 * time.Millisecond
	e := newTestEngine(exec, pool.Config{MaxConcurrentTasks: 2})

	report, err := e.Run(context.Background(), &mission.Spec{
		Objective: "pipeline",
		Workers: []mission.WorkerSpec{
			{ID: "fetch"},
			{ID: "scan"},
			{ID: "merge", DependsOn: []string{"fetch", "scan"}},
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Three workers plus the fan-in, all under slot pressure.
	if report.Completed != 4 {
		t.Fatalf("completed = %d, want 4", report.Completed)
	}

	mergeStart := exec.logIndex(t, "start:merge")
	if mergeStart < exec.logIndex(t, "end:fetch") || mergeStart < exec.logIndex(t, "end:scan") {
		t.Error("merge started before both of its dependencies finished")
	}
	coordStart := exec.logIndex(t, "start:coordinator")
	if coordStart < exec.logIndex(t, "end:merge") {
		t.Error("coordination fan-in started before merge finished")
	}
}

func TestRun_UnsatisfiableRequirementCancelled(t *testing.T) {
	exec := newRecordingExecutor()
	e := newTestEngine(exec, pool.Config{MaxMemoryFraction: 0.5})

	report, err := e.Run(context.Background(), &mission.Spec{
		Objective: "too big",
		Workers: []mission.WorkerSpec{
			{ID: "giant", MemoryFraction: 0.9},
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", report.Cancelled)
	}
	task := report.Tasks[0]
	if task.Status != models.TaskStatusCancelled {
		t.Errorf("task status = %s, want cancelled", task.Status)
	}
	if !strings.Contains(task.Error, "admission") {
		t.Errorf("task error = %q, want admission denial reason", task.Error)
	}
}

func TestRun_CycleFallbackRunsEveryTask(t *testing.T) {
	exec := newRecordingExecutor()
	e := newTestEngine(exec, pool.Config{})

	report, err := e.Run(context.Background(), &mission.Spec{
		Objective: "tangled",
		Workers: []mission.WorkerSpec{
			{ID: "a", DependsOn: []string{"b"}},
			{ID: "b", DependsOn: []string{"a"}},
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !report.CycleFallback {
		t.Error("report.CycleFallback = false, want true")
	}
	if report.Completed != 2 {
		t.Errorf("completed = %d, want 2 (cycle members still run)", report.Completed)
	}

	counts := drainEvents(e)
	if counts[EventCycleFallback] != 1 {
		t.Errorf("cycle_fallback events = %d, want 1", counts[EventCycleFallback])
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	exec := newRecordingExecutor()
	e := newTestEngine(exec, pool.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.Run(ctx, &mission.Spec{
		Objective: "never starts",
		Workers:   workers("a"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if report.Cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", report.Cancelled)
	}
}

func TestRun_TaskTimeout(t *testing.T) {
	exec := newRecordingExecutor()
	exec.delay = time.Second
	e := newTestEngine(exec, pool.Config{})

	report, err := e.Run(context.Background(), &mission.Spec{
		Objective:   "slow",
		Workers:     workers("a"),
		TaskTimeout: mission.Duration(10 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Failed != 1 {
		t.Fatalf("failed = %d, want 1 (deadline exceeded)", report.Failed)
	}
	if !strings.Contains(report.Tasks[0].Error, "deadline") {
		t.Errorf("task error = %q, want deadline exceeded", report.Tasks[0].Error)
	}
}

func TestMonitorEstimateFeedsDecomposition(t *testing.T) {
	monitor := NewPerformanceMonitor(nil, nil)
	start := time.Now()
	end := start.Add(3 * time.Second)
	monitor.Record(&models.ExecutionTask{OwnerID: "a", StartTime: &start, EndTime: &end})

	e := New(
		RequiredConfig{Pool: pool.New(pool.Config{}), Executor: newRecordingExecutor()},
		WithMonitor(monitor),
	)
	tasks := e.Decompose(&mission.Spec{Objective: "o", Workers: workers("a", "b")})

	var a, b *models.ExecutionTask
	for _, task := range tasks {
		switch task.OwnerID {
		case "a":
			a = task
		case "b":
			b = task
		}
	}
	if a.EstimatedDuration != 3*time.Second {
		t.Errorf("estimate for seen worker = %v, want 3s", a.EstimatedDuration)
	}
	if b.EstimatedDuration != defaultEstimate {
		t.Errorf("estimate for unseen worker = %v, want default", b.EstimatedDuration)
	}
}
