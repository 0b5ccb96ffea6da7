package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skalene/canopy/internal/mission"
	"github.com/skalene/canopy/internal/sink"
	"github.com/skalene/canopy/pkg/models"
)

// pausePollInterval is how often a paused engine re-checks the signal.
const pausePollInterval = 100 * time.Millisecond

// contextKeyWorkerResults is the task context key under which a
// coordination task receives its dependencies' recorded results.
const contextKeyWorkerResults = "worker_results"

// MissionReport summarizes a finished mission run.
type MissionReport struct {
	MissionID string
	Name      string
	Objective string
	Tasks     []*models.ExecutionTask
	Completed int
	Failed    int
	Cancelled int
	// CycleFallback is true when the dependency graph contained a cycle
	// and ordering degraded to a single final wave for the trapped tasks.
	CycleFallback bool
	// Synthesis is the coordination task's result, if the mission had one.
	Synthesis map[string]any
	Duration  time.Duration
}

// Run executes the mission to completion: decompose, plan waves, and
// run each wave under resource admission. Task failures never abort
// the run; they are captured on the task and surfaced to dependents.
// Run returns an error only for structural problems (a bad dependency
// graph) or mission-level cancellation.
func (e *Engine) Run(ctx context.Context, spec *mission.Spec) (*MissionReport, error) {
	defer close(e.events)

	start := e.now()
	tasks := e.Decompose(spec)
	if err := e.graph.Build(tasks); err != nil {
		return nil, fmt.Errorf("build dependency graph: %w", err)
	}

	e.emit(Event{Type: EventMissionStarted, Message: spec.Objective})
	if err := e.sink.SaveMission(sink.MissionRecord{
		ID:        e.missionID,
		Name:      spec.Name,
		Objective: spec.Objective,
		Status:    string(models.TaskStatusRunning),
		StartedAt: start,
	}); err != nil {
		e.logger.Log("[engine.Run] persist mission failed: %v", err)
	}

	plan := e.graph.Waves()
	e.emit(Event{Type: EventPlanReady, Message: fmt.Sprintf("%d waves over %d tasks", len(plan.Waves), len(tasks))})
	if plan.CycleFallback {
		e.logger.Log("[engine.Run] dependency cycle: ordering degraded to a single final wave")
		e.emit(Event{Type: EventCycleFallback, Message: "dependency cycle detected; trapped tasks run in the final wave"})
	}

	// Tasks trapped in a cycle-fallback wave never see their intra-cycle
	// dependencies resolve; the dependency gate is lifted for them so the
	// fallback wave can still run.
	ungated := make(map[string]bool)
	if plan.CycleFallback {
		for _, id := range plan.Waves[len(plan.Waves)-1] {
			ungated[id] = true
		}
	}

	// queue holds admission-denied tasks in FIFO order; it persists
	// across waves so denied work is retried as capacity frees up.
	var queue []string
	aborted := false
	for i, wave := range plan.Waves {
		if err := e.checkAbort(ctx); err != nil {
			aborted = true
			break
		}
		e.emit(Event{Type: EventWaveStarted, Wave: i, Message: fmt.Sprintf("%d tasks", len(wave))})
		queue = append(queue, wave...)

		var err error
		queue, err = e.drainQueue(ctx, queue, ungated)
		if err != nil {
			aborted = true
			break
		}
	}

	if aborted {
		e.cancelUnresolved(tasks, "mission aborted")
	} else {
		// Whatever is still queued could never be admitted.
		e.cancelQueued(queue, "resource admission denied")
	}

	report := e.buildReport(spec, tasks, plan.CycleFallback, e.now().Sub(start))
	e.emit(Event{Type: EventMissionCompleted, Message: fmt.Sprintf("%d completed, %d failed, %d cancelled", report.Completed, report.Failed, report.Cancelled)})

	status := models.TaskStatusCompleted
	if aborted {
		status = models.TaskStatusCancelled
	}
	if err := e.sink.SaveMission(sink.MissionRecord{
		ID:        e.missionID,
		Name:      spec.Name,
		Objective: spec.Objective,
		Status:    string(status),
		StartedAt: start,
		EndedAt:   e.now(),
	}); err != nil {
		e.logger.Log("[engine.Run] persist mission failed: %v", err)
	}

	if aborted {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		return report, fmt.Errorf("mission aborted by operator signal")
	}
	return report, nil
}

// drainQueue admits and runs tasks from the head of the queue until it
// empties or admission stops making progress. Denied tasks stay queued
// in order; the remaining queue is returned for the next wave. Tasks in
// ungated skip the dependency-resolution check.
func (e *Engine) drainQueue(ctx context.Context, queue []string, ungated map[string]bool) ([]string, error) {
	for len(queue) > 0 {
		if err := e.checkAbort(ctx); err != nil {
			return queue, err
		}
		if err := e.waitWhilePaused(ctx); err != nil {
			return queue, err
		}

		// Admit a prefix of the queue: admission stops at the first task
		// the pool denies or whose dependencies have not resolved,
		// preserving FIFO fairness. The dependency check matters for
		// leftovers: a task denied in an earlier wave can sit queued ahead
		// of its dependent's wave, and admitting both into one batch would
		// run the dependent before its dependency finished.
		var batch []*models.ExecutionTask
		for len(queue) > 0 {
			task := e.graph.Task(queue[0])
			if task == nil {
				queue = queue[1:]
				continue
			}
			if !ungated[task.ID] && !e.graph.DependenciesResolved(task.ID) {
				e.markQueued(task)
				break
			}
			if !e.pool.TryAllocate(task.Requirements) {
				e.markQueued(task)
				break
			}
			batch = append(batch, task)
			queue = queue[1:]
		}

		if len(batch) == 0 {
			// Nothing admitted and nothing running to free capacity: the
			// head task can never fit. A dependency-blocked head cannot
			// reach here because dependencies always sit ahead of their
			// dependents in the queue. Leave the queue for the caller.
			e.logger.Log("[engine.drainQueue] no progress: %d tasks remain queued", len(queue))
			return queue, nil
		}

		e.logger.Log("[engine.drainQueue] admitted batch of %d, %d still queued", len(batch), len(queue))

		g, runCtx := errgroup.WithContext(ctx)
		for _, task := range batch {
			task := task
			g.Go(func() error {
				defer e.pool.Release(task.Requirements)
				e.runOne(runCtx, task)
				// Task errors are recorded on the task, never returned:
				// one failure must not cancel its siblings.
				return nil
			})
		}
		g.Wait()
	}
	return queue, nil
}

// markQueued transitions a denied task to Queued, emitting the event
// only on the first denial.
func (e *Engine) markQueued(task *models.ExecutionTask) {
	if task.Status != models.TaskStatusQueued {
		task.Status = models.TaskStatusQueued
		e.emit(Event{Type: EventTaskQueued, TaskID: task.ID, WorkerID: task.OwnerID})
	}
}

// runOne executes a single admitted task and records the outcome.
func (e *Engine) runOne(ctx context.Context, task *models.ExecutionTask) {
	if failed := e.graph.FailedDependencies(task.ID); len(failed) > 0 {
		if task.Context == nil {
			task.Context = make(map[string]any)
		}
		task.Context[models.ContextKeyDependencyFailures] = failed
	}

	if task.Kind == models.TaskKindCoordination {
		results := make(map[string]any)
		for _, depID := range e.graph.Dependencies(task.ID) {
			if dep := e.graph.Task(depID); dep != nil && dep.Result != nil {
				results[depID] = dep.Result
			}
		}
		if task.Context == nil {
			task.Context = make(map[string]any)
		}
		task.Context[contextKeyWorkerResults] = results
	}

	started := e.now()
	task.StartTime = &started
	task.Status = models.TaskStatusRunning
	e.emit(Event{Type: EventTaskStarted, TaskID: task.ID, WorkerID: task.OwnerID, Message: task.Objective})

	runCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	result, err := e.executor.Execute(runCtx, task)

	ended := e.now()
	task.EndTime = &ended
	if err != nil {
		task.Status = models.TaskStatusFailed
		task.Error = err.Error()
		e.emit(Event{Type: EventTaskFailed, TaskID: task.ID, WorkerID: task.OwnerID, Error: err, Duration: task.Duration()})
	} else {
		task.Status = models.TaskStatusCompleted
		task.Result = result
		e.emit(Event{Type: EventTaskCompleted, TaskID: task.ID, WorkerID: task.OwnerID, Duration: task.Duration()})
	}

	e.monitor.Record(task)
	e.graph.MarkResolved(task.ID)
	if serr := e.sink.SaveTask(task); serr != nil {
		e.logger.Log("[engine.runOne] persist task %s failed: %v", task.ID, serr)
	}
}

// checkAbort returns an error when the mission should stop: context
// cancellation or an operator abort signal.
func (e *Engine) checkAbort(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.control != nil && e.control.ShouldAbort() {
		return fmt.Errorf("abort signal received")
	}
	return nil
}

// waitWhilePaused blocks admission while the operator pause signal is
// present.
func (e *Engine) waitWhilePaused(ctx context.Context) error {
	if e.control == nil {
		return nil
	}
	for e.control.ShouldPause() {
		e.logger.Log("[engine] paused; waiting for signal removal")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pausePollInterval):
		}
		if e.control.ShouldAbort() {
			return fmt.Errorf("abort signal received")
		}
	}
	return nil
}

// cancelQueued marks tasks that never got admitted as cancelled.
func (e *Engine) cancelQueued(queue []string, reason string) {
	for _, id := range queue {
		task := e.graph.Task(id)
		if task == nil || task.Status.Resolved() || task.Status == models.TaskStatusCancelled {
			continue
		}
		e.cancelTask(task, reason)
	}
}

// cancelUnresolved marks every task that has not finished as cancelled.
func (e *Engine) cancelUnresolved(tasks []*models.ExecutionTask, reason string) {
	for _, task := range tasks {
		if task.Status.Resolved() || task.Status == models.TaskStatusCancelled {
			continue
		}
		e.cancelTask(task, reason)
	}
}

func (e *Engine) cancelTask(task *models.ExecutionTask, reason string) {
	task.Status = models.TaskStatusCancelled
	task.Error = reason
	e.graph.MarkResolved(task.ID)
	e.emit(Event{Type: EventTaskCancelled, TaskID: task.ID, WorkerID: task.OwnerID, Message: reason})
	if err := e.sink.SaveTask(task); err != nil {
		e.logger.Log("[engine.cancelTask] persist task %s failed: %v", task.ID, err)
	}
}

// buildReport assembles the final mission summary.
func (e *Engine) buildReport(spec *mission.Spec, tasks []*models.ExecutionTask, cycleFallback bool, elapsed time.Duration) *MissionReport {
	report := &MissionReport{
		MissionID:     e.missionID,
		Name:          spec.Name,
		Objective:     spec.Objective,
		Tasks:         tasks,
		CycleFallback: cycleFallback,
		Duration:      elapsed,
	}
	for _, task := range tasks {
		switch task.Status {
		case models.TaskStatusCompleted:
			report.Completed++
		case models.TaskStatusFailed:
			report.Failed++
		case models.TaskStatusCancelled:
			report.Cancelled++
		}
		if task.Kind == models.TaskKindCoordination && task.Status == models.TaskStatusCompleted {
			report.Synthesis = task.Result
		}
	}
	return report
}
