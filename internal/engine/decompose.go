package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/skalene/canopy/internal/mission"
	"github.com/skalene/canopy/pkg/models"
)

// coordinationFanInThreshold is the worker count above which the
// decomposition adds a synthetic coordination task to synthesize the
// individual results.
const coordinationFanInThreshold = 2

// Decompose turns a mission spec into execution tasks: one per worker,
// carrying that worker's objective and resource declarations, plus a
// coordination fan-in task depending on all of them when the mission
// spans more than two workers.
func (e *Engine) Decompose(spec *mission.Spec) []*models.ExecutionTask {
	missionID := e.missionID

	// Worker IDs map to task IDs so depends_on in the spec can be
	// rewritten into task dependencies.
	taskIDByWorker := make(map[string]string, len(spec.Workers))
	for _, w := range spec.Workers {
		taskIDByWorker[w.ID] = uuid.NewString()
	}

	tasks := make([]*models.ExecutionTask, 0, len(spec.Workers)+1)
	for _, w := range spec.Workers {
		objective := w.Objective
		if objective == "" {
			objective = spec.Objective
		}

		deps := make([]string, 0, len(w.DependsOn))
		for _, dep := range w.DependsOn {
			deps = append(deps, taskIDByWorker[dep])
		}

		tasks = append(tasks, &models.ExecutionTask{
			ID:                taskIDByWorker[w.ID],
			MissionID:         missionID,
			OwnerID:           w.ID,
			Kind:              models.TaskKindWork,
			Objective:         objective,
			Context:           cloneContext(spec.Context),
			Priority:          spec.Priority,
			Requirements:      w.Requirements(),
			EstimatedDuration: e.monitor.Estimate(w.ID),
			Timeout:           spec.TaskTimeout.Std(),
			Dependencies:      deps,
			Status:            models.TaskStatusPending,
		})
	}

	if len(spec.Workers) > coordinationFanInThreshold {
		deps := make([]string, 0, len(tasks))
		for _, t := range tasks {
			deps = append(deps, t.ID)
		}
		tasks = append(tasks, &models.ExecutionTask{
			ID:        uuid.NewString(),
			MissionID: missionID,
			OwnerID:   "coordinator",
			Kind:      models.TaskKindCoordination,
			Objective: fmt.Sprintf("synthesize the results of %d worker tasks for: %s", len(deps), spec.Objective),
			Context:   cloneContext(spec.Context),
			Priority:  spec.Priority,
			// The fan-in only reads recorded results, so it asks for a
			// bare slot and nothing else.
			Requirements: models.Requirements{models.ResourceSlots: 1},
			Timeout:      spec.TaskTimeout.Std(),
			Dependencies: deps,
			Status:       models.TaskStatusPending,
		})
	}

	e.logger.Log("[engine.Decompose] mission %s: %d workers -> %d tasks", missionID, len(spec.Workers), len(tasks))
	return tasks
}

func cloneContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
