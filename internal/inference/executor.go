package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skalene/canopy/pkg/models"
)

const workerSystemPrompt = `You are a focused worker executing one task of a larger mission.
Complete the objective using only the provided context. Be concise and factual.`

const coordinatorSystemPrompt = `You are a coordinator synthesizing the results of parallel workers.
Combine the provided worker results into one coherent answer to the mission objective.
Note any worker failures and how they limit the synthesis.`

// Completer is the slice of Client the executor needs; tests stub it.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, temperature float64) (string, error)
}

// Executor completes tasks through the inference API. It satisfies the
// engine's TaskExecutor interface.
type Executor struct {
	client      Completer
	temperature float64
}

// NewExecutor creates a task executor backed by the given client.
func NewExecutor(client Completer, temperature float64) *Executor {
	return &Executor{client: client, temperature: temperature}
}

// Execute builds a prompt from the task and returns the model's answer
// as the task result.
func (x *Executor) Execute(ctx context.Context, task *models.ExecutionTask) (map[string]any, error) {
	system := workerSystemPrompt
	if task.Kind == models.TaskKindCoordination {
		system = coordinatorSystemPrompt
	}

	prompt, err := BuildPrompt(task)
	if err != nil {
		return nil, err
	}

	answer, err := x.client.Complete(ctx, system, prompt, x.temperature)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task.ID, err)
	}

	return map[string]any{
		"answer": answer,
		"owner":  task.OwnerID,
	}, nil
}

// BuildPrompt renders the task into the user message sent to the
// model: the objective, the mission context, and any failures of the
// task's dependencies.
func BuildPrompt(task *models.ExecutionTask) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Objective: %s\n", task.Objective)

	if len(task.Context) > 0 {
		ctxJSON, err := json.MarshalIndent(task.Context, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode context for task %s: %w", task.ID, err)
		}
		fmt.Fprintf(&sb, "\nContext:\n%s\n", ctxJSON)
	}

	if failed, ok := task.Context[models.ContextKeyDependencyFailures].([]string); ok && len(failed) > 0 {
		fmt.Fprintf(&sb, "\nWarning: %d upstream task(s) failed (%s). Work with what is available and state the gaps.\n",
			len(failed), strings.Join(failed, ", "))
	}
	return sb.String(), nil
}
