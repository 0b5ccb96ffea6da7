package inference

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/skalene/canopy/pkg/models"
)

type stubCompleter struct {
	system string
	prompt string
	answer string
	err    error
}

func (s *stubCompleter) Complete(_ context.Context, system, prompt string, _ float64) (string, error) {
	s.system = system
	s.prompt = prompt
	return s.answer, s.err
}

func TestExecute_WorkerTask(t *testing.T) {
	stub := &stubCompleter{answer: "done"}
	x := NewExecutor(stub, 0.2)

	result, err := x.Execute(context.Background(), &models.ExecutionTask{
		ID:        "t1",
		OwnerID:   "worker-a",
		Kind:      models.TaskKindWork,
		Objective: "count the trees",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result["answer"] != "done" || result["owner"] != "worker-a" {
		t.Errorf("result = %v, want answer and owner", result)
	}
	if !strings.Contains(stub.prompt, "count the trees") {
		t.Errorf("prompt = %q, want the objective in it", stub.prompt)
	}
	if !strings.Contains(stub.system, "worker") {
		t.Errorf("system prompt = %q, want worker role", stub.system)
	}
}

func TestExecute_CoordinationUsesCoordinatorRole(t *testing.T) {
	stub := &stubCompleter{answer: "synthesized"}
	x := NewExecutor(stub, 0)

	_, err := x.Execute(context.Background(), &models.ExecutionTask{
		ID:        "c1",
		Kind:      models.TaskKindCoordination,
		Objective: "synthesize",
		Context:   map[string]any{"worker_results": map[string]any{"t1": "r1"}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(stub.system, "coordinator") {
		t.Errorf("system prompt = %q, want coordinator role", stub.system)
	}
	if !strings.Contains(stub.prompt, "worker_results") {
		t.Errorf("prompt = %q, want worker results in context", stub.prompt)
	}
}

func TestExecute_PropagatesClientError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("rate limited")}
	x := NewExecutor(stub, 0)

	_, err := x.Execute(context.Background(), &models.ExecutionTask{ID: "t1", Objective: "o"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("Execute() error = %v, want wrapped client error", err)
	}
}

func TestBuildPrompt_MentionsFailedDependencies(t *testing.T) {
	prompt, err := BuildPrompt(&models.ExecutionTask{
		ID:        "t2",
		Objective: "carry on",
		Context: map[string]any{
			models.ContextKeyDependencyFailures: []string{"t1"},
		},
	})
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if !strings.Contains(prompt, "t1") || !strings.Contains(prompt, "failed") {
		t.Errorf("prompt = %q, want failed dependency warning", prompt)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock("claude-sonnet-4-20250514")
	if got != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("translateModelForBedrock() = %s, want bedrock profile", got)
	}

	// Unknown names pass through untouched.
	if got := translateModelForBedrock("custom-model"); got != "custom-model" {
		t.Errorf("translateModelForBedrock(custom) = %s, want pass-through", got)
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(100, 50)
	tr.Add(10, 5)

	in, out := tr.Total()
	if in != 110 || out != 55 {
		t.Errorf("Total() = %d/%d, want 110/55", in, out)
	}
	if tr.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", tr.Calls())
	}

	tr.Reset()
	in, out = tr.Total()
	if in != 0 || out != 0 || tr.Calls() != 0 {
		t.Error("Reset() did not clear the tracker")
	}
}
