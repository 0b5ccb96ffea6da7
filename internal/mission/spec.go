// Package mission defines the YAML mission spec an operator hands to
// canopy: the objective, the workers to fan it out across, and their
// resource declarations.
package mission

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/skalene/canopy/pkg/models"
)

// Duration wraps time.Duration so mission YAML can use "5m" notation.
type Duration time.Duration

// UnmarshalYAML parses durations from strings like "30s" or "5m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"5m\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// WorkerSpec describes one worker participating in a mission.
type WorkerSpec struct {
	// ID is the worker's unique identifier. Required.
	ID string `yaml:"id"`
	// Name is the human-readable worker name.
	Name string `yaml:"name,omitempty"`
	// Objective overrides the mission objective for this worker.
	Objective string `yaml:"objective,omitempty"`
	// Calls is the external-call quota this worker's task requests.
	Calls int `yaml:"calls,omitempty"`
	// MemoryFraction is the memory budget fraction the task requests.
	MemoryFraction float64 `yaml:"memory_fraction,omitempty"`
	// DependsOn lists worker IDs whose tasks must resolve first.
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// Requirements converts the spec's resource declarations to the model form.
func (w WorkerSpec) Requirements() models.Requirements {
	req := models.Requirements{models.ResourceSlots: 1}
	if w.Calls > 0 {
		req[models.ResourceCalls] = float64(w.Calls)
	}
	if w.MemoryFraction > 0 {
		req[models.ResourceMemory] = w.MemoryFraction
	}
	return req
}

// Spec is a full mission description.
type Spec struct {
	// Name identifies the mission in logs and persisted records.
	Name string `yaml:"name"`
	// Objective is what the mission should achieve.
	Objective string `yaml:"objective"`
	// Priority orders the mission's tasks for admission; lower is more
	// urgent.
	Priority int `yaml:"priority,omitempty"`
	// Context is opaque data handed to every task executor.
	Context map[string]any `yaml:"context,omitempty"`
	// Workers lists the workers the objective fans out across.
	Workers []WorkerSpec `yaml:"workers"`
	// TaskTimeout bounds each task's execution. Zero means no deadline.
	TaskTimeout Duration `yaml:"task_timeout,omitempty"`
}

// Load reads and validates a mission spec from a YAML file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mission spec: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a mission spec from YAML bytes.
func Parse(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse mission spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the spec for structural problems: missing fields,
// duplicate workers, and dependencies on unknown workers.
func (s *Spec) Validate() error {
	if s.Objective == "" {
		return fmt.Errorf("mission spec: objective is required")
	}
	if len(s.Workers) == 0 {
		return fmt.Errorf("mission spec: at least one worker is required")
	}

	seen := make(map[string]bool, len(s.Workers))
	for i, w := range s.Workers {
		if w.ID == "" {
			return fmt.Errorf("mission spec: worker %d has no id", i)
		}
		if seen[w.ID] {
			return fmt.Errorf("mission spec: duplicate worker id %q", w.ID)
		}
		seen[w.ID] = true
		if w.MemoryFraction < 0 || w.MemoryFraction > 1 {
			return fmt.Errorf("mission spec: worker %q memory_fraction %v out of range", w.ID, w.MemoryFraction)
		}
	}

	for _, w := range s.Workers {
		for _, dep := range w.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("mission spec: worker %q depends on unknown worker %q", w.ID, dep)
			}
		}
	}
	return nil
}
