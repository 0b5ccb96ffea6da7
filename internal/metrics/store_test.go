package metrics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/skalene/canopy/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEstimateFor_NoHistory(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.EstimateFor("ghost")
	if err != nil {
		t.Fatalf("EstimateFor() error = %v", err)
	}
	if ok {
		t.Error("EstimateFor() ok = true with no history")
	}
}

func TestRecordAndEstimate(t *testing.T) {
	s := openTestStore(t)

	for _, d := range []time.Duration{2 * time.Second, 4 * time.Second} {
		if err := s.Record("worker-a", models.TaskKindWork, d); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	// Another worker's samples must not bleed into the estimate.
	if err := s.Record("worker-b", models.TaskKindWork, time.Minute); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, ok, err := s.EstimateFor("worker-a")
	if err != nil {
		t.Fatalf("EstimateFor() error = %v", err)
	}
	if !ok {
		t.Fatal("EstimateFor() ok = false after recording")
	}
	if got != 3*time.Second {
		t.Errorf("EstimateFor() = %v, want 3s", got)
	}
}
