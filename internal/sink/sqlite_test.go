package sink

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/skalene/canopy/pkg/models"
)

func openTestSink(t *testing.T) *SQLiteSink {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "missions.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveMission_UpsertsStatus(t *testing.T) {
	s := openTestSink(t)
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rec := MissionRecord{ID: "m1", Name: "survey", Objective: "map it", Status: "running", StartedAt: started}
	if err := s.SaveMission(rec); err != nil {
		t.Fatalf("SaveMission() error = %v", err)
	}

	rec.Status = "completed"
	rec.EndedAt = started.Add(time.Minute)
	if err := s.SaveMission(rec); err != nil {
		t.Fatalf("SaveMission() update error = %v", err)
	}

	missions, err := s.Missions(10)
	if err != nil {
		t.Fatalf("Missions() error = %v", err)
	}
	if len(missions) != 1 {
		t.Fatalf("len(missions) = %d, want 1 (upsert, not insert)", len(missions))
	}
	got := missions[0]
	if got.Status != "completed" {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
	if !got.EndedAt.Equal(rec.EndedAt) {
		t.Errorf("ended_at = %v, want %v", got.EndedAt, rec.EndedAt)
	}
}

func TestSaveTask_RoundTrip(t *testing.T) {
	s := openTestSink(t)
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(5 * time.Second)

	task := &models.ExecutionTask{
		ID:           "t1",
		MissionID:    "m1",
		OwnerID:      "worker-a",
		Kind:         models.TaskKindWork,
		Objective:    "collect samples",
		Status:       models.TaskStatusCompleted,
		Dependencies: []string{"t0a", "t0b"},
		Result:       map[string]any{"samples": "42"},
		StartTime:    &started,
		EndTime:      &ended,
	}
	if err := s.SaveTask(task); err != nil {
		t.Fatalf("SaveTask() error = %v", err)
	}

	// Updating the same task does not duplicate the row.
	task.Status = models.TaskStatusFailed
	task.Error = "flaked"
	if err := s.SaveTask(task); err != nil {
		t.Fatalf("SaveTask() update error = %v", err)
	}

	tasks, err := s.TasksForMission("m1")
	if err != nil {
		t.Fatalf("TasksForMission() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(tasks))
	}
	got := tasks[0]
	if got.Status != models.TaskStatusFailed || got.Error != "flaked" {
		t.Errorf("status/error = %s/%q, want failed/flaked", got.Status, got.Error)
	}
	if len(got.Dependencies) != 2 || got.Dependencies[0] != "t0a" {
		t.Errorf("dependencies = %v, want [t0a t0b]", got.Dependencies)
	}
	if got.Result["samples"] != "42" {
		t.Errorf("result = %v, want samples=42", got.Result)
	}
	if got.StartTime == nil || !got.StartTime.Equal(started) {
		t.Errorf("start time = %v, want %v", got.StartTime, started)
	}
}

func TestSaveTreeSnapshot_ReplacesEarlierSnapshot(t *testing.T) {
	s := openTestSink(t)

	first := []map[string]any{
		{"id": "n1", "kind": "root", "content": "objective", "confidence": 0.5},
		{"id": "n2", "kind": "hypothesis", "content": "guess", "confidence": 0.8},
	}
	if err := s.SaveTreeSnapshot("sess-1", first); err != nil {
		t.Fatalf("SaveTreeSnapshot() error = %v", err)
	}

	// A later save of the same session replaces, never accumulates.
	second := []map[string]any{
		{"id": "n1", "kind": "root", "content": "objective", "confidence": 0.5},
	}
	if err := s.SaveTreeSnapshot("sess-1", second); err != nil {
		t.Fatalf("SaveTreeSnapshot() update error = %v", err)
	}

	got, err := s.TreeSnapshot("sess-1")
	if err != nil {
		t.Fatalf("TreeSnapshot() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(got))
	}
	if got[0]["id"] != "n1" || got[0]["confidence"] != 0.5 {
		t.Errorf("record = %v", got[0])
	}
}

func TestSaveTreeSnapshot_RejectsMissingID(t *testing.T) {
	s := openTestSink(t)

	err := s.SaveTreeSnapshot("sess-1", []map[string]any{{"kind": "root"}})
	if err == nil {
		t.Fatal("expected error for record without id")
	}

	got, err := s.TreeSnapshot("sess-1")
	if err != nil {
		t.Fatalf("TreeSnapshot() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("rolled-back snapshot left %d records", len(got))
	}
}

func TestTasksForMission_FiltersByMission(t *testing.T) {
	s := openTestSink(t)
	for _, pair := range [][2]string{{"t1", "m1"}, {"t2", "m1"}, {"t3", "m2"}} {
		task := &models.ExecutionTask{
			ID: pair[0], MissionID: pair[1], OwnerID: "w",
			Kind: models.TaskKindWork, Objective: "o", Status: models.TaskStatusPending,
		}
		if err := s.SaveTask(task); err != nil {
			t.Fatalf("SaveTask(%s) error = %v", pair[0], err)
		}
	}

	tasks, err := s.TasksForMission("m1")
	if err != nil {
		t.Fatalf("TasksForMission() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("len(tasks) = %d, want 2", len(tasks))
	}
}
