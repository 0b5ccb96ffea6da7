// Package metrics keeps duration history for workers so estimates
// survive across missions.
package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/skalene/canopy/pkg/models"
)

// estimateSampleLimit caps how many recent samples feed an estimate.
const estimateSampleLimit = 32

// Store is a SQLite-backed duration history. It implements the
// engine's DurationStore interface.
type Store struct {
	conn *sql.DB
	mu   sync.Mutex
	now  func() time.Time
}

// DefaultPath returns the metrics database path under the project's
// .canopy directory.
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".canopy", "metrics.db")
}

// Open opens the metrics store at the given path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create metrics directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open metrics database: %w", err)
	}

	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS task_durations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			worker_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			recorded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_task_durations_worker ON task_durations(worker_id, recorded_at);
	`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create metrics schema: %w", err)
	}

	return &Store{conn: conn, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Record persists one duration sample for a worker.
func (s *Store) Record(workerID string, kind models.TaskKind, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		INSERT INTO task_durations (worker_id, kind, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?)
	`, workerID, string(kind), d.Milliseconds(), s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record duration for %s: %w", workerID, err)
	}
	return nil
}

// EstimateFor returns the mean of the worker's most recent samples.
// ok is false when the worker has no history.
func (s *Store) EstimateFor(workerID string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.conn.QueryRow(`
		SELECT COUNT(*), COALESCE(AVG(duration_ms), 0) FROM (
			SELECT duration_ms FROM task_durations
			WHERE worker_id = ?
			ORDER BY recorded_at DESC
			LIMIT ?
		)
	`, workerID, estimateSampleLimit)

	var count int
	var avgMs float64
	if err := row.Scan(&count, &avgMs); err != nil {
		return 0, false, fmt.Errorf("estimate for %s: %w", workerID, err)
	}
	if count == 0 {
		return 0, false, nil
	}
	return time.Duration(avgMs) * time.Millisecond, true, nil
}
