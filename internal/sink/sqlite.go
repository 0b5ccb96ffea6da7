package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skalene/canopy/pkg/models"
)

// SQLiteSink persists mission runs to a local SQLite database with WAL
// mode enabled for concurrent reads.
type SQLiteSink struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// DefaultPath returns the mission database path under the XDG data dir.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "canopy", "missions.db")
}

// ProjectPath returns the project-local mission database path.
func ProjectPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".canopy", "missions.db")
}

// Open opens an SQLite sink at the given path, creating parent
// directories and applying pending migrations.
func Open(path string) (*SQLiteSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteSink{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the path to the database file.
func (s *SQLiteSink) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// migrate applies all pending schema migrations.
func (s *SQLiteSink) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Missions},
		{2, migrationV2Tasks},
		{3, migrationV3TreeNodes},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1Missions = `
CREATE TABLE IF NOT EXISTS missions (
	id TEXT PRIMARY KEY,
	name TEXT,
	objective TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'running',
	started_at DATETIME NOT NULL,
	ended_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_missions_status ON missions(status);
`

const migrationV2Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	mission_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	objective TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	dependencies TEXT,
	result TEXT,
	error TEXT,
	started_at DATETIME,
	ended_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tasks_mission_id ON tasks(mission_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`

const migrationV3TreeNodes = `
CREATE TABLE IF NOT EXISTS tree_nodes (
	session_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	record TEXT NOT NULL,
	saved_at DATETIME NOT NULL,
	PRIMARY KEY (session_id, node_id)
);

CREATE INDEX IF NOT EXISTS idx_tree_nodes_session ON tree_nodes(session_id);
`

// SaveMission inserts or updates a mission record.
func (s *SQLiteSink) SaveMission(m MissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var endedAt any
	if !m.EndedAt.IsZero() {
		endedAt = formatTime(m.EndedAt)
	}

	_, err := s.conn.Exec(`
		INSERT INTO missions (id, name, objective, status, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			ended_at = excluded.ended_at
	`, m.ID, m.Name, m.Objective, m.Status, formatTime(m.StartedAt), endedAt)
	if err != nil {
		return fmt.Errorf("save mission %s: %w", m.ID, err)
	}
	return nil
}

// SaveTask inserts or updates a task's final state. Result maps are
// stored as JSON.
func (s *SQLiteSink) SaveTask(t *models.ExecutionTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result any
	if t.Result != nil {
		data, err := json.Marshal(t.Result)
		if err != nil {
			return fmt.Errorf("encode result for task %s: %w", t.ID, err)
		}
		result = string(data)
	}

	var startedAt, endedAt any
	if t.StartTime != nil {
		startedAt = formatTime(*t.StartTime)
	}
	if t.EndTime != nil {
		endedAt = formatTime(*t.EndTime)
	}

	_, err := s.conn.Exec(`
		INSERT INTO tasks (id, mission_id, owner_id, kind, objective, status, dependencies, result, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at
	`, t.ID, t.MissionID, t.OwnerID, string(t.Kind), t.Objective, string(t.Status),
		strings.Join(t.Dependencies, ","), result, t.Error, startedAt, endedAt)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// SaveTreeSnapshot persists one reasoning tree as plain node records,
// replacing any earlier snapshot of the same session.
func (s *SQLiteSink) SaveTreeSnapshot(sessionID string, records []map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM tree_nodes WHERE session_id = ?", sessionID); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear snapshot for %s: %w", sessionID, err)
	}

	savedAt := formatTime(time.Now())
	for _, rec := range records {
		nodeID, _ := rec["id"].(string)
		if nodeID == "" {
			tx.Rollback()
			return fmt.Errorf("snapshot record for %s missing node id", sessionID)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode snapshot node %s: %w", nodeID, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO tree_nodes (session_id, node_id, record, saved_at)
			VALUES (?, ?, ?, ?)
		`, sessionID, nodeID, string(data), savedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("save snapshot node %s: %w", nodeID, err)
		}
	}
	return tx.Commit()
}

// TreeSnapshot returns the persisted node records of one session.
func (s *SQLiteSink) TreeSnapshot(sessionID string) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query("SELECT record FROM tree_nodes WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan snapshot node: %w", err)
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode snapshot node: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Missions returns persisted mission records, most recent first.
func (s *SQLiteSink) Missions(limit int) ([]MissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(`
		SELECT id, name, objective, status, started_at, ended_at
		FROM missions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var out []MissionRecord
	for rows.Next() {
		var m MissionRecord
		var started string
		var ended sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &m.Objective, &m.Status, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		if t, err := parseTime(started); err == nil {
			m.StartedAt = t
		}
		if ended.Valid {
			if t, err := parseTime(ended.String); err == nil {
				m.EndedAt = t
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TasksForMission returns the persisted tasks of one mission.
func (s *SQLiteSink) TasksForMission(missionID string) ([]*models.ExecutionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(`
		SELECT id, mission_id, owner_id, kind, objective, status, dependencies, result, error, started_at, ended_at
		FROM tasks WHERE mission_id = ? ORDER BY started_at
	`, missionID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.ExecutionTask
	for rows.Next() {
		var t models.ExecutionTask
		var kind, status string
		var deps, result, taskErr, started, ended sql.NullString
		if err := rows.Scan(&t.ID, &t.MissionID, &t.OwnerID, &kind, &t.Objective, &status, &deps, &result, &taskErr, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Kind = models.TaskKind(kind)
		t.Status = models.TaskStatus(status)
		if deps.Valid && deps.String != "" {
			t.Dependencies = strings.Split(deps.String, ",")
		}
		if result.Valid && result.String != "" {
			if err := json.Unmarshal([]byte(result.String), &t.Result); err != nil {
				return nil, fmt.Errorf("decode result for task %s: %w", t.ID, err)
			}
		}
		if taskErr.Valid {
			t.Error = taskErr.String
		}
		t.StartTime = parseNullableTime(started)
		t.EndTime = parseNullableTime(ended)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}
