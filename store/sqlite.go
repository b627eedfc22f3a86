package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS missions (
    id TEXT PRIMARY KEY,
    objective TEXT NOT NULL,
    status TEXT DEFAULT 'PENDING',
    resource_class TEXT NOT NULL DEFAULT 'default',
    active_plan_id TEXT,
    adaptive_cycles INTEGER DEFAULT 0,
    total_cost REAL DEFAULT 0,
    locked INTEGER DEFAULT 0,
    result_summary TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_missions_resource_class ON missions(resource_class, locked);

CREATE TABLE IF NOT EXISTS mission_plans (
    id TEXT PRIMARY KEY,
    mission_id TEXT NOT NULL REFERENCES missions(id),
    version INTEGER NOT NULL,
    planner_name TEXT NOT NULL,
    status TEXT DEFAULT 'DRAFT',
    score REAL DEFAULT 0,
    content_hash TEXT,
    raw_json TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(mission_id, version)
);

CREATE TABLE IF NOT EXISTS mission_tasks (
    id TEXT PRIMARY KEY,
    mission_id TEXT NOT NULL REFERENCES missions(id),
    plan_id TEXT NOT NULL REFERENCES mission_plans(id),
    task_key TEXT NOT NULL,
    task_type TEXT NOT NULL,
    tool_name TEXT,
    tool_args_json TEXT,
    depends_on_json TEXT,
    status TEXT DEFAULT 'PENDING',
    priority INTEGER DEFAULT 0,
    risk_level TEXT,
    attempt_count INTEGER DEFAULT 0,
    result TEXT,
    started_at DATETIME,
    finished_at DATETIME,
    duration_ms INTEGER DEFAULT 0,
    UNIQUE(plan_id, task_key)
);
CREATE INDEX IF NOT EXISTS idx_mission_tasks_plan ON mission_tasks(plan_id);

CREATE TABLE IF NOT EXISTS mission_events (
    id TEXT PRIMARY KEY,
    mission_id TEXT NOT NULL REFERENCES missions(id),
    task_id TEXT,
    event_type TEXT NOT NULL,
    payload TEXT,
    note TEXT,
    seq INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(mission_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_mission_events_mission ON mission_events(mission_id, seq);
`

// NewSQLiteBundle creates a Bundle backed by SQLite at the given path
func NewSQLiteBundle(dbPath string) (*Bundle, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Missions: &SQLiteMissionStore{db: db},
		Plans:    &SQLitePlanStore{db: db},
		Tasks:    &SQLiteTaskStore{db: db},
		Events:   &SQLiteEventStore{db: db},
		closer:   db.Close,
	}, nil
}

type SQLiteMissionStore struct {
	db *sql.DB
}

func (s *SQLiteMissionStore) CreateMission(objective, resourceClass string) (string, error) {
	id := generateID()
	if resourceClass == "" {
		resourceClass = "default"
	}
	_, err := s.db.Exec(
		`INSERT INTO missions (id, objective, resource_class) VALUES (?, ?, ?)`,
		id, objective, resourceClass,
	)
	if err != nil {
		return "", fmt.Errorf("create mission: %w", err)
	}
	return id, nil
}

func (s *SQLiteMissionStore) GetMission(id string) (*MissionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, objective, status, resource_class, active_plan_id, adaptive_cycles, total_cost, locked, result_summary, created_at, finished_at
		 FROM missions WHERE id = ?`, id,
	)
	return scanMission(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (*MissionRecord, error) {
	var m MissionRecord
	var activePlanID, resultSummary sql.NullString
	var finishedAt sql.NullTime
	var locked int

	err := row.Scan(&m.ID, &m.Objective, &m.Status, &m.ResourceClass, &activePlanID,
		&m.AdaptiveCycles, &m.TotalCost, &locked, &resultSummary, &m.CreatedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	m.Locked = locked != 0
	if activePlanID.Valid {
		m.ActivePlanID = &activePlanID.String
	}
	if resultSummary.Valid {
		m.ResultSummary = &resultSummary.String
	}
	if finishedAt.Valid {
		m.FinishedAt = &finishedAt.Time
	}
	return &m, nil
}

func (s *SQLiteMissionStore) ListMissions(limit int) ([]MissionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, objective, status, resource_class, active_plan_id, adaptive_cycles, total_cost, locked, result_summary, created_at, finished_at
		 FROM missions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []MissionRecord
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}

func (s *SQLiteMissionStore) UpdateMissionStatus(id, status string, resultSummary *string) error {
	var finishedAt *time.Time
	if status == "SUCCESS" || status == "FAILED" || status == "ABORTED" {
		now := time.Now()
		finishedAt = &now
	}
	_, err := s.db.Exec(
		`UPDATE missions SET status = ?, result_summary = COALESCE(?, result_summary), finished_at = COALESCE(?, finished_at) WHERE id = ?`,
		status, resultSummary, finishedAt, id,
	)
	return err
}

func (s *SQLiteMissionStore) SetActivePlan(missionID, planID string) error {
	_, err := s.db.Exec(`UPDATE missions SET active_plan_id = ? WHERE id = ?`, planID, missionID)
	return err
}

func (s *SQLiteMissionStore) IncrementAdaptiveCycles(id string) (int, error) {
	_, err := s.db.Exec(`UPDATE missions SET adaptive_cycles = adaptive_cycles + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	var cycles int
	err = s.db.QueryRow(`SELECT adaptive_cycles FROM missions WHERE id = ?`, id).Scan(&cycles)
	return cycles, err
}

func (s *SQLiteMissionStore) AddCost(id string, cost float64) error {
	_, err := s.db.Exec(`UPDATE missions SET total_cost = total_cost + ? WHERE id = ?`, cost, id)
	return err
}

// AcquireLock is a compare-and-set: the update only lands when no other
// mission in the same resource class is locked.
func (s *SQLiteMissionStore) AcquireLock(missionID string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE missions SET locked = 1
		 WHERE id = ?
		   AND NOT EXISTS (
		     SELECT 1 FROM missions m2
		     WHERE m2.locked = 1
		       AND m2.resource_class = (SELECT resource_class FROM missions WHERE id = ?)
		   )`,
		missionID, missionID,
	)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteMissionStore) ReleaseLock(missionID string) error {
	_, err := s.db.Exec(`UPDATE missions SET locked = 0 WHERE id = ?`, missionID)
	return err
}

type SQLitePlanStore struct {
	db *sql.DB
}

func (s *SQLitePlanStore) CreatePlan(rec *PlanRecord) error {
	rec.ID = generateID()
	rec.CreatedAt = time.Now()
	// Version assignment and insert in one transaction so concurrent
	// replans cannot claim the same version
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRow(
		`SELECT COALESCE(MAX(version), 0) + 1 FROM mission_plans WHERE mission_id = ?`,
		rec.MissionID,
	).Scan(&rec.Version)
	if err != nil {
		return fmt.Errorf("next plan version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO mission_plans (id, mission_id, version, planner_name, status, score, content_hash, raw_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MissionID, rec.Version, rec.PlannerName, rec.Status, rec.Score, rec.ContentHash, rec.RawJSON, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return tx.Commit()
}

func (s *SQLitePlanStore) GetPlan(id string) (*PlanRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, mission_id, version, planner_name, status, score, content_hash, raw_json, created_at
		 FROM mission_plans WHERE id = ?`, id,
	)
	return scanPlan(row)
}

func scanPlan(row rowScanner) (*PlanRecord, error) {
	var p PlanRecord
	var contentHash, rawJSON sql.NullString
	err := row.Scan(&p.ID, &p.MissionID, &p.Version, &p.PlannerName, &p.Status, &p.Score, &contentHash, &rawJSON, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ContentHash = contentHash.String
	p.RawJSON = rawJSON.String
	return &p, nil
}

func (s *SQLitePlanStore) GetPlansByMission(missionID string) ([]PlanRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, mission_id, version, planner_name, status, score, content_hash, raw_json, created_at
		 FROM mission_plans WHERE mission_id = ? ORDER BY version`, missionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []PlanRecord
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (s *SQLitePlanStore) UpdatePlanStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE mission_plans SET status = ? WHERE id = ?`, status, id)
	return err
}

type SQLiteTaskStore struct {
	db *sql.DB
}

func (s *SQLiteTaskStore) CreateTasks(tasks []*TaskRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range tasks {
		t.ID = generateID()
		dependsOn, err := json.Marshal(t.DependsOn)
		if err != nil {
			return fmt.Errorf("encoding depends_on for task %s: %w", t.TaskKey, err)
		}
		_, err = tx.Exec(
			`INSERT INTO mission_tasks (id, mission_id, plan_id, task_key, task_type, tool_name, tool_args_json, depends_on_json, status, priority, risk_level)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.MissionID, t.PlanID, t.TaskKey, t.TaskType, t.ToolName, t.ToolArgsJSON, string(dependsOn), t.Status, t.Priority, t.RiskLevel,
		)
		if err != nil {
			return fmt.Errorf("create task %s: %w", t.TaskKey, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteTaskStore) GetTask(id string) (*TaskRecord, error) {
	row := s.db.QueryRow(taskSelect+` WHERE id = ?`, id)
	return scanTask(row)
}

const taskSelect = `SELECT id, mission_id, plan_id, task_key, task_type, tool_name, tool_args_json, depends_on_json, status, priority, risk_level, attempt_count, result, started_at, finished_at, duration_ms FROM mission_tasks`

func scanTask(row rowScanner) (*TaskRecord, error) {
	var t TaskRecord
	var toolName, toolArgs, dependsOn, riskLevel, result sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(&t.ID, &t.MissionID, &t.PlanID, &t.TaskKey, &t.TaskType, &toolName, &toolArgs, &dependsOn,
		&t.Status, &t.Priority, &riskLevel, &t.AttemptCount, &result, &startedAt, &finishedAt, &t.DurationMS)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.ToolName = toolName.String
	t.ToolArgsJSON = toolArgs.String
	t.RiskLevel = riskLevel.String
	if dependsOn.Valid && dependsOn.String != "" {
		if err := json.Unmarshal([]byte(dependsOn.String), &t.DependsOn); err != nil {
			return nil, fmt.Errorf("decoding depends_on for task %s: %w", t.ID, err)
		}
	}
	if result.Valid {
		t.Result = &result.String
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		t.FinishedAt = &finishedAt.Time
	}
	return &t, nil
}

func (s *SQLiteTaskStore) GetTasksByPlan(planID string) ([]TaskRecord, error) {
	rows, err := s.db.Query(taskSelect+` WHERE plan_id = ? ORDER BY task_key`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteTaskStore) UpdateTask(rec *TaskRecord) error {
	_, err := s.db.Exec(
		`UPDATE mission_tasks SET status = ?, attempt_count = ?, result = ?, started_at = ?, finished_at = ?, duration_ms = ? WHERE id = ?`,
		rec.Status, rec.AttemptCount, rec.Result, rec.StartedAt, rec.FinishedAt, rec.DurationMS, rec.ID,
	)
	return err
}

type SQLiteEventStore struct {
	db *sql.DB
}

func (s *SQLiteEventStore) AppendEvent(rec *EventRecord) error {
	rec.ID = generateID()
	rec.CreatedAt = time.Now()
	_, err := s.db.Exec(
		`INSERT INTO mission_events (id, mission_id, task_id, event_type, payload, note, seq, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MissionID, rec.TaskID, rec.EventType, rec.Payload, rec.Note, rec.Seq, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *SQLiteEventStore) GetEventsByMission(missionID string) ([]EventRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, mission_id, task_id, event_type, payload, note, seq, created_at
		 FROM mission_events WHERE mission_id = ? ORDER BY seq`, missionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var taskID, payload, note sql.NullString
		if err := rows.Scan(&e.ID, &e.MissionID, &taskID, &e.EventType, &payload, &note, &e.Seq, &e.CreatedAt); err != nil {
			return nil, err
		}
		if taskID.Valid {
			e.TaskID = &taskID.String
		}
		e.Payload = payload.String
		e.Note = note.String
		events = append(events, e)
	}
	return events, rows.Err()
}
