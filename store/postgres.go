package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS missions (
    id TEXT PRIMARY KEY,
    objective TEXT NOT NULL,
    status TEXT DEFAULT 'PENDING',
    resource_class TEXT NOT NULL DEFAULT 'default',
    active_plan_id TEXT,
    adaptive_cycles INTEGER DEFAULT 0,
    total_cost DOUBLE PRECISION DEFAULT 0,
    locked BOOLEAN DEFAULT FALSE,
    result_summary TEXT,
    created_at TIMESTAMPTZ DEFAULT now(),
    finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_missions_resource_class ON missions(resource_class, locked);

CREATE TABLE IF NOT EXISTS mission_plans (
    id TEXT PRIMARY KEY,
    mission_id TEXT NOT NULL REFERENCES missions(id),
    version INTEGER NOT NULL,
    planner_name TEXT NOT NULL,
    status TEXT DEFAULT 'DRAFT',
    score DOUBLE PRECISION DEFAULT 0,
    content_hash TEXT,
    raw_json TEXT,
    created_at TIMESTAMPTZ DEFAULT now(),
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
    started_at TIMESTAMPTZ,
    finished_at TIMESTAMPTZ,
    duration_ms BIGINT DEFAULT 0,
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
    seq BIGINT NOT NULL,
    created_at TIMESTAMPTZ DEFAULT now(),
    UNIQUE(mission_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_mission_events_mission ON mission_events(mission_id, seq);
`

// NewPostgresBundle creates a Bundle backed by PostgreSQL at the given DSN.
func NewPostgresBundle(dsn string) (*Bundle, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Missions: &PostgresMissionStore{pool: pool},
		Plans:    &PostgresPlanStore{pool: pool},
		Tasks:    &PostgresTaskStore{pool: pool},
		Events:   &PostgresEventStore{pool: pool},
		closer: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

type PostgresMissionStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresMissionStore) CreateMission(objective, resourceClass string) (string, error) {
	id := generateID()
	if resourceClass == "" {
		resourceClass = "default"
	}
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO missions (id, objective, resource_class) VALUES ($1, $2, $3)`,
		id, objective, resourceClass,
	)
	if err != nil {
		return "", fmt.Errorf("create mission: %w", err)
	}
	return id, nil
}

const pgMissionSelect = `SELECT id, objective, status, resource_class, active_plan_id, adaptive_cycles, total_cost, locked, result_summary, created_at, finished_at FROM missions`

func (s *PostgresMissionStore) GetMission(id string) (*MissionRecord, error) {
	row := s.pool.QueryRow(context.Background(), pgMissionSelect+` WHERE id = $1`, id)
	return scanPgMission(row)
}

func scanPgMission(row pgx.Row) (*MissionRecord, error) {
	var m MissionRecord
	err := row.Scan(&m.ID, &m.Objective, &m.Status, &m.ResourceClass, &m.ActivePlanID,
		&m.AdaptiveCycles, &m.TotalCost, &m.Locked, &m.ResultSummary, &m.CreatedAt, &m.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresMissionStore) ListMissions(limit int) ([]MissionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(context.Background(),
		pgMissionSelect+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []MissionRecord
	for rows.Next() {
		m, err := scanPgMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}

func (s *PostgresMissionStore) UpdateMissionStatus(id, status string, resultSummary *string) error {
	var finishedAt *time.Time
	if status == "SUCCESS" || status == "FAILED" || status == "ABORTED" {
		now := time.Now()
		finishedAt = &now
	}
	_, err := s.pool.Exec(context.Background(),
		`UPDATE missions SET status = $1, result_summary = COALESCE($2, result_summary), finished_at = COALESCE($3, finished_at) WHERE id = $4`,
		status, resultSummary, finishedAt, id,
	)
	return err
}

func (s *PostgresMissionStore) SetActivePlan(missionID, planID string) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE missions SET active_plan_id = $1 WHERE id = $2`, planID, missionID)
	return err
}

func (s *PostgresMissionStore) IncrementAdaptiveCycles(id string) (int, error) {
	var cycles int
	err := s.pool.QueryRow(context.Background(),
		`UPDATE missions SET adaptive_cycles = adaptive_cycles + 1 WHERE id = $1 RETURNING adaptive_cycles`, id,
	).Scan(&cycles)
	return cycles, err
}

func (s *PostgresMissionStore) AddCost(id string, cost float64) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE missions SET total_cost = total_cost + $1 WHERE id = $2`, cost, id)
	return err
}

func (s *PostgresMissionStore) AcquireLock(missionID string) (bool, error) {
	res, err := s.pool.Exec(context.Background(),
		`UPDATE missions SET locked = TRUE
		 WHERE id = $1
		   AND NOT EXISTS (
		     SELECT 1 FROM missions m2
		     WHERE m2.locked
		       AND m2.resource_class = (SELECT resource_class FROM missions WHERE id = $1)
		   )`,
		missionID,
	)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

func (s *PostgresMissionStore) ReleaseLock(missionID string) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE missions SET locked = FALSE WHERE id = $1`, missionID)
	return err
}

type PostgresPlanStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresPlanStore) CreatePlan(rec *PlanRecord) error {
	ctx := context.Background()
	rec.ID = generateID()
	rec.CreatedAt = time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM mission_plans WHERE mission_id = $1`,
		rec.MissionID,
	).Scan(&rec.Version)
	if err != nil {
		return fmt.Errorf("next plan version: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO mission_plans (id, mission_id, version, planner_name, status, score, content_hash, raw_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.MissionID, rec.Version, rec.PlannerName, rec.Status, rec.Score, rec.ContentHash, rec.RawJSON, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return tx.Commit(ctx)
}

const pgPlanSelect = `SELECT id, mission_id, version, planner_name, status, score, content_hash, raw_json, created_at FROM mission_plans`

func (s *PostgresPlanStore) GetPlan(id string) (*PlanRecord, error) {
	row := s.pool.QueryRow(context.Background(), pgPlanSelect+` WHERE id = $1`, id)
	return scanPgPlan(row)
}

func scanPgPlan(row pgx.Row) (*PlanRecord, error) {
	var p PlanRecord
	var contentHash, rawJSON *string
	err := row.Scan(&p.ID, &p.MissionID, &p.Version, &p.PlannerName, &p.Status, &p.Score, &contentHash, &rawJSON, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if contentHash != nil {
		p.ContentHash = *contentHash
	}
	if rawJSON != nil {
		p.RawJSON = *rawJSON
	}
	return &p, nil
}

func (s *PostgresPlanStore) GetPlansByMission(missionID string) ([]PlanRecord, error) {
	rows, err := s.pool.Query(context.Background(),
		pgPlanSelect+` WHERE mission_id = $1 ORDER BY version`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []PlanRecord
	for rows.Next() {
		p, err := scanPgPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (s *PostgresPlanStore) UpdatePlanStatus(id, status string) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE mission_plans SET status = $1 WHERE id = $2`, status, id)
	return err
}

type PostgresTaskStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresTaskStore) CreateTasks(tasks []*TaskRecord) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, t := range tasks {
		t.ID = generateID()
		dependsOn, err := json.Marshal(t.DependsOn)
		if err != nil {
			return fmt.Errorf("encoding depends_on for task %s: %w", t.TaskKey, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO mission_tasks (id, mission_id, plan_id, task_key, task_type, tool_name, tool_args_json, depends_on_json, status, priority, risk_level)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			t.ID, t.MissionID, t.PlanID, t.TaskKey, t.TaskType, t.ToolName, t.ToolArgsJSON, string(dependsOn), t.Status, t.Priority, t.RiskLevel,
		)
		if err != nil {
			return fmt.Errorf("create task %s: %w", t.TaskKey, err)
		}
	}
	return tx.Commit(ctx)
}

const pgTaskSelect = `SELECT id, mission_id, plan_id, task_key, task_type, tool_name, tool_args_json, depends_on_json, status, priority, risk_level, attempt_count, result, started_at, finished_at, duration_ms FROM mission_tasks`

func (s *PostgresTaskStore) GetTask(id string) (*TaskRecord, error) {
	row := s.pool.QueryRow(context.Background(), pgTaskSelect+` WHERE id = $1`, id)
	return scanPgTask(row)
}

func scanPgTask(row pgx.Row) (*TaskRecord, error) {
	var t TaskRecord
	var toolName, toolArgs, dependsOn, riskLevel *string

	err := row.Scan(&t.ID, &t.MissionID, &t.PlanID, &t.TaskKey, &t.TaskType, &toolName, &toolArgs, &dependsOn,
		&t.Status, &t.Priority, &riskLevel, &t.AttemptCount, &t.Result, &t.StartedAt, &t.FinishedAt, &t.DurationMS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if toolName != nil {
		t.ToolName = *toolName
	}
	if toolArgs != nil {
		t.ToolArgsJSON = *toolArgs
	}
	if riskLevel != nil {
		t.RiskLevel = *riskLevel
	}
	if dependsOn != nil && *dependsOn != "" {
		if err := json.Unmarshal([]byte(*dependsOn), &t.DependsOn); err != nil {
			return nil, fmt.Errorf("decoding depends_on for task %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

func (s *PostgresTaskStore) GetTasksByPlan(planID string) ([]TaskRecord, error) {
	rows, err := s.pool.Query(context.Background(),
		pgTaskSelect+` WHERE plan_id = $1 ORDER BY task_key`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *PostgresTaskStore) UpdateTask(rec *TaskRecord) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE mission_tasks SET status = $1, attempt_count = $2, result = $3, started_at = $4, finished_at = $5, duration_ms = $6 WHERE id = $7`,
		rec.Status, rec.AttemptCount, rec.Result, rec.StartedAt, rec.FinishedAt, rec.DurationMS, rec.ID,
	)
	return err
}

type PostgresEventStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresEventStore) AppendEvent(rec *EventRecord) error {
	rec.ID = generateID()
	rec.CreatedAt = time.Now()
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO mission_events (id, mission_id, task_id, event_type, payload, note, seq, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.MissionID, rec.TaskID, rec.EventType, rec.Payload, rec.Note, rec.Seq, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) GetEventsByMission(missionID string) ([]EventRecord, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, mission_id, task_id, event_type, payload, note, seq, created_at
		 FROM mission_events WHERE mission_id = $1 ORDER BY seq`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var payload, note *string
		if err := rows.Scan(&e.ID, &e.MissionID, &e.TaskID, &e.EventType, &payload, &note, &e.Seq, &e.CreatedAt); err != nil {
			return nil, err
		}
		if payload != nil {
			e.Payload = *payload
		}
		if note != nil {
			e.Note = *note
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
