package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Bundle holds all stores for tracking mission execution.
type Bundle struct {
	Missions MissionStore
	Plans    PlanStore
	Tasks    TaskStore
	Events   EventStore
	closer   func() error
}

// Close cleans up the bundle resources
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// MissionRecord is the persisted shape of a mission.
type MissionRecord struct {
	ID             string     `json:"id"`
	Objective      string     `json:"objective"`
	Status         string     `json:"status"`
	ResourceClass  string     `json:"resourceClass"`
	ActivePlanID   *string    `json:"activePlanId,omitempty"`
	AdaptiveCycles int        `json:"adaptiveCycles"`
	TotalCost      float64    `json:"totalCost"`
	Locked         bool       `json:"locked"`
	ResultSummary  *string    `json:"resultSummary,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

// MissionStore tracks missions and their cross-mission resource locks.
type MissionStore interface {
	CreateMission(objective, resourceClass string) (id string, err error)
	GetMission(id string) (*MissionRecord, error)
	ListMissions(limit int) ([]MissionRecord, error)
	UpdateMissionStatus(id, status string, resultSummary *string) error
	SetActivePlan(missionID, planID string) error
	IncrementAdaptiveCycles(id string) (int, error)
	AddCost(id string, cost float64) error

	// AcquireLock atomically takes the mission's resource-class lock.
	// Returns false when another mission in the same class already
	// holds it.
	AcquireLock(missionID string) (bool, error)
	ReleaseLock(missionID string) error
}

// PlanRecord is the persisted shape of one plan version. Plans are never
// deleted; superseding marks the prior version SUPERSEDED.
type PlanRecord struct {
	ID          string    `json:"id"`
	MissionID   string    `json:"missionId"`
	Version     int       `json:"version"`
	PlannerName string    `json:"plannerName"`
	Status      string    `json:"status"`
	Score       float64   `json:"score"`
	ContentHash string    `json:"contentHash"`
	RawJSON     string    `json:"rawJson"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PlanStore tracks plan versions per mission.
type PlanStore interface {
	// CreatePlan persists a new plan, assigning its id and the next
	// version number for the mission.
	CreatePlan(rec *PlanRecord) error
	GetPlan(id string) (*PlanRecord, error)
	GetPlansByMission(missionID string) ([]PlanRecord, error)
	UpdatePlanStatus(id, status string) error
}

// TaskRecord is the persisted shape of one task in a plan.
type TaskRecord struct {
	ID           string     `json:"id"`
	MissionID    string     `json:"missionId"`
	PlanID       string     `json:"planId"`
	TaskKey      string     `json:"taskKey"`
	TaskType     string     `json:"taskType"`
	ToolName     string     `json:"toolName"`
	ToolArgsJSON string     `json:"toolArgsJson"`
	DependsOn    []string   `json:"dependsOn"`
	Status       string     `json:"status"`
	Priority     int        `json:"priority"`
	RiskLevel    string     `json:"riskLevel"`
	AttemptCount int        `json:"attemptCount"`
	Result       *string    `json:"result,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	DurationMS   int64      `json:"durationMs"`
}

// TaskStore tracks the tasks belonging to plan versions.
type TaskStore interface {
	// CreateTasks persists a plan's tasks, assigning ids.
	CreateTasks(tasks []*TaskRecord) error
	GetTask(id string) (*TaskRecord, error)
	GetTasksByPlan(planID string) ([]TaskRecord, error)
	UpdateTask(rec *TaskRecord) error
}

// EventRecord is one append-only mission event. Seq orders events within
// a mission.
type EventRecord struct {
	ID        string    `json:"id"`
	MissionID string    `json:"missionId"`
	TaskID    *string   `json:"taskId,omitempty"`
	EventType string    `json:"eventType"`
	Payload   string    `json:"payload,omitempty"`
	Note      string    `json:"note,omitempty"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventStore is the append-only mission event trail. Events are never
// mutated or deleted.
type EventStore interface {
	AppendEvent(rec *EventRecord) error
	GetEventsByMission(missionID string) ([]EventRecord, error)
}

func generateID() string {
	return uuid.New().String()
}
