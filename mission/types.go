package mission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"flotilla/planner"
	"flotilla/store"
)

// Mission statuses.
const (
	MissionPending  = "PENDING"
	MissionPlanning = "PLANNING"
	MissionRunning  = "RUNNING"
	MissionSuccess  = "SUCCESS"
	MissionFailed   = "FAILED"
	MissionAborted  = "ABORTED"
)

// Plan statuses.
const (
	PlanDraftStatus = "DRAFT"
	PlanValid       = "VALID"
	PlanSuperseded  = "SUPERSEDED"
	PlanFailed      = "FAILED"
)

// Task statuses.
const (
	TaskPending = "PENDING"
	TaskRunning = "RUNNING"
	TaskSuccess = "SUCCESS"
	TaskFailed  = "FAILED"
	TaskRetry   = "RETRY"
	TaskSkipped = "SKIPPED"
)

// Event types recorded in the mission event log.
const (
	EventMissionStarted   = "MISSION_STARTED"
	EventMissionPlanning  = "MISSION_PLANNING"
	EventPlanCreated      = "PLAN_CREATED"
	EventPlanSuperseded   = "PLAN_SUPERSEDED"
	EventReplanTriggered  = "REPLAN_TRIGGERED"
	EventTaskStarted      = "TASK_STARTED"
	EventTaskRetrying     = "TASK_RETRYING"
	EventTaskCompleted    = "TASK_COMPLETED"
	EventTaskFailed       = "TASK_FAILED"
	EventTaskSkipped      = "TASK_SKIPPED"
	EventMissionCompleted = "MISSION_COMPLETED"
	EventMissionFailed    = "MISSION_FAILED"
	EventMissionAborted   = "MISSION_ABORTED"
)

// IsTerminalMissionStatus reports whether a mission status admits no
// further transitions.
func IsTerminalMissionStatus(status string) bool {
	switch status {
	case MissionSuccess, MissionFailed, MissionAborted:
		return true
	}
	return false
}

// IsTerminalTaskStatus reports whether a task status admits no
// further transitions.
func IsTerminalTaskStatus(status string) bool {
	switch status {
	case TaskSuccess, TaskFailed, TaskSkipped:
		return true
	}
	return false
}

// PlanContentHash computes a stable hash over a draft's tasks so that
// identical plans produced by replanning can be recognized. Tasks are
// hashed in key order regardless of the order the planner emitted them.
func PlanContentHash(draft *planner.PlanDraft) (string, error) {
	tasks := make([]planner.TaskSpec, len(draft.Tasks))
	copy(tasks, draft.Tasks)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Key < tasks[j].Key })

	raw, err := json.Marshal(tasks)
	if err != nil {
		return "", fmt.Errorf("hashing plan content: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// BuildPlanRecords converts a planner draft into a plan record and its
// task records, ready to persist. Task and plan IDs are assigned by the
// store on insert.
func BuildPlanRecords(missionID string, draft *planner.PlanDraft, score float64) (*store.PlanRecord, []*store.TaskRecord, error) {
	hash, err := PlanContentHash(draft)
	if err != nil {
		return nil, nil, err
	}

	raw, err := json.Marshal(draft)
	if err != nil {
		return nil, nil, fmt.Errorf("serializing plan: %w", err)
	}

	plan := &store.PlanRecord{
		MissionID:   missionID,
		PlannerName: draft.PlannerName,
		Status:      PlanDraftStatus,
		Score:       score,
		ContentHash: hash,
		RawJSON:     string(raw),
	}

	tasks := make([]*store.TaskRecord, 0, len(draft.Tasks))
	for _, spec := range draft.Tasks {
		argsJSON := ""
		if spec.ToolArgs != nil {
			b, err := json.Marshal(spec.ToolArgs)
			if err != nil {
				return nil, nil, fmt.Errorf("serializing args for task %q: %w", spec.Key, err)
			}
			argsJSON = string(b)
		}

		tasks = append(tasks, &store.TaskRecord{
			MissionID:    missionID,
			TaskKey:      spec.Key,
			TaskType:     string(spec.Type),
			ToolName:     spec.ToolName,
			ToolArgsJSON: argsJSON,
			DependsOn:    append([]string(nil), spec.DependsOn...),
			Status:       TaskPending,
			Priority:     spec.Priority,
			RiskLevel:    spec.RiskLevel,
		})
	}

	return plan, tasks, nil
}
