package planner

import "context"

// TaskType classifies what a planned task does when executed.
type TaskType string

const (
	TaskTypeTool         TaskType = "TOOL"
	TaskTypeSystem       TaskType = "SYSTEM"
	TaskTypeMeta         TaskType = "META"
	TaskTypeVerification TaskType = "VERIFICATION"
)

// Risk levels attached to task specs by planners.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// TaskSpec is one task in a plan draft. Key must be unique within the
// draft; DependsOn entries reference other keys in the same draft.
type TaskSpec struct {
	Key       string         `json:"key"`
	Type      TaskType       `json:"type"`
	ToolName  string         `json:"tool_name"`
	ToolArgs  map[string]any `json:"tool_args,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty"`
	Priority  int            `json:"priority,omitempty"`
	RiskLevel string         `json:"risk_level,omitempty"`
}

// PlanDraft is a planner's proposed task set before validation and
// persistence.
type PlanDraft struct {
	PlannerName string     `json:"planner_name"`
	Tasks       []TaskSpec `json:"tasks"`
}

// StepHint is a caller-supplied suggestion about work the plan should
// include. Planners are free to reorder, augment, or wrap hints.
type StepHint struct {
	Key      string         `json:"key"`
	ToolName string         `json:"tool_name"`
	ToolArgs map[string]any `json:"tool_args,omitempty"`
	Risk     string         `json:"risk,omitempty"`
}

// Context carries everything a planner may consult while building a plan.
// FailureNotes accumulate across adaptive cycles so replans can avoid a
// prior plan's mistakes.
type Context struct {
	Steps        []StepHint `json:"steps,omitempty"`
	FailureNotes []string   `json:"failure_notes,omitempty"`
}

// Planner converts an objective into a plan draft.
type Planner interface {
	BuildPlan(ctx context.Context, objective string, planCtx *Context) (*PlanDraft, error)
}
