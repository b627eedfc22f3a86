package planner

import (
	"context"
	"fmt"
)

// StructuralPlanner fans the hinted steps out as independent tasks and
// joins them with a single META task, maximizing concurrency for work
// with no inherent ordering.
type StructuralPlanner struct{}

func NewStructuralPlanner() Planner {
	return &StructuralPlanner{}
}

func (p *StructuralPlanner) BuildPlan(_ context.Context, objective string, planCtx *Context) (*PlanDraft, error) {
	draft := &PlanDraft{PlannerName: "structural"}

	var steps []StepHint
	if planCtx != nil {
		steps = planCtx.Steps
	}
	if len(steps) == 0 {
		draft.Tasks = []TaskSpec{objectiveTask("objective", objective, planCtx)}
		return draft, nil
	}

	joinDeps := make([]string, 0, len(steps))
	for i, step := range steps {
		spec := specFromHint(step, fmt.Sprintf("branch_%d", i+1))
		draft.Tasks = append(draft.Tasks, spec)
		joinDeps = append(joinDeps, spec.Key)
	}

	draft.Tasks = append(draft.Tasks, TaskSpec{
		Key:       "join",
		Type:      TaskTypeMeta,
		ToolName:  "model_complete",
		ToolArgs:  map[string]any{"prompt": "Summarize the combined results of all branches for objective: " + objective},
		DependsOn: joinDeps,
		RiskLevel: RiskLow,
	})
	return draft, nil
}
