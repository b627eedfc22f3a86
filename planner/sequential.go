package planner

import (
	"context"
	"fmt"
)

// SequentialPlanner chains the hinted steps into a strict pipeline: each
// task depends on the one before it. With no hints it emits a single task
// that hands the whole objective to a model.
type SequentialPlanner struct{}

func NewSequentialPlanner() Planner {
	return &SequentialPlanner{}
}

func (p *SequentialPlanner) BuildPlan(_ context.Context, objective string, planCtx *Context) (*PlanDraft, error) {
	draft := &PlanDraft{PlannerName: "sequential"}

	var steps []StepHint
	if planCtx != nil {
		steps = planCtx.Steps
	}
	if len(steps) == 0 {
		draft.Tasks = []TaskSpec{objectiveTask("objective", objective, planCtx)}
		return draft, nil
	}

	var prevKey string
	for i, step := range steps {
		spec := specFromHint(step, fmt.Sprintf("step_%d", i+1))
		if prevKey != "" {
			spec.DependsOn = []string{prevKey}
		}
		spec.Priority = len(steps) - i
		draft.Tasks = append(draft.Tasks, spec)
		prevKey = spec.Key
	}
	return draft, nil
}

func specFromHint(step StepHint, fallbackKey string) TaskSpec {
	key := step.Key
	if key == "" {
		key = fallbackKey
	}
	risk := step.Risk
	if risk == "" {
		risk = RiskLow
	}
	return TaskSpec{
		Key:       key,
		Type:      TaskTypeTool,
		ToolName:  step.ToolName,
		ToolArgs:  step.ToolArgs,
		RiskLevel: risk,
	}
}

// objectiveTask builds the fallback single-task plan used when a caller
// supplies no step hints.
func objectiveTask(key, objective string, planCtx *Context) TaskSpec {
	prompt := objective
	if planCtx != nil {
		for _, note := range planCtx.FailureNotes {
			prompt += "\nAvoid this prior failure: " + note
		}
	}
	return TaskSpec{
		Key:      key,
		Type:     TaskTypeTool,
		ToolName: "model_complete",
		ToolArgs: map[string]any{"prompt": prompt},
	}
}
