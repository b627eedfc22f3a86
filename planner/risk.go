package planner

import (
	"context"
	"fmt"
	"sort"
)

// RiskPlanner orders hinted steps from lowest to highest risk so cheap
// failures surface early, and plants a verification task after every
// high-risk step.
type RiskPlanner struct{}

func NewRiskPlanner() Planner {
	return &RiskPlanner{}
}

func riskRank(risk string) int {
	switch risk {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

func (p *RiskPlanner) BuildPlan(_ context.Context, objective string, planCtx *Context) (*PlanDraft, error) {
	draft := &PlanDraft{PlannerName: "risk"}

	var steps []StepHint
	if planCtx != nil {
		steps = planCtx.Steps
	}
	if len(steps) == 0 {
		draft.Tasks = []TaskSpec{objectiveTask("objective", objective, planCtx)}
		return draft, nil
	}

	ordered := make([]StepHint, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return riskRank(ordered[i].Risk) < riskRank(ordered[j].Risk)
	})

	var prevKey string
	for i, step := range ordered {
		spec := specFromHint(step, fmt.Sprintf("step_%d", i+1))
		if prevKey != "" {
			spec.DependsOn = []string{prevKey}
		}
		draft.Tasks = append(draft.Tasks, spec)
		prevKey = spec.Key

		if riskRank(step.Risk) == riskRank(RiskHigh) {
			verify := TaskSpec{
				Key:       spec.Key + "_verify",
				Type:      TaskTypeVerification,
				ToolName:  "model_complete",
				ToolArgs:  map[string]any{"prompt": fmt.Sprintf("Verify that step %q completed correctly for objective: %s", spec.Key, objective)},
				DependsOn: []string{spec.Key},
				RiskLevel: RiskLow,
			}
			draft.Tasks = append(draft.Tasks, verify)
			prevKey = verify.Key
		}
	}
	return draft, nil
}
