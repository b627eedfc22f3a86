package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"flotilla/llm"
)

const strategicSystemPrompt = `You are a mission planner. Given an objective, respond with ONLY a JSON array of task objects. Each task has:
  "key": unique snake_case identifier
  "type": one of "TOOL", "SYSTEM", "META", "VERIFICATION"
  "tool_name": the tool to invoke
  "tool_args": object of arguments for the tool
  "depends_on": array of keys this task depends on (may be empty)
  "risk_level": "low", "medium" or "high"
Dependencies must reference keys defined in the same array and must not form a cycle.`

// StrategicPlanner asks a language model to decompose the objective into
// a task graph. The response must be a JSON task array; a fenced code
// block around it is tolerated.
type StrategicPlanner struct {
	completer llm.Completer
	modelHint string
}

func NewStrategicPlanner(completer llm.Completer, modelHint string) Planner {
	return &StrategicPlanner{completer: completer, modelHint: modelHint}
}

func (p *StrategicPlanner) BuildPlan(ctx context.Context, objective string, planCtx *Context) (*PlanDraft, error) {
	prompt := "Objective: " + objective
	if planCtx != nil && len(planCtx.FailureNotes) > 0 {
		prompt += "\n\nA previous plan failed. Avoid these failures:"
		for _, note := range planCtx.FailureNotes {
			prompt += "\n- " + note
		}
	}

	completion, err := p.completer.Complete(ctx, &llm.Request{
		Prompt:    prompt,
		System:    strategicSystemPrompt,
		ModelHint: p.modelHint,
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("strategic planning failed: %w", err)
	}

	tasks, err := parseTaskArray(completion.Text)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("strategic planner produced an empty plan")
	}

	return &PlanDraft{PlannerName: "strategic", Tasks: tasks}, nil
}

func parseTaskArray(text string) ([]TaskSpec, error) {
	text = strings.TrimSpace(text)

	// Strip a markdown code fence if the model wrapped its answer in one
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var tasks []TaskSpec
	if err := json.Unmarshal([]byte(text), &tasks); err != nil {
		return nil, fmt.Errorf("model response is not a valid task array: %w", err)
	}
	return tasks, nil
}
