package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"flotilla/plugin"
)

// WavePlanner is an example external planner served over the plugin
// protocol. It splits an objective into sentence-sized waves and runs
// them strictly in order.
type WavePlanner struct{}

func (p *WavePlanner) PlannerInfo() (*plugin.PlannerInfo, error) {
	return &plugin.PlannerInfo{
		Name:        "wave",
		Version:     "0.1.0",
		Description: "Plans the objective as ordered waves, one sentence per task",
	}, nil
}

type taskSpec struct {
	Key       string         `json:"key"`
	Type      string         `json:"type"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolArgs  map[string]any `json:"tool_args,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty"`
	Priority  int            `json:"priority"`
	RiskLevel string         `json:"risk_level,omitempty"`
}

type planDraft struct {
	PlannerName string     `json:"planner_name"`
	Tasks       []taskSpec `json:"tasks"`
}

func (p *WavePlanner) BuildPlan(objective string, contextJSON string) (string, error) {
	parts := splitWaves(objective)
	if len(parts) == 0 {
		return "", fmt.Errorf("objective has no actionable content")
	}

	draft := planDraft{PlannerName: "wave"}
	prevKey := ""
	for i, part := range parts {
		key := fmt.Sprintf("wave_%d", i+1)
		spec := taskSpec{
			Key:      key,
			Type:     "TOOL",
			ToolName: "echo",
			ToolArgs: map[string]any{"message": part},
			Priority: len(parts) - i,
		}
		if prevKey != "" {
			spec.DependsOn = []string{prevKey}
		}
		draft.Tasks = append(draft.Tasks, spec)
		prevKey = key
	}

	raw, err := json.Marshal(draft)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func splitWaves(objective string) []string {
	var waves []string
	for _, part := range strings.FieldsFunc(objective, func(r rune) bool {
		return r == '.' || r == ';' || r == '\n'
	}) {
		part = strings.TrimSpace(part)
		if part != "" {
			waves = append(waves, part)
		}
	}
	return waves
}

func main() {
	plugin.ServePlanner(&WavePlanner{})
}
