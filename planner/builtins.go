package planner

import "flotilla/llm"

// RegisterBuiltins wires the stock planners into a registry. The strategic
// planner is only registered when a completer is available.
func RegisterBuiltins(registry *Registry, completer llm.Completer, modelHint string) {
	registry.RegisterBuiltin(Blueprint{
		Name:        "sequential",
		Version:     "1.0.0",
		Description: "Chains hinted steps into a strict pipeline.",
		New:         NewSequentialPlanner,
	})
	registry.RegisterBuiltin(Blueprint{
		Name:        "risk",
		Version:     "1.0.0",
		Description: "Runs low-risk steps first and verifies high-risk ones.",
		New:         NewRiskPlanner,
	})
	registry.RegisterBuiltin(Blueprint{
		Name:        "structural",
		Version:     "1.0.0",
		Description: "Fans independent steps out and joins their results.",
		New:         NewStructuralPlanner,
	})
	if completer != nil {
		registry.RegisterBuiltin(Blueprint{
			Name:        "strategic",
			Version:     "1.0.0",
			Description: "Uses a language model to decompose the objective.",
			New: func() Planner {
				return NewStrategicPlanner(completer, modelHint)
			},
		})
	}
}
