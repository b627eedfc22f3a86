package plugin

import (
	goplugin "github.com/hashicorp/go-plugin"
)

// Handshake is the handshake config shared by the host and every planner or
// tool plugin binary. A cookie mismatch means the binary was not built as a
// flotilla plugin and is rejected before any RPC happens.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "FLOTILLA_PLUGIN",
	MagicCookieValue: "8f4c1f2ab6d94d2e9a3f0c5e7b1d8a46",
}

// PluginMap is the map of plugin kinds the host can dispense.
var PluginMap = map[string]goplugin.Plugin{
	"planner": &plannerPlugin{},
	"tools":   &toolPlugin{},
}

// PlannerInfo describes a planner served by a plugin binary.
type PlannerInfo struct {
	Name        string
	Version     string
	Description string
}

// PlannerProvider is the contract a planner plugin implements. Both the
// objective context and the returned plan travel as JSON so the wire format
// stays independent of host types.
type PlannerProvider interface {
	// PlannerInfo returns metadata about the served planner
	PlannerInfo() (*PlannerInfo, error)

	// BuildPlan produces a plan draft (JSON) for the objective, or an error
	// when the objective cannot be planned
	BuildPlan(objective string, contextJSON string) (string, error)
}

// ToolInfo describes a tool served by a tool plugin.
type ToolInfo struct {
	Name        string
	Description string
}

// ToolProvider is the contract a tool plugin implements.
type ToolProvider interface {
	// ListTools returns info for all tools this plugin provides
	ListTools() ([]*ToolInfo, error)

	// Invoke runs a tool with a JSON argument payload and returns a JSON
	// result payload
	Invoke(toolName string, payloadJSON string) (string, error)
}
