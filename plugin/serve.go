package plugin

import (
	goplugin "github.com/hashicorp/go-plugin"
)

// ServePlanner blocks, serving the given planner provider to the host
// process. Call from a plugin binary's main.
func ServePlanner(impl PlannerProvider) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"planner": &plannerPlugin{Impl: impl},
		},
	})
}

// ServeTools blocks, serving the given tool provider to the host process.
func ServeTools(impl ToolProvider) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"tools": &toolPlugin{Impl: impl},
		},
	})
}
