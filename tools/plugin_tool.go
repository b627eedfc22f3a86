package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"flotilla/plugin"
)

// PluginTool proxies invocations to a tool served by an external plugin
// binary. Arguments and results cross the process boundary as JSON.
type PluginTool struct {
	name        string
	description string
	provider    plugin.ToolProvider
}

// LoadPluginTools lists the tools a plugin binary serves and wraps each
// one. The caller owns the client's lifecycle.
func LoadPluginTools(client *plugin.Client) ([]*PluginTool, error) {
	provider, err := client.Tools()
	if err != nil {
		return nil, err
	}

	infos, err := provider.ListTools()
	if err != nil {
		return nil, fmt.Errorf("listing plugin tools: %w", err)
	}

	wrapped := make([]*PluginTool, 0, len(infos))
	for _, info := range infos {
		wrapped = append(wrapped, &PluginTool{
			name:        info.Name,
			description: info.Description,
			provider:    provider,
		})
	}
	return wrapped, nil
}

func (t *PluginTool) Name() string {
	return t.name
}

func (t *PluginTool) Description() string {
	return t.description
}

func (t *PluginTool) Invoke(_ context.Context, args map[string]any) (*Result, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding args for plugin tool %s: %w", t.name, err)
	}

	resultJSON, err := t.provider.Invoke(t.name, string(payload))
	if err != nil {
		return nil, fmt.Errorf("plugin tool %s: %w", t.name, err)
	}

	var result Result
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		// Plugins may return bare text instead of a structured result
		return Ok(resultJSON), nil
	}
	return &result, nil
}
