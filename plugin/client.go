package plugin

import (
	"fmt"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// Client manages a single plugin subprocess. The subprocess is started
// lazily on the first Dispense and killed on Close.
type Client struct {
	binaryPath string
	client     *goplugin.Client
}

// NewClient returns a client for the plugin binary at binaryPath. No
// subprocess is started until a provider is dispensed.
func NewClient(binaryPath string) *Client {
	return &Client{binaryPath: binaryPath}
}

func (c *Client) connect() (goplugin.ClientProtocol, error) {
	if c.client == nil {
		c.client = goplugin.NewClient(&goplugin.ClientConfig{
			HandshakeConfig:  Handshake,
			Plugins:          PluginMap,
			Cmd:              exec.Command(c.binaryPath),
			AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
			Logger: hclog.New(&hclog.LoggerOptions{
				Name:  "flotilla-plugin",
				Level: hclog.Error,
			}),
		})
	}
	rpcClient, err := c.client.Client()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start plugin %s: %w", c.binaryPath, err)
	}
	return rpcClient, nil
}

// Planner dispenses the PlannerProvider served by the plugin binary.
func (c *Client) Planner() (PlannerProvider, error) {
	rpcClient, err := c.connect()
	if err != nil {
		return nil, err
	}
	raw, err := rpcClient.Dispense("planner")
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("plugin %s does not serve a planner: %w", c.binaryPath, err)
	}
	provider, ok := raw.(PlannerProvider)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("plugin %s returned an unexpected planner type", c.binaryPath)
	}
	return provider, nil
}

// Tools dispenses the ToolProvider served by the plugin binary.
func (c *Client) Tools() (ToolProvider, error) {
	rpcClient, err := c.connect()
	if err != nil {
		return nil, err
	}
	raw, err := rpcClient.Dispense("tools")
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("plugin %s does not serve tools: %w", c.binaryPath, err)
	}
	provider, ok := raw.(ToolProvider)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("plugin %s returned an unexpected tool type", c.binaryPath)
	}
	return provider, nil
}

// Close kills the plugin subprocess if one was started.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Kill()
		c.client = nil
	}
}
