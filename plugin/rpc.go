package plugin

import (
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"
)

// plannerPlugin implements goplugin.Plugin over net/rpc for PlannerProvider.
type plannerPlugin struct {
	Impl PlannerProvider
}

func (p *plannerPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &plannerRPCServer{impl: p.Impl}, nil
}

func (p *plannerPlugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &plannerRPCClient{client: c}, nil
}

type BuildPlanArgs struct {
	Objective   string
	ContextJSON string
}

type BuildPlanResp struct {
	PlanJSON string
}

type plannerRPCClient struct {
	client *rpc.Client
}

func (c *plannerRPCClient) PlannerInfo() (*PlannerInfo, error) {
	var resp PlannerInfo
	if err := c.client.Call("Plugin.PlannerInfo", new(interface{}), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *plannerRPCClient) BuildPlan(objective string, contextJSON string) (string, error) {
	args := BuildPlanArgs{Objective: objective, ContextJSON: contextJSON}
	var resp BuildPlanResp
	if err := c.client.Call("Plugin.BuildPlan", args, &resp); err != nil {
		return "", err
	}
	return resp.PlanJSON, nil
}

type plannerRPCServer struct {
	impl PlannerProvider
}

func (s *plannerRPCServer) PlannerInfo(_ interface{}, resp *PlannerInfo) error {
	info, err := s.impl.PlannerInfo()
	if err != nil {
		return err
	}
	*resp = *info
	return nil
}

func (s *plannerRPCServer) BuildPlan(args BuildPlanArgs, resp *BuildPlanResp) error {
	planJSON, err := s.impl.BuildPlan(args.Objective, args.ContextJSON)
	if err != nil {
		return err
	}
	resp.PlanJSON = planJSON
	return nil
}

// toolPlugin implements goplugin.Plugin over net/rpc for ToolProvider.
type toolPlugin struct {
	Impl ToolProvider
}

func (p *toolPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &toolRPCServer{impl: p.Impl}, nil
}

func (p *toolPlugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &toolRPCClient{client: c}, nil
}

type InvokeArgs struct {
	ToolName    string
	PayloadJSON string
}

type InvokeResp struct {
	ResultJSON string
}

type toolRPCClient struct {
	client *rpc.Client
}

func (c *toolRPCClient) ListTools() ([]*ToolInfo, error) {
	var resp []*ToolInfo
	if err := c.client.Call("Plugin.ListTools", new(interface{}), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *toolRPCClient) Invoke(toolName string, payloadJSON string) (string, error) {
	args := InvokeArgs{ToolName: toolName, PayloadJSON: payloadJSON}
	var resp InvokeResp
	if err := c.client.Call("Plugin.Invoke", args, &resp); err != nil {
		return "", err
	}
	return resp.ResultJSON, nil
}

type toolRPCServer struct {
	impl ToolProvider
}

func (s *toolRPCServer) ListTools(_ interface{}, resp *[]*ToolInfo) error {
	tools, err := s.impl.ListTools()
	if err != nil {
		return err
	}
	*resp = tools
	return nil
}

func (s *toolRPCServer) Invoke(args InvokeArgs, resp *InvokeResp) error {
	resultJSON, err := s.impl.Invoke(args.ToolName, args.PayloadJSON)
	if err != nil {
		return err
	}
	resp.ResultJSON = resultJSON
	return nil
}
