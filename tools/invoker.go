package tools

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Invoker looks up tools in a registry and applies a per-invocation
// timeout. A timeout or cancellation is reported as a failed Result rather
// than an error so callers can treat it like any other tool failure.
type Invoker struct {
	registry *Registry
	timeout  time.Duration
	logger   hclog.Logger
}

func NewInvoker(registry *Registry, timeout time.Duration, logger hclog.Logger) *Invoker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Invoker{registry: registry, timeout: timeout, logger: logger}
}

func (i *Invoker) Invoke(ctx context.Context, toolName string, args map[string]any) (*Result, error) {
	tool, err := i.registry.Get(toolName)
	if err != nil {
		return nil, err
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := tool.Invoke(ctx, args)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			i.logger.Warn("tool invocation timed out", "tool", toolName, "elapsed", elapsed)
			return Fail("tool " + toolName + " timed out"), nil
		}
		return nil, err
	}

	i.logger.Debug("tool invoked", "tool", toolName, "success", result.Success, "elapsed", elapsed)
	return result, nil
}
