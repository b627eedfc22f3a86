package tools

import (
	"context"
	"fmt"
	"time"
)

// EchoTool returns its message argument unchanged. Useful for wiring
// checks and as a harmless default in examples.
type EchoTool struct{}

func (t *EchoTool) Name() string {
	return "echo"
}

func (t *EchoTool) Description() string {
	return "Returns the provided message unchanged."
}

func (t *EchoTool) Invoke(_ context.Context, args map[string]any) (*Result, error) {
	msg, _ := args["message"].(string)
	return Ok(msg), nil
}

// SleepTool blocks for the requested number of milliseconds, honoring
// cancellation.
type SleepTool struct{}

func (t *SleepTool) Name() string {
	return "sleep"
}

func (t *SleepTool) Description() string {
	return "Sleeps for the given number of milliseconds."
}

func (t *SleepTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	ms, ok := args["duration_ms"].(float64)
	if !ok || ms < 0 {
		return nil, fmt.Errorf("sleep: duration_ms must be a non-negative number")
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return Ok(fmt.Sprintf("slept %dms", int64(ms))), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
