package tools

import "context"

// Tool is a capability a task can invoke during execution.
type Tool interface {
	// Name returns the tool's unique name
	Name() string

	// Description returns a short description of what the tool does
	Description() string

	// Invoke executes the tool with the given arguments
	Invoke(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is the outcome of a single tool invocation. Err holds a failure
// description when Success is false; invocation-level errors (bad arguments,
// transport failures) come back as the error return instead.
type Result struct {
	Success bool
	Output  string
	Err     string
	Cost    float64
}

// Ok returns a successful result with the given output.
func Ok(output string) *Result {
	return &Result{Success: true, Output: output}
}

// Fail returns a failed result with the given error description.
func Fail(errMsg string) *Result {
	return &Result{Success: false, Err: errMsg}
}
