package tools

import (
	"context"
	"fmt"

	"flotilla/llm"
)

// CompletionTool exposes the LLM client as a task tool, so plans can
// include model calls as ordinary tool invocations.
type CompletionTool struct {
	completer llm.Completer
}

func NewCompletionTool(completer llm.Completer) *CompletionTool {
	return &CompletionTool{completer: completer}
}

func (t *CompletionTool) Name() string {
	return "model_complete"
}

func (t *CompletionTool) Description() string {
	return "Sends a prompt to a language model and returns the completion text."
}

func (t *CompletionTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("model_complete: prompt is required")
	}

	req := &llm.Request{Prompt: prompt}
	if model, ok := args["model"].(string); ok {
		req.ModelHint = model
	}
	if system, ok := args["system"].(string); ok {
		req.System = system
	}
	if maxTokens, ok := args["max_tokens"].(float64); ok {
		req.MaxTokens = int(maxTokens)
	}

	completion, err := t.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Result{
		Success: true,
		Output:  completion.Text,
		Cost:    completion.Cost,
	}, nil
}
