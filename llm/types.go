package llm

import (
	"context"
	"errors"
	"time"
)

// ErrCapabilityUnavailable is returned when no provider can serve the
// requested model, either because the model hint is unknown or because no
// API key was configured for its provider.
var ErrCapabilityUnavailable = errors.New("no provider available for requested model")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation turn sent to a provider.
type Message struct {
	Role    Role
	Content string
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type ChatResponse struct {
	ID           string
	Content      string
	FinishReason string
	Usage        Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Provider is a single upstream LLM API.
type Provider interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// Request is the provider-agnostic completion request used by planners and
// tools. ModelHint selects the upstream provider by model name prefix.
type Request struct {
	Prompt    string
	System    string
	ModelHint string
	MaxTokens int
}

// Completion is the result of a completed Request.
type Completion struct {
	Text       string
	Model      string
	TokensUsed int
	Cost       float64
	Latency    time.Duration
}

// Completer produces completions, hiding provider routing, retries and
// circuit breaking from callers.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
}
