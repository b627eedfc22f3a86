package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"flotilla/retry"
)

const defaultModel = "claude-3-5-haiku-20241022"

// Client routes completion requests to the provider owning the requested
// model and wraps each upstream call with retries and a per-provider
// circuit breaker.
type Client struct {
	providers map[string]Provider
	breakers  map[string]*retry.Breaker
	policy    retry.Policy
	logger    hclog.Logger
}

type ClientOption func(*Client)

func WithProvider(name string, p Provider) ClientOption {
	return func(c *Client) {
		c.providers[name] = p
		c.breakers[name] = retry.NewBreaker(5, 30*time.Second)
	}
}

func WithRetryPolicy(policy retry.Policy) ClientOption {
	return func(c *Client) {
		c.policy = policy
	}
}

func WithLogger(logger hclog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]Provider),
		breakers:  make(map[string]*retry.Breaker),
		policy:    retry.DefaultPolicy(),
		logger:    hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// providerFor maps a model name to the provider that serves it.
func providerFor(model string) string {
	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "openai"
	case strings.HasPrefix(model, "gemini"):
		return "gemini"
	default:
		return ""
	}
}

func (c *Client) Complete(ctx context.Context, req *Request) (*Completion, error) {
	model := req.ModelHint
	if model == "" {
		model = defaultModel
	}

	providerName := providerFor(model)
	if providerName == "" {
		return nil, fmt.Errorf("%w: unknown model %q", ErrCapabilityUnavailable, model)
	}
	provider, ok := c.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s not configured", ErrCapabilityUnavailable, providerName)
	}
	breaker := c.breakers[providerName]

	chatReq := &ChatRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
	}
	if req.System != "" {
		chatReq.Messages = append(chatReq.Messages, Message{Role: RoleSystem, Content: req.System})
	}
	chatReq.Messages = append(chatReq.Messages, Message{Role: RoleUser, Content: req.Prompt})

	var resp *ChatResponse
	start := time.Now()
	err := c.policy.Do(ctx, func() error {
		if err := breaker.Allow(); err != nil {
			return fmt.Errorf("provider %s: %w", providerName, err)
		}
		var chatErr error
		resp, chatErr = provider.Chat(ctx, chatReq)
		breaker.Record(chatErr)
		if chatErr != nil {
			c.logger.Warn("completion attempt failed", "provider", providerName, "model", model, "error", chatErr)
		}
		return chatErr
	})
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("completion via %s failed: %w", providerName, err)
	}

	tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	cost := CalculateCost(model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	c.logger.Debug("completion finished",
		"provider", providerName, "model", model,
		"tokens", tokens, "cost", cost, "latency", latency)

	return &Completion{
		Text:       resp.Content,
		Model:      model,
		TokensUsed: tokens,
		Cost:       cost,
		Latency:    latency,
	}, nil
}
