package llm

import (
	"context"
	"fmt"

	"github.com/fabfab/estate-agent/apperr"
	"github.com/fabfab/estate-agent/config"
	"github.com/fabfab/estate-agent/resilience"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a model request to run a declared tool. Arguments is JSON.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a callable function with a JSON-schema parameter object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	Messages    []Message
	Tools    []Tool
	// Temperature nil leaves the provider default; 0 asks for greedy decoding.
	Temperature *float64
	// MaxTokens <= 0 leaves the provider default.
	MaxTokens int
}

// Temp is shorthand for setting Request.Temperature.
func Temp(v float64) *float64 {
	return &v
}

type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

type Client interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

type Options struct {
	Provider string
	Model    string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewClient(cfg config.Config) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, apperr.Configuration("OPENAI_API_KEY", "openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	default:
		return nil, apperr.Configuration("LLM_PROVIDER", fmt.Sprintf("unknown llm provider: %s", opts.Provider))
	}
}

// Guarded runs every completion under a resilience policy.
type Guarded struct {
	client Client
	policy *resilience.Policy
}

func NewGuarded(client Client, policy *resilience.Policy) *Guarded {
	return &Guarded{client: client, policy: policy}
}

func (g *Guarded) Complete(ctx context.Context, req Request) (Completion, error) {
	return resilience.Do(ctx, g.policy, "complete", lastUserContent(req.Messages), func(ctx context.Context) (Completion, error) {
		return g.client.Complete(ctx, req)
	})
}

func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			content := []rune(messages[i].Content)
			if len(content) > 120 {
				return string(content[:120]) + "..."
			}
			return string(content)
		}
	}
	return ""
}

var _ Client = (*Guarded)(nil)
