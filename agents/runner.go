package agents

import (
	"context"
	"fmt"
	"log"

	"github.com/fabfab/estate-agent/llm"
	"github.com/fabfab/estate-agent/query"
)

// Invocation records one tool call for the response audit trail.
type Invocation struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Outcome struct {
	Answer    string
	ToolCalls []Invocation
}

type Runner struct {
	client   llm.Client
	finder   PropertyFinder
	searcher KnowledgeSearcher
	analyzer *query.Analyzer
	logger   *log.Logger
}

// NewRunner wires the shared agent loop. finder and searcher may be nil; the
// matching tool then reports an error to the model.
func NewRunner(client llm.Client, finder PropertyFinder, searcher KnowledgeSearcher, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{client: client, finder: finder, searcher: searcher, analyzer: query.NewAnalyzer(nil), logger: logger}
}

// WithAnalyzer swaps the analyzer used to read localities out of knowledge
// tool queries, so a custom catalogue applies there too.
func (r *Runner) WithAnalyzer(analyzer *query.Analyzer) *Runner {
	if analyzer != nil {
		r.analyzer = analyzer
	}
	return r
}

// Run sends messages with the profile persona in front and the tools
// attached. Any tool calls are executed, their results appended, and a final
// completion is requested without tools.
func (r *Runner) Run(ctx context.Context, profile Profile, messages []llm.Message) (Outcome, error) {
	if r.client == nil {
		return Outcome{}, fmt.Errorf("llm client is nil")
	}

	conversation := withPersona(profile.Persona, messages)
	first, err := r.client.Complete(ctx, llm.Request{
		Messages:    conversation,
		Tools:       toolDefinitions(),
		Temperature: llm.Temp(profile.Temperature),
		MaxTokens:   profile.MaxTokens,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%s completion: %w", profile.Name, err)
	}
	if len(first.ToolCalls) == 0 {
		return Outcome{Answer: first.Content}, nil
	}

	conversation = append(conversation, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   first.Content,
		ToolCalls: first.ToolCalls,
	})

	invocations := make([]Invocation, 0, len(first.ToolCalls))
	for _, call := range first.ToolCalls {
		inv := Invocation{Name: call.Name, Arguments: call.Arguments}
		result, execErr := r.execute(ctx, profile, call)
		if execErr != nil {
			r.logger.Printf("%s tool %s failed: %v", profile.Name, call.Name, execErr)
			inv.Error = execErr.Error()
			result = errorPayload(execErr)
		} else {
			inv.Result = result
		}
		invocations = append(invocations, inv)
		conversation = append(conversation, llm.Message{
			Role:       llm.RoleTool,
			Content:    result,
			ToolCallID: call.ID,
		})
	}

	final, err := r.client.Complete(ctx, llm.Request{
		Messages:    conversation,
		Temperature: llm.Temp(profile.Temperature),
		MaxTokens:   profile.MaxTokens,
	})
	if err != nil {
		return Outcome{ToolCalls: invocations}, fmt.Errorf("%s completion after tools: %w", profile.Name, err)
	}
	return Outcome{Answer: final.Content, ToolCalls: invocations}, nil
}

// withPersona prefixes the first system message with persona, or inserts one.
func withPersona(persona string, messages []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	if persona == "" {
		return append(out, messages...)
	}
	if len(messages) > 0 && messages[0].Role == llm.RoleSystem {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: persona + "\n\n" + messages[0].Content})
		return append(out, messages[1:]...)
	}
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: persona})
	return append(out, messages...)
}
