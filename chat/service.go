// Package chat answers property questions: it routes the query, retrieves
// brochure passages, and composes the reply directly or through an agent.
package chat

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/fabfab/estate-agent/agents"
	"github.com/fabfab/estate-agent/compose"
	"github.com/fabfab/estate-agent/llm"
	"github.com/fabfab/estate-agent/query"
	"github.com/fabfab/estate-agent/retrieval"
	"github.com/fabfab/estate-agent/routing"
)

const (
	defaultTopK = 5

	// DegradedConfidence marks answers built without a completion.
	DegradedConfidence = 0.3

	SearchApology = "I'm sorry, I couldn't search the property records right now. Please try again in a moment."

	snippetRuneLimit = 500
)

type Kind string

const (
	KindGreeting Kind = "greeting"
	KindRefusal  Kind = "refusal"
	KindGrounded Kind = "grounded"
	KindAdvisory Kind = "advisory"
	KindDegraded Kind = "degraded"
)

// Searcher is the retrieval surface the service needs.
type Searcher interface {
	Search(ctx context.Context, queryText string, analysis query.Analysis, topK int) ([]retrieval.Result, error)
}

type Deps struct {
	Router    *routing.Router
	Analyzer  *query.Analyzer
	Retriever Searcher
	Composer  *compose.Composer
	// Agents runs the agent strategies. When nil they are answered like
	// direct retrieval.
	Agents *agents.Runner
	LLM    llm.Client
	// Sessions is optional; without it only explicit history is used.
	Sessions SessionStore
}

type Options struct {
	TopK            int
	Temperature     *float64
	MaxTokens       int
	HistoryCapacity int
}

type Request struct {
	Query     string
	SessionID string
	// History, when non-nil, replaces the stored session history.
	History        []llm.Message
	ForcedStrategy routing.Strategy
	TopK           int
}

type Source struct {
	Source       string  `json:"source"`
	Title        string  `json:"title,omitempty"`
	Locality     string  `json:"locality"`
	PropertyType string  `json:"property_type"`
	Snippet      string  `json:"snippet"`
	Score        float64 `json:"score"`
	Chunks       int     `json:"chunks"`
}

type Response struct {
	Answer     string              `json:"answer"`
	Kind       Kind                `json:"kind"`
	Confidence float64             `json:"confidence"`
	Context    []retrieval.Result  `json:"retrieved_context"`
	Sources    []Source            `json:"sources,omitempty"`
	Routing    routing.Decision    `json:"routing"`
	Analysis   *query.Analysis     `json:"analysis,omitempty"`
	ToolCalls  []agents.Invocation `json:"tool_calls,omitempty"`
	History    []llm.Message       `json:"history,omitempty"`
}

type Service struct {
	deps   Deps
	opts   Options
	logger *log.Logger
}

func NewService(deps Deps, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if deps.Analyzer == nil {
		deps.Analyzer = query.NewAnalyzer(nil)
	}
	if deps.Composer == nil {
		deps.Composer = compose.New("")
	}
	if deps.Router == nil {
		deps.Router = routing.NewRouter(nil, routing.Options{}, logger)
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = DefaultHistoryCapacity
	}
	return &Service{deps: deps, opts: opts, logger: logger}
}

// Ask answers one question. Only an empty query is an error; every failure of
// an external call is folded into a degraded or advisory response.
func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return Response{}, fmt.Errorf("query cannot be empty")
	}

	history := s.history(ctx, req)
	decision := s.deps.Router.Route(ctx, q, req.ForcedStrategy)

	var resp Response
	switch decision.Strategy {
	case routing.StrategyGreeting:
		resp = Response{Answer: compose.GreetingText, Kind: KindGreeting, Confidence: 1}
	case routing.StrategyRefusal:
		resp = Response{Answer: compose.RefusalText, Kind: KindRefusal, Confidence: 1}
	default:
		resp = s.answer(ctx, q, req.TopK, decision, history)
	}
	resp.Routing = decision
	if resp.Context == nil {
		resp.Context = []retrieval.Result{}
	}

	resp.History = s.remember(ctx, req.SessionID, history,
		llm.Message{Role: llm.RoleUser, Content: q},
		llm.Message{Role: llm.RoleAssistant, Content: resp.Answer},
	)
	return resp, nil
}

func (s *Service) answer(ctx context.Context, q string, topK int, decision routing.Decision, history []llm.Message) Response {
	analysis := s.deps.Analyzer.Analyze(q)
	if topK <= 0 {
		topK = s.opts.TopK
	}

	if s.deps.Retriever == nil {
		s.logger.Printf("retriever is not configured; answering %q without context", q)
		return Response{Answer: SearchApology, Kind: KindDegraded, Analysis: &analysis}
	}

	results, err := s.deps.Retriever.Search(ctx, q, analysis, topK)
	if err != nil {
		s.logger.Printf("retrieval failed for %q: %v", q, err)
		return Response{Answer: SearchApology, Kind: KindDegraded, Analysis: &analysis}
	}

	in := compose.Input{Query: q, Analysis: analysis, Results: results, History: history}
	if len(results) == 0 {
		return s.advisory(ctx, in)
	}

	resp := Response{
		Kind:       KindGrounded,
		Confidence: compose.GroundedConfidence,
		Context:    results,
		Sources:    mergeSources(results),
		Analysis:   &analysis,
	}

	answer, calls, err := s.complete(ctx, decision.Strategy, s.deps.Composer.Messages(in))
	resp.ToolCalls = calls
	if err != nil {
		s.logger.Printf("completion failed for %q: %v", q, err)
		resp.Answer = compose.Degraded(q, results)
		resp.Kind = KindDegraded
		resp.Confidence = DegradedConfidence
		return resp
	}
	resp.Answer = answer
	return resp
}

func (s *Service) advisory(ctx context.Context, in compose.Input) Response {
	resp := Response{
		Answer:     compose.AdvisoryFallback,
		Kind:       KindAdvisory,
		Confidence: compose.AdvisoryConfidence,
		Analysis:   &in.Analysis,
	}
	if s.deps.LLM == nil {
		return resp
	}
	completion, err := s.deps.LLM.Complete(ctx, llm.Request{
		Messages:    s.deps.Composer.AdvisoryMessages(in),
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		s.logger.Printf("advisory completion failed for %q: %v", in.Query, err)
		return resp
	}
	if text := strings.TrimSpace(completion.Content); text != "" {
		resp.Answer = text
	}
	return resp
}

// complete hands agent strategies to the runner with their profile and
// answers everything else with a plain completion.
func (s *Service) complete(ctx context.Context, strategy routing.Strategy, messages []llm.Message) (string, []agents.Invocation, error) {
	if kind, ok := agents.KindFor(strategy); ok && s.deps.Agents != nil {
		profile, _ := agents.ProfileFor(kind)
		outcome, err := s.deps.Agents.Run(ctx, profile, messages)
		if err != nil {
			return "", outcome.ToolCalls, err
		}
		return strings.TrimSpace(outcome.Answer), outcome.ToolCalls, nil
	}

	if s.deps.LLM == nil {
		return "", nil, fmt.Errorf("llm client is not configured")
	}
	completion, err := s.deps.LLM.Complete(ctx, llm.Request{
		Messages:    messages,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(completion.Content), nil, nil
}

func (s *Service) history(ctx context.Context, req Request) []llm.Message {
	if req.History != nil {
		return tail(req.History, s.opts.HistoryCapacity)
	}
	if req.SessionID == "" || s.deps.Sessions == nil {
		return nil
	}
	messages, err := s.deps.Sessions.Load(ctx, req.SessionID)
	if err != nil {
		s.logger.Printf("load session %s failed: %v", req.SessionID, err)
		return nil
	}
	return messages
}

// remember returns the updated bounded history and persists the new turn
// when a session is in use.
func (s *Service) remember(ctx context.Context, sessionID string, history []llm.Message, turn ...llm.Message) []llm.Message {
	ring := NewHistory(s.opts.HistoryCapacity)
	ring.Add(history...)
	ring.Add(turn...)

	if sessionID != "" && s.deps.Sessions != nil {
		if err := s.deps.Sessions.Append(ctx, sessionID, turn...); err != nil {
			s.logger.Printf("save session %s failed: %v", sessionID, err)
		}
	}
	return ring.Messages()
}

// ResetSession clears the stored history for sessionID.
func (s *Service) ResetSession(ctx context.Context, sessionID string) error {
	if s.deps.Sessions == nil || sessionID == "" {
		return nil
	}
	return s.deps.Sessions.Reset(ctx, sessionID)
}

// mergeSources groups results by document, keeping the best score and the
// distinct snippets.
func mergeSources(results []retrieval.Result) []Source {
	grouped := make(map[string]*Source, len(results))
	order := make([]string, 0, len(results))
	for _, result := range results {
		source, ok := grouped[result.Source]
		if !ok {
			source = &Source{
				Source:       result.Source,
				Title:        result.Title,
				Locality:     result.Locality,
				PropertyType: result.PropertyType,
				Score:        result.Score,
			}
			grouped[result.Source] = source
			order = append(order, result.Source)
		} else if result.Score > source.Score {
			source.Score = result.Score
		}
		source.Chunks++

		snippet := strings.TrimSpace(result.Text)
		if runes := []rune(snippet); len(runes) > snippetRuneLimit {
			snippet = string(runes[:snippetRuneLimit]) + "..."
		}
		if source.Snippet == "" {
			source.Snippet = snippet
		} else if !strings.Contains(source.Snippet, snippet) {
			source.Snippet += "\n---\n" + snippet
		}
	}

	sources := make([]Source, 0, len(grouped))
	for _, key := range order {
		sources = append(sources, *grouped[key])
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Score > sources[j].Score
	})
	return sources
}

func tail(messages []llm.Message, n int) []llm.Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
