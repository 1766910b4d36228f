package agents_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/estate-agent/agents"
	"github.com/fabfab/estate-agent/knowledge"
	"github.com/fabfab/estate-agent/llm"
	"github.com/fabfab/estate-agent/query"
	"github.com/fabfab/estate-agent/retrieval"
	"github.com/fabfab/estate-agent/routing"
)

type scriptedClient struct {
	replies  []llm.Completion
	requests []llm.Request
	err      error
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return llm.Completion{}, c.err
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

type recordingFinder struct {
	queries []knowledge.PropertyQuery
	found   []knowledge.PropertySummary
}

func (f *recordingFinder) FindProperties(ctx context.Context, q knowledge.PropertyQuery) ([]knowledge.PropertySummary, error) {
	f.queries = append(f.queries, q)
	return f.found, nil
}

type recordingSearcher struct {
	localities []string
	topKs      []int
	sweeps     [][]string
	analyses   []query.Analysis
}

func (s *recordingSearcher) SearchMany(ctx context.Context, queries []string, analysis query.Analysis, topK int) ([]retrieval.Result, error) {
	s.sweeps = append(s.sweeps, queries)
	s.analyses = append(s.analyses, analysis)
	s.topKs = append(s.topKs, topK)
	return []retrieval.Result{{Text: "Skyline Villas private garden", Locality: "Baner", Score: 0.8}}, nil
}

func (s *recordingSearcher) SearchLocality(ctx context.Context, queryText, locality string, topK int) ([]retrieval.Result, error) {
	s.localities = append(s.localities, locality)
	s.topKs = append(s.topKs, topK)
	return []retrieval.Result{{Text: "Evergreen Heights clubhouse with pool", Locality: "Wakad", Score: 0.9}}, nil
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func profile(t *testing.T, kind agents.Kind) agents.Profile {
	t.Helper()
	p, ok := agents.ProfileFor(kind)
	require.True(t, ok)
	return p
}

func TestRunWithoutToolCalls(t *testing.T) {
	client := &scriptedClient{replies: []llm.Completion{{Content: "Evergreen Heights is in Wakad."}}}
	runner := agents.NewRunner(client, nil, nil, quiet())

	out, err := runner.Run(context.Background(), profile(t, agents.KindDetails), []llm.Message{
		{Role: llm.RoleSystem, Content: "Answer from context."},
		{Role: llm.RoleUser, Content: "Tell me about Evergreen Heights"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Evergreen Heights is in Wakad.", out.Answer)
	assert.Empty(t, out.ToolCalls)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Len(t, req.Tools, 2)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.5, *req.Temperature, 1e-9)
	assert.Equal(t, 2000, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[0].Content, "Property AI Guru")
	assert.Contains(t, req.Messages[0].Content, "Answer from context.")
}

func TestRunExecutesToolsAndFinishes(t *testing.T) {
	client := &scriptedClient{replies: []llm.Completion{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: agents.ToolSearchProperties, Arguments: `{"locality":"Wakad","bedrooms":2,"max_price":10000000}`},
			{ID: "call_2", Name: agents.ToolQueryKnowledge, Arguments: `{"query":"amenities","locality":"Wakad"}`},
		}},
		{Content: "Evergreen Heights has 2 BHK homes within budget."},
	}}
	finder := &recordingFinder{found: []knowledge.PropertySummary{{Source: "evergreen.pdf", Title: "Evergreen Heights", Locality: "Wakad"}}}
	searcher := &recordingSearcher{}
	runner := agents.NewRunner(client, finder, searcher, quiet())

	out, err := runner.Run(context.Background(), profile(t, agents.KindBuy), []llm.Message{{Role: llm.RoleUser, Content: "2 BHK in Wakad under 1 crore"}})
	require.NoError(t, err)
	assert.Equal(t, "Evergreen Heights has 2 BHK homes within budget.", out.Answer)
	require.Len(t, out.ToolCalls, 2)
	assert.Empty(t, out.ToolCalls[0].Error)

	require.Len(t, finder.queries, 1)
	q := finder.queries[0]
	assert.Equal(t, "Wakad", q.Locality)
	assert.Equal(t, "2 BHK", q.Bedrooms)
	assert.Nil(t, q.MinLakh)
	require.NotNil(t, q.MaxLakh)
	assert.InDelta(t, 100, *q.MaxLakh, 1e-9)

	assert.Equal(t, []string{"Wakad"}, searcher.localities)
	assert.Equal(t, []int{5}, searcher.topKs)

	require.Len(t, client.requests, 2)
	final := client.requests[1]
	assert.Empty(t, final.Tools)
	msgs := final.Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)
	assert.Len(t, msgs[2].ToolCalls, 2)
	assert.Equal(t, llm.RoleTool, msgs[3].Role)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs[3].Content), &payload))
	assert.Equal(t, "buy", payload["transaction_type"])
	assert.Equal(t, float64(1), payload["count"])
}

func TestRentSearchIgnoresPriceWindow(t *testing.T) {
	client := &scriptedClient{replies: []llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "c", Name: agents.ToolSearchProperties, Arguments: `{"locality":"Baner","max_price":30000,"bedrooms":"2 BHK"}`}}},
		{Content: "done"},
	}}
	finder := &recordingFinder{}
	runner := agents.NewRunner(client, finder, nil, quiet())

	_, err := runner.Run(context.Background(), profile(t, agents.KindRent), []llm.Message{{Role: llm.RoleUser, Content: "2 BHK rentals in Baner under 30k"}})
	require.NoError(t, err)
	require.Len(t, finder.queries, 1)
	assert.Nil(t, finder.queries[0].MaxLakh)
	assert.Equal(t, "2 BHK", finder.queries[0].Bedrooms)
}

func TestUnknownAndFailingToolsReportErrorsToModel(t *testing.T) {
	client := &scriptedClient{replies: []llm.Completion{
		{ToolCalls: []llm.ToolCall{
			{ID: "a", Name: "book_site_visit", Arguments: `{}`},
			{ID: "b", Name: agents.ToolQueryKnowledge, Arguments: `not json`},
			{ID: "c", Name: agents.ToolSearchProperties, Arguments: `{}`},
		}},
		{Content: "I could not look that up."},
	}}
	runner := agents.NewRunner(client, nil, &recordingSearcher{}, quiet())

	out, err := runner.Run(context.Background(), profile(t, agents.KindDetails), []llm.Message{{Role: llm.RoleUser, Content: "book a visit"}})
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 3)
	for _, inv := range out.ToolCalls {
		assert.NotEmpty(t, inv.Error, inv.Name)
	}

	msgs := client.requests[1].Messages
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(msgs[len(msgs)-3].Content), &payload))
	assert.Contains(t, payload["error"], "unknown tool")
}

func TestKnowledgeToolSweepsAlternatives(t *testing.T) {
	client := &scriptedClient{replies: []llm.Completion{
		{ToolCalls: []llm.ToolCall{{
			ID:        "k1",
			Name:      agents.ToolQueryKnowledge,
			Arguments: `{"query":"villas in Baner","alternatives":["independent houses Baner"]}`,
		}}},
		{Content: "Skyline Villas has private gardens."},
	}}
	searcher := &recordingSearcher{}
	runner := agents.NewRunner(client, nil, searcher, quiet())

	out, err := runner.Run(context.Background(), profile(t, agents.KindDetails), []llm.Message{{Role: llm.RoleUser, Content: "villas in Baner"}})
	require.NoError(t, err)
	assert.Equal(t, "Skyline Villas has private gardens.", out.Answer)
	require.Len(t, searcher.sweeps, 1)
	assert.Equal(t, []string{"villas in Baner", "independent houses Baner"}, searcher.sweeps[0])
	assert.Equal(t, []string{"Baner"}, searcher.analyses[0].Locations)
	assert.Empty(t, searcher.localities)
}

func TestRunPropagatesCompletionFailure(t *testing.T) {
	runner := agents.NewRunner(&scriptedClient{err: errors.New("rate limited")}, nil, nil, quiet())
	_, err := runner.Run(context.Background(), profile(t, agents.KindBuy), []llm.Message{{Role: llm.RoleUser, Content: "villas"}})
	assert.Error(t, err)
}

func TestKindFor(t *testing.T) {
	kind, ok := agents.KindFor(routing.StrategyAgentRent)
	assert.True(t, ok)
	assert.Equal(t, agents.KindRent, kind)

	_, ok = agents.KindFor(routing.StrategyDirectRetrieval)
	assert.False(t, ok)
}
