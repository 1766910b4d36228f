package routing_test

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/estate-agent/catalogue"
	"github.com/fabfab/estate-agent/llm"
	"github.com/fabfab/estate-agent/routing"
)

func newRouter(opts routing.Options) *routing.Router {
	return routing.NewRouter(catalogue.Default(), opts, log.New(io.Discard, "", 0))
}

func TestGreetingShortCircuit(t *testing.T) {
	router := newRouter(routing.Options{})

	for _, q := range []string{"Hello", "hi there!", "Good morning", "how are you?"} {
		decision := router.Route(context.Background(), q, "")
		assert.Equal(t, routing.StrategyGreeting, decision.Strategy, q)
	}

	assert.False(t, router.IsGreeting("hi, show me villas in Baner"))
	assert.False(t, router.IsGreeting("which flats have a gym"))
	assert.False(t, router.IsGreeting("this is a shipment"))
}

func TestRelevanceGateRefusesOffTopic(t *testing.T) {
	router := newRouter(routing.Options{})

	decision := router.Route(context.Background(), "What's the weather today?", "")
	assert.Equal(t, routing.StrategyRefusal, decision.Strategy)
	assert.Empty(t, decision.Intent)

	assert.True(t, router.OnTopic(context.Background(), "is the weather in Baner good for villas"))
	assert.True(t, router.OnTopic(context.Background(), "Tell me about Evergreen Heights"))
}

type stubRelevance struct {
	onTopic bool
	err     error
	calls   int
}

func (s *stubRelevance) OnTopic(ctx context.Context, query string) (bool, error) {
	s.calls++
	return s.onTopic, s.err
}

func TestRelevanceCheckerConsultedOnlyWhenUndecided(t *testing.T) {
	relevance := &stubRelevance{onTopic: false}
	router := newRouter(routing.Options{Relevance: relevance})

	assert.True(t, router.OnTopic(context.Background(), "2 BHK in Wakad"))
	assert.Equal(t, 0, relevance.calls)

	assert.False(t, router.OnTopic(context.Background(), "who won yesterday"))
	assert.Equal(t, 1, relevance.calls)

	relevance.err = errors.New("timeout")
	assert.True(t, router.OnTopic(context.Background(), "who won yesterday"))
}

func TestRulePolicy(t *testing.T) {
	router := newRouter(routing.Options{})

	cases := []struct {
		query    string
		intent   routing.Intent
		strategy routing.Strategy
	}{
		{"Tell me about Evergreen Heights", routing.IntentKnowledge, routing.StrategyAgentDetails},
		{"I want to purchase a 2 BHK in Wakad", routing.IntentBuy, routing.StrategyAgentBuy},
		{"flats for rent near Hinjewadi for a tenant", routing.IntentRent, routing.StrategyAgentRent},
		{"floor plans and carpet area for Blue Ridge", routing.IntentDetails, routing.StrategyAgentDetails},
		{"tell me about the locality amenities and connectivity of Baner", routing.IntentKnowledge, routing.StrategyDirectRetrieval},
		{"Show me properties in Wakad", routing.IntentKnowledge, routing.StrategyAgentDetails},
	}

	for _, tc := range cases {
		decision := router.Route(context.Background(), tc.query, "")
		assert.Equal(t, tc.intent, decision.Intent, tc.query)
		assert.Equal(t, tc.strategy, decision.Strategy, tc.query)
		assert.NotEmpty(t, decision.Reasoning, tc.query)
	}
}

func TestRuleClassifierConfidence(t *testing.T) {
	rules := routing.NewRuleClassifier(catalogue.Default())

	one := rules.Classify("Tell me about Evergreen Heights")
	assert.InDelta(t, 0.7, one.Confidence, 1e-9)

	none := rules.Classify("Evergreen Heights")
	assert.Equal(t, routing.IntentKnowledge, none.Intent)
	assert.InDelta(t, 0.5, none.Confidence, 1e-9)

	many := rules.Classify("buy or invest, purchase and book with booking ownership")
	assert.Equal(t, routing.IntentBuy, many.Intent)
	assert.InDelta(t, 0.95, many.Confidence, 1e-9)

	nested := rules.Classify("floor plans please")
	assert.InDelta(t, 0.7, nested.Confidence, 1e-9)
	assert.Equal(t, "matched details keywords: floor plans", nested.Reasoning)

	tie := rules.Classify("buy or rent")
	assert.Equal(t, routing.IntentBuy, tie.Intent)

	assert.Equal(t, routing.IntentKnowledge, rules.Classify("my parent lives nearby").Intent)
}

func TestForcedStrategyBypassesGate(t *testing.T) {
	router := newRouter(routing.Options{})

	decision := router.Route(context.Background(), "What's the weather today?", routing.StrategyAgentRent)
	assert.Equal(t, routing.StrategyAgentRent, decision.Strategy)
	assert.Equal(t, routing.IntentRent, decision.Intent)
	assert.True(t, decision.Forced)
}

func TestParseStrategy(t *testing.T) {
	s, err := routing.ParseStrategy(" Agent_Buy ")
	require.NoError(t, err)
	assert.Equal(t, routing.StrategyAgentBuy, s)

	s, err = routing.ParseStrategy("")
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = routing.ParseStrategy("agent_sell")
	assert.Error(t, err)

	assert.True(t, routing.StrategyAgentDetails.IsAgent())
	assert.False(t, routing.StrategyDirectRetrieval.IsAgent())
}

type stubClient struct {
	content string
	err     error
}

func (s stubClient) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	return llm.Completion{Content: s.content}, s.err
}

func TestLLMClassifierUsedWhenValid(t *testing.T) {
	classifier := routing.NewLLMClassifier(stubClient{content: "```json\n{\"intent\": \"rent\", \"confidence\": 0.92, \"reasoning\": \"asks about leasing\"}\n```"})
	router := newRouter(routing.Options{Classifier: classifier})

	decision := router.Route(context.Background(), "Need a 2 BHK in Baner", "")
	assert.Equal(t, routing.IntentRent, decision.Intent)
	assert.InDelta(t, 0.92, decision.Confidence, 1e-9)
	assert.Equal(t, routing.StrategyAgentRent, decision.Strategy)
}

func TestLLMClassifierFailureFallsBackToRules(t *testing.T) {
	for _, client := range []stubClient{
		{err: errors.New("timeout")},
		{content: "I think this is about buying"},
		{content: `{"intent": "sell", "confidence": 0.9}`},
		{content: `{"intent": "buy", "confidence": 7}`},
	} {
		router := newRouter(routing.Options{Classifier: routing.NewLLMClassifier(client)})
		decision := router.Route(context.Background(), "Tell me about Evergreen Heights", "")
		assert.Equal(t, routing.IntentKnowledge, decision.Intent)
		assert.InDelta(t, 0.7, decision.Confidence, 1e-9)
		assert.True(t, strings.HasPrefix(decision.Reasoning, "classification failed"), decision.Reasoning)
	}
}

func TestParseClassificationToleratesProse(t *testing.T) {
	c, err := routing.ParseClassification(`Sure! {"intent":"Details","confidence":0.6,"reasoning":"floor plan"} Hope that helps.`)
	require.NoError(t, err)
	assert.Equal(t, routing.IntentDetails, c.Intent)
}

func TestLLMRelevance(t *testing.T) {
	yes, err := routing.NewLLMRelevance(stubClient{content: "Yes."}).OnTopic(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, yes)

	no, err := routing.NewLLMRelevance(stubClient{content: "NO"}).OnTopic(context.Background(), "q")
	require.NoError(t, err)
	assert.False(t, no)

	_, err = routing.NewLLMRelevance(stubClient{content: "maybe"}).OnTopic(context.Background(), "q")
	assert.Error(t, err)
}
