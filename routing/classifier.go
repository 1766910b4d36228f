package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fabfab/estate-agent/llm"
)

const intentPrompt = `You classify questions sent to a Pune real estate assistant.
Reply with JSON only: {"intent": "...", "confidence": 0.0, "reasoning": "..."}
Intents:
- buy: purchasing, investing in or booking a property
- rent: renting, leasing or tenancy
- details: specifications, floor plans, configurations of a specific property
- knowledge: general questions about a property, locality, amenities or infrastructure
confidence is a number between 0 and 1.`

const relevancePrompt = `Decide whether the user's message is about real estate: properties, housing,
localities, buying, renting, prices, home loans or property documentation.
Answer with exactly one word: YES or NO.`

// LLMClassifier asks the completion model for a JSON intent label.
type LLMClassifier struct {
	client llm.Client
}

func NewLLMClassifier(client llm.Client) *LLMClassifier {
	return &LLMClassifier{client: client}
}

func (c *LLMClassifier) Classify(ctx context.Context, query string) (Classification, error) {
	if c.client == nil {
		return Classification{}, fmt.Errorf("llm client is nil")
	}
	completion, err := c.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: intentPrompt},
			{Role: llm.RoleUser, Content: query},
		},
		Temperature: llm.Temp(0.1),
		MaxTokens:   150,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classify intent: %w", err)
	}
	return ParseClassification(completion.Content)
}

// ParseClassification reads the classifier reply, tolerating code fences and
// surrounding prose, and validates the intent and confidence.
func ParseClassification(reply string) (Classification, error) {
	body := stripFences(reply)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var raw struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}

	intent := Intent(strings.ToLower(strings.TrimSpace(raw.Intent)))
	switch intent {
	case IntentBuy, IntentRent, IntentDetails, IntentKnowledge:
	default:
		return Classification{}, fmt.Errorf("unknown intent %q", raw.Intent)
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return Classification{}, fmt.Errorf("confidence %v out of range", raw.Confidence)
	}
	return Classification{Intent: intent, Confidence: raw.Confidence, Reasoning: strings.TrimSpace(raw.Reasoning)}, nil
}

// LLMRelevance is the model-backed YES/NO relevance check.
type LLMRelevance struct {
	client llm.Client
}

func NewLLMRelevance(client llm.Client) *LLMRelevance {
	return &LLMRelevance{client: client}
}

func (c *LLMRelevance) OnTopic(ctx context.Context, query string) (bool, error) {
	if c.client == nil {
		return false, fmt.Errorf("llm client is nil")
	}
	completion, err := c.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: relevancePrompt},
			{Role: llm.RoleUser, Content: query},
		},
		Temperature: llm.Temp(0),
		MaxTokens:   5,
	})
	if err != nil {
		return false, fmt.Errorf("check relevance: %w", err)
	}

	answer := strings.ToUpper(strings.TrimSpace(stripFences(completion.Content)))
	switch {
	case strings.HasPrefix(answer, "YES"):
		return true, nil
	case strings.HasPrefix(answer, "NO"):
		return false, nil
	default:
		return false, fmt.Errorf("unexpected relevance answer %q", completion.Content)
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var (
	_ Classifier       = (*LLMClassifier)(nil)
	_ RelevanceChecker = (*LLMRelevance)(nil)
)
