// Package routing decides how a query is answered: a greeting, a refusal,
// direct retrieval or one of the property agents.
package routing

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/estate-agent/catalogue"
)

type Intent string

const (
	IntentBuy       Intent = "buy"
	IntentRent      Intent = "rent"
	IntentDetails   Intent = "details"
	IntentKnowledge Intent = "knowledge"
)

type Strategy string

const (
	StrategyDirectRetrieval Strategy = "direct_retrieval"
	StrategyAgentBuy        Strategy = "agent_buy"
	StrategyAgentRent       Strategy = "agent_rent"
	StrategyAgentDetails    Strategy = "agent_details"
	StrategyRefusal         Strategy = "refusal"
	StrategyGreeting        Strategy = "greeting"
)

// directRetrievalThreshold is the knowledge confidence above which the
// agent wrapper is skipped.
const directRetrievalThreshold = 0.8

var strategies = []Strategy{
	StrategyDirectRetrieval,
	StrategyAgentBuy,
	StrategyAgentRent,
	StrategyAgentDetails,
	StrategyRefusal,
	StrategyGreeting,
}

// ParseStrategy accepts a strategy name; the empty string means none.
func ParseStrategy(value string) (Strategy, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", nil
	}
	for _, s := range strategies {
		if string(s) == value {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q", value)
}

// IsAgent reports whether the strategy runs a tool-calling agent.
func (s Strategy) IsAgent() bool {
	return s == StrategyAgentBuy || s == StrategyAgentRent || s == StrategyAgentDetails
}

type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Decision is attached to every answer so routing can be audited.
type Decision struct {
	Intent     Intent   `json:"intent,omitempty"`
	Confidence float64  `json:"confidence"`
	Strategy   Strategy `json:"strategy"`
	Reasoning  string   `json:"reasoning"`
	Forced     bool     `json:"forced,omitempty"`
}

type Classifier interface {
	Classify(ctx context.Context, query string) (Classification, error)
}

type RelevanceChecker interface {
	OnTopic(ctx context.Context, query string) (bool, error)
}

type Options struct {
	// Classifier and Relevance are optional model-backed checks. The keyword
	// rules answer whenever they are nil or fail.
	Classifier Classifier
	Relevance  RelevanceChecker
}

type Router struct {
	catalogue  *catalogue.Catalogue
	rules      *RuleClassifier
	classifier Classifier
	relevance  RelevanceChecker
	logger     *log.Logger
}

func NewRouter(cat *catalogue.Catalogue, opts Options, logger *log.Logger) *Router {
	if cat == nil {
		cat = catalogue.Default()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		catalogue:  cat,
		rules:      NewRuleClassifier(cat),
		classifier: opts.Classifier,
		relevance:  opts.Relevance,
		logger:     logger,
	}
}

// Route runs the greeting check, the relevance gate, classification and the
// routing policy in that order. A forced strategy skips everything after the
// greeting check. Route never fails.
func (r *Router) Route(ctx context.Context, query string, forced Strategy) Decision {
	if r.IsGreeting(query) {
		return Decision{Confidence: 1, Strategy: StrategyGreeting, Reasoning: "greeting detected"}
	}

	if forced != "" {
		return Decision{
			Intent:     intentFor(forced),
			Confidence: 1,
			Strategy:   forced,
			Reasoning:  fmt.Sprintf("strategy %s forced by caller", forced),
			Forced:     true,
		}
	}

	if !r.OnTopic(ctx, query) {
		return Decision{Confidence: 1, Strategy: StrategyRefusal, Reasoning: "query is not about real estate"}
	}

	c := r.Classify(ctx, query)
	return Decision{
		Intent:     c.Intent,
		Confidence: c.Confidence,
		Strategy:   Policy(c),
		Reasoning:  c.Reasoning,
	}
}

// IsGreeting matches a greeting phrase in a query that asks for nothing else.
func (r *Router) IsGreeting(query string) bool {
	if !catalogue.ContainsAny(query, r.catalogue.Greetings) {
		return false
	}
	return !r.mentionsDomain(query)
}

// OnTopic is the relevance gate. Domain words or a known locality settle it
// immediately; otherwise an off-topic word refuses, and the model check (if
// any) decides the rest.
func (r *Router) OnTopic(ctx context.Context, query string) bool {
	if r.mentionsDomain(query) {
		return true
	}
	if catalogue.ContainsAny(query, r.catalogue.OffTopicKeywords) {
		return false
	}
	if r.relevance == nil {
		return true
	}
	onTopic, err := r.relevance.OnTopic(ctx, query)
	if err != nil {
		r.logger.Printf("relevance check failed for %q: %v", query, err)
		return true
	}
	return onTopic
}

// Classify asks the model classifier when configured and falls back to the
// keyword rules on any failure.
func (r *Router) Classify(ctx context.Context, query string) Classification {
	if r.classifier == nil {
		return r.rules.Classify(query)
	}

	c, err := r.classifier.Classify(ctx, query)
	if err == nil {
		return c
	}

	r.logger.Printf("intent classification failed for %q: %v", query, err)
	fallback := r.rules.Classify(query)
	fallback.Reasoning = "classification failed; " + fallback.Reasoning
	return fallback
}

func (r *Router) mentionsDomain(query string) bool {
	if catalogue.ContainsAny(query, r.catalogue.DomainKeywords) {
		return true
	}
	_, ok := catalogue.Lookup(r.catalogue.Localities, query)
	return ok
}

// Policy maps a classification onto a strategy.
func Policy(c Classification) Strategy {
	switch c.Intent {
	case IntentKnowledge:
		if c.Confidence > directRetrievalThreshold {
			return StrategyDirectRetrieval
		}
		return StrategyAgentDetails
	case IntentBuy:
		return StrategyAgentBuy
	case IntentRent:
		return StrategyAgentRent
	default:
		return StrategyAgentDetails
	}
}

func intentFor(s Strategy) Intent {
	switch s {
	case StrategyAgentBuy:
		return IntentBuy
	case StrategyAgentRent:
		return IntentRent
	case StrategyAgentDetails:
		return IntentDetails
	case StrategyDirectRetrieval:
		return IntentKnowledge
	default:
		return ""
	}
}
