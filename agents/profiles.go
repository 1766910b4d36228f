// Package agents runs the tool-calling property assistants. The buy, rent
// and details agents differ only in their profile; one Runner executes all
// of them.
package agents

import (
	"github.com/fabfab/estate-agent/routing"
)

type Kind string

const (
	KindBuy     Kind = "buy"
	KindRent    Kind = "rent"
	KindDetails Kind = "details"
)

type Profile struct {
	Kind        Kind
	Name        string
	Transaction string
	// Persona is prepended to the composed system prompt.
	Persona     string
	Temperature float64
	MaxTokens   int
}

const basePersona = `You are Property AI Guru, a real estate assistant for properties in Pune.
If a question is not about real estate, reply with "Let's stay on track."
Admit when you do not know something rather than guessing, and keep answers concise.`

var profiles = map[Kind]Profile{
	KindBuy: {
		Kind:        KindBuy,
		Name:        "BuyAgent",
		Transaction: "buy",
		Temperature: 0.3,
		MaxTokens:   1000,
		Persona: basePersona + `
You help people buy property. Use search_properties to find listings for sale
(set transaction_type to "buy") and query_property_knowledge for localities,
amenities, pricing, payment plans and possession timelines. Ask about budget
and preferred localities when they are unclear.`,
	},
	KindRent: {
		Kind:        KindRent,
		Name:        "RentAgent",
		Transaction: "rent",
		Temperature: 0.3,
		MaxTokens:   1000,
		Persona: basePersona + `
You help people rent property. Use search_properties with transaction_type
"rent" to find rentals and query_property_knowledge for locality insights and
building facilities. Explain deposits, agreements and maintenance charges when
asked.`,
	},
	KindDetails: {
		Kind:        KindDetails,
		Name:        "PropertyDetailsAgent",
		Transaction: "buy",
		Temperature: 0.5,
		MaxTokens:   2000,
		Persona: basePersona + `
You answer detailed questions about specific projects: specifications,
configurations, amenities, pricing and neighbourhoods. Use
query_property_knowledge for every factual detail and cite the brochure it
came from.`,
	},
}

func ProfileFor(kind Kind) (Profile, bool) {
	p, ok := profiles[kind]
	return p, ok
}

// KindFor maps an agent strategy to its profile kind.
func KindFor(strategy routing.Strategy) (Kind, bool) {
	switch strategy {
	case routing.StrategyAgentBuy:
		return KindBuy, true
	case routing.StrategyAgentRent:
		return KindRent, true
	case routing.StrategyAgentDetails:
		return KindDetails, true
	default:
		return "", false
	}
}
