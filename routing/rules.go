package routing

import (
	"fmt"
	"strings"

	"github.com/fabfab/estate-agent/catalogue"
)

const (
	ruleBaseConfidence = 0.55
	ruleHitConfidence  = 0.15
	ruleMaxConfidence  = 0.95
	ruleNoHitDefault   = 0.5
)

// RuleClassifier scores intents by the catalogue keywords a query contains.
type RuleClassifier struct {
	intents []catalogue.Entry
}

func NewRuleClassifier(cat *catalogue.Catalogue) *RuleClassifier {
	if cat == nil {
		cat = catalogue.Default()
	}
	return &RuleClassifier{intents: cat.Intents}
}

// Classify picks the intent with the most keyword hits; ties go to the
// earlier catalogue entry. Without any hit the query is treated as a
// low-confidence knowledge question.
func (c *RuleClassifier) Classify(query string) Classification {
	var (
		best     catalogue.Entry
		bestHits []string
	)
	for _, entry := range c.intents {
		hits := keywordHits(entry, query)
		if len(hits) > len(bestHits) {
			best, bestHits = entry, hits
		}
	}

	if len(bestHits) == 0 {
		return Classification{
			Intent:     IntentKnowledge,
			Confidence: ruleNoHitDefault,
			Reasoning:  "no intent keywords matched",
		}
	}

	confidence := ruleBaseConfidence + ruleHitConfidence*float64(len(bestHits))
	if confidence > ruleMaxConfidence {
		confidence = ruleMaxConfidence
	}
	return Classification{
		Intent:     Intent(best.Label),
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("matched %s keywords: %s", best.Label, strings.Join(bestHits, ", ")),
	}
}

// keywordHits lists matching aliases, dropping any alias that only matched
// as part of a longer matching alias ("floor plan" inside "floor plans").
func keywordHits(entry catalogue.Entry, query string) []string {
	matched := make([]string, 0)
	for _, alias := range entry.Aliases {
		if catalogue.ContainsPhrase(query, alias) {
			matched = append(matched, alias)
		}
	}

	hits := make([]string, 0, len(matched))
	for i, alias := range matched {
		nested := false
		for j, other := range matched {
			if i != j && len(other) > len(alias) && strings.Contains(other, alias) {
				nested = true
				break
			}
		}
		if !nested {
			hits = append(hits, alias)
		}
	}
	return hits
}
