// Package catalogue holds the keyword and alias tables used to tag brochure
// text and to read facets out of user queries.
package catalogue

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Entry is a canonical label with the phrases that identify it.
type Entry struct {
	Label   string   `yaml:"label"`
	Aliases []string `yaml:"aliases"`
}

// Matches reports whether any alias occurs in text as a whole phrase.
func (e Entry) Matches(text string) bool {
	for _, alias := range e.Aliases {
		if ContainsPhrase(text, alias) {
			return true
		}
	}
	return false
}

// Count returns the occurrences of the entry's most frequent alias.
// Aliases nest ("viman" inside "viman nagar") so they are not summed.
func (e Entry) Count(text string) int {
	best := 0
	for _, alias := range e.Aliases {
		if n := CountPhrase(text, alias); n > best {
			best = n
		}
	}
	return best
}

// Catalogue groups every table. Order inside each slice is significant:
// earlier entries win ties.
type Catalogue struct {
	Localities         []Entry `yaml:"localities"`
	PropertyTypes      []Entry `yaml:"property_types"`
	QueryPropertyTypes []Entry `yaml:"query_property_types"`
	Actions            []Entry `yaml:"actions"`
	GuidanceNeeds      []Entry `yaml:"guidance_needs"`
	Intents            []Entry `yaml:"intents"`

	BudgetTerms      []string `yaml:"budget_terms"`
	DetailedKeywords []string `yaml:"detailed_keywords"`
	BriefKeywords    []string `yaml:"brief_keywords"`
	ListingVerbs     []string `yaml:"listing_verbs"`
	InquiryVerbs     []string `yaml:"inquiry_verbs"`

	Greetings        []string `yaml:"greetings"`
	DomainKeywords   []string `yaml:"domain_keywords"`
	OffTopicKeywords []string `yaml:"off_topic_keywords"`
}

// Load reads a YAML catalogue. Tables missing from the file keep their
// defaults; a missing file yields the defaults.
func Load(path string) (*Catalogue, error) {
	cat := Default()
	if strings.TrimSpace(path) == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cat, nil
		}
		return nil, fmt.Errorf("read catalogue: %w", err)
	}

	var override Catalogue
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}
	cat.merge(override)

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Validate rejects entries without a label or aliases.
func (c *Catalogue) Validate() error {
	tables := map[string][]Entry{
		"localities":           c.Localities,
		"property_types":       c.PropertyTypes,
		"query_property_types": c.QueryPropertyTypes,
		"actions":              c.Actions,
		"guidance_needs":       c.GuidanceNeeds,
		"intents":              c.Intents,
	}
	for name, entries := range tables {
		for i, entry := range entries {
			if strings.TrimSpace(entry.Label) == "" {
				return fmt.Errorf("catalogue %s[%d]: label is required", name, i)
			}
			if len(entry.Aliases) == 0 {
				return fmt.Errorf("catalogue %s[%d] %q: at least one alias is required", name, i, entry.Label)
			}
		}
	}
	return nil
}

func (c *Catalogue) merge(o Catalogue) {
	mergeEntries(&c.Localities, o.Localities)
	mergeEntries(&c.PropertyTypes, o.PropertyTypes)
	mergeEntries(&c.QueryPropertyTypes, o.QueryPropertyTypes)
	mergeEntries(&c.Actions, o.Actions)
	mergeEntries(&c.GuidanceNeeds, o.GuidanceNeeds)
	mergeEntries(&c.Intents, o.Intents)
	mergeTerms(&c.BudgetTerms, o.BudgetTerms)
	mergeTerms(&c.DetailedKeywords, o.DetailedKeywords)
	mergeTerms(&c.BriefKeywords, o.BriefKeywords)
	mergeTerms(&c.ListingVerbs, o.ListingVerbs)
	mergeTerms(&c.InquiryVerbs, o.InquiryVerbs)
	mergeTerms(&c.Greetings, o.Greetings)
	mergeTerms(&c.DomainKeywords, o.DomainKeywords)
	mergeTerms(&c.OffTopicKeywords, o.OffTopicKeywords)
}

func mergeEntries(dst *[]Entry, src []Entry) {
	if len(src) > 0 {
		*dst = src
	}
}

func mergeTerms(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}

// Lookup returns the first entry matching text.
func Lookup(entries []Entry, text string) (Entry, bool) {
	for _, entry := range entries {
		if entry.Matches(text) {
			return entry, true
		}
	}
	return Entry{}, false
}

// LookupAll returns every matching entry label in table order.
func LookupAll(entries []Entry, text string) []string {
	var labels []string
	for _, entry := range entries {
		if entry.Matches(text) {
			labels = append(labels, entry.Label)
		}
	}
	return labels
}

// ContainsAny reports whether any term occurs in text as a whole phrase.
func ContainsAny(text string, terms []string) bool {
	for _, term := range terms {
		if ContainsPhrase(text, term) {
			return true
		}
	}
	return false
}

// ContainsPhrase is a case-insensitive substring match that only accepts
// occurrences not glued to surrounding letters, so "rent" does not match
// "parent" and "hi" does not match "which". Digits count as separators,
// which keeps "2bhk" matching "bhk".
func ContainsPhrase(text, phrase string) bool {
	return indexPhrase(strings.ToLower(text), strings.ToLower(strings.TrimSpace(phrase)), 0) >= 0
}

// CountPhrase counts non-overlapping whole-phrase occurrences.
func CountPhrase(text, phrase string) int {
	lower := strings.ToLower(text)
	needle := strings.ToLower(strings.TrimSpace(phrase))
	if needle == "" {
		return 0
	}
	count := 0
	for from := 0; ; {
		idx := indexPhrase(lower, needle, from)
		if idx < 0 {
			return count
		}
		count++
		from = idx + len(needle)
	}
}

func indexPhrase(text, needle string, from int) int {
	if needle == "" {
		return -1
	}
	for from <= len(text)-len(needle) {
		rel := strings.Index(text[from:], needle)
		if rel < 0 {
			return -1
		}
		idx := from + rel
		end := idx + len(needle)
		if !letterBefore(text, idx) && !letterAfter(text, end) {
			return idx
		}
		_, size := utf8.DecodeRuneInString(text[idx:])
		from = idx + size
	}
	return -1
}

func letterBefore(text string, idx int) bool {
	if idx == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:idx])
	return unicode.IsLetter(r)
}

func letterAfter(text string, idx int) bool {
	if idx >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[idx:])
	return unicode.IsLetter(r)
}
