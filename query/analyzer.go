// Package query reads structured facets out of a free-text property question.
package query

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fabfab/estate-agent/catalogue"
)

type Action string

const (
	ActionBuy     Action = "buy"
	ActionRent    Action = "rent"
	ActionSell    Action = "sell"
	ActionGeneral Action = "general"
)

type DetailLevel string

const (
	DetailBrief    DetailLevel = "brief"
	DetailDetailed DetailLevel = "detailed"
)

type GuidanceNeed string

const (
	GuidanceFinancing   GuidanceNeed = "financing"
	GuidanceEligibility GuidanceNeed = "eligibility"
	GuidancePolicy      GuidanceNeed = "policy"
	GuidanceComparison  GuidanceNeed = "comparison"
)

// PriceRange is in lakh. Both bounds are nil when no amount was mentioned.
type PriceRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func (p PriceRange) IsZero() bool {
	return p.Min == nil && p.Max == nil
}

type Analysis struct {
	Original      string         `json:"original_query"`
	Locations     []string       `json:"locations"`
	PropertyTypes []string       `json:"property_types"`
	Action        Action         `json:"action"`
	GuidanceNeeds []GuidanceNeed `json:"guidance_needs"`
	DetailLevel   DetailLevel    `json:"detail_level"`
	Bedrooms      string         `json:"bedroom_spec,omitempty"`
	Price         PriceRange     `json:"price_range"`
	Enhanced      string         `json:"enhanced_query"`
}

// HasGuidance reports whether need was detected.
func (a Analysis) HasGuidance(need GuidanceNeed) bool {
	for _, g := range a.GuidanceNeeds {
		if g == need {
			return true
		}
	}
	return false
}

const unitPattern = `(lakhs?|lacs?|crores?|cr)\b`

var (
	bhkPattern        = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*-?\s*bhk`)
	priceRangePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*` + `(lakhs?|lacs?|crores?|cr)?` + `\s*(?:and|to|-)\s*(\d+(?:\.\d+)?)\s*` + unitPattern)
	pricePattern      = regexp.MustCompile(`(?i)(?:₹|rs\.?|inr)?\s*(\d+(?:\.\d+)?)\s*` + unitPattern)
)

type Analyzer struct {
	catalogue *catalogue.Catalogue
}

func NewAnalyzer(cat *catalogue.Catalogue) *Analyzer {
	if cat == nil {
		cat = catalogue.Default()
	}
	return &Analyzer{catalogue: cat}
}

func (a *Analyzer) Analyze(q string) Analysis {
	q = strings.TrimSpace(q)
	analysis := Analysis{
		Original:      q,
		Locations:     catalogue.LookupAll(a.catalogue.Localities, q),
		PropertyTypes: catalogue.LookupAll(a.catalogue.QueryPropertyTypes, q),
		Action:        a.action(q),
		GuidanceNeeds: a.guidance(q),
		DetailLevel:   a.DetailLevel(q),
		Bedrooms:      Bedrooms(q),
		Price:         Price(q),
	}
	analysis.Enhanced = Enhance(analysis)
	return analysis
}

func (a *Analyzer) action(q string) Action {
	if entry, ok := catalogue.Lookup(a.catalogue.Actions, q); ok {
		return Action(entry.Label)
	}
	return ActionGeneral
}

func (a *Analyzer) guidance(q string) []GuidanceNeed {
	var needs []GuidanceNeed
	for _, label := range catalogue.LookupAll(a.catalogue.GuidanceNeeds, q) {
		needs = append(needs, GuidanceNeed(label))
	}
	return needs
}

// DetailLevel applies the precedence budget, detailed keyword, brief keyword,
// listing verb, inquiry verb, then brief.
func (a *Analyzer) DetailLevel(q string) DetailLevel {
	c := a.catalogue
	switch {
	case catalogue.ContainsAny(q, c.BudgetTerms):
		return DetailDetailed
	case catalogue.ContainsAny(q, c.DetailedKeywords):
		return DetailDetailed
	case catalogue.ContainsAny(q, c.BriefKeywords):
		return DetailBrief
	case catalogue.ContainsAny(q, c.ListingVerbs):
		return DetailBrief
	case catalogue.ContainsAny(q, c.InquiryVerbs):
		return DetailDetailed
	default:
		return DetailBrief
	}
}

// Bedrooms returns the first "<n> BHK" specification, normalised.
func Bedrooms(q string) string {
	if configs := Configurations(q); len(configs) > 0 {
		return configs[0]
	}
	return ""
}

// Price collects every lakh/crore amount, in lakh, and returns the min and
// max. In a range like "30 to 1 crore" the bare number takes the unit of its
// partner unless that would put it above the partner, in which case it is lakh.
func Price(q string) PriceRange {
	var values []float64
	covered := make([][2]int, 0)

	for _, loc := range priceRangePattern.FindAllStringSubmatchIndex(q, -1) {
		low, _ := strconv.ParseFloat(q[loc[2]:loc[3]], 64)
		high, _ := strconv.ParseFloat(q[loc[6]:loc[7]], 64)
		highUnit := q[loc[8]:loc[9]]
		high = ToLakh(high, highUnit)

		if loc[4] >= 0 {
			low = ToLakh(low, q[loc[4]:loc[5]])
		} else if inherited := ToLakh(low, highUnit); inherited <= high {
			low = inherited
		}

		values = append(values, low, high)
		covered = append(covered, [2]int{loc[0], loc[1]})
	}

	for _, loc := range pricePattern.FindAllStringSubmatchIndex(q, -1) {
		if inside(covered, loc[2]) {
			continue
		}
		value, err := strconv.ParseFloat(q[loc[2]:loc[3]], 64)
		if err != nil {
			continue
		}
		values = append(values, ToLakh(value, q[loc[4]:loc[5]]))
	}

	if len(values) == 0 {
		return PriceRange{}
	}
	sort.Float64s(values)
	low, high := values[0], values[len(values)-1]
	return PriceRange{Min: &low, Max: &high}
}

// Enhance builds the facet phrase appended to the embedding input.
func Enhance(a Analysis) string {
	parts := make([]string, 0, 4)
	if a.Bedrooms != "" {
		parts = append(parts, a.Bedrooms+" properties")
	}
	if len(a.PropertyTypes) > 0 {
		parts = append(parts, strings.Join(a.PropertyTypes, " "))
	}
	if a.Action != "" && a.Action != ActionGeneral {
		parts = append(parts, "for "+string(a.Action))
	}
	if len(a.Locations) > 0 {
		parts = append(parts, "in "+strings.Join(a.Locations, ", "))
	}
	if len(parts) == 0 {
		return a.Original
	}
	return strings.Join(parts, " ")
}

func inside(spans [][2]int, pos int) bool {
	for _, span := range spans {
		if pos >= span[0] && pos < span[1] {
			return true
		}
	}
	return false
}
