// Package compose builds the prompts and fixed responses that turn retrieved
// brochure passages into an answer.
package compose

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fabfab/estate-agent/llm"
	"github.com/fabfab/estate-agent/query"
	"github.com/fabfab/estate-agent/retrieval"
)

const (
	RefusalText  = "Let's stay on track."
	GreetingText = "Hello! Welcome to Property AI Guru. I'm here to help you find the perfect property in Pune. What are you looking for today?"
	NotInRecords = "This property is not in my records. Please check the name or try another one."
	// AdvisoryFallback is used when nothing matched and the model is unavailable.
	AdvisoryFallback = "I couldn't find any properties matching your request in my records. " +
		"Could you refine your search with a locality such as Wakad or Baner, a budget, or the number of bedrooms?"
	ClarifyText = "Which property would you like to know more about? Please specify the property name (e.g., Evergreen Heights)."

	GroundedConfidence = 0.95
	AdvisoryConfidence = 0.6

	bullet = "• "
)

const DefaultSystemPrompt = `You are Property AI Guru, a real estate assistant for properties in Pune.
You only answer questions about real estate and Pune properties. For anything else reply exactly: "Let's stay on track."
Keep responses concise, factual and professional.`

const groundingRules = `GROUNDING RULES:
- Answer only from the context passages supplied with the question.
- Never invent property names, prices, amenities, configurations or contact details.
- If the property the user asks about is not in the context, say: "` + NotInRecords + `"
- If the context does not cover part of the question, say that you do not have that information.`

const briefInstruction = `LIST VIEW:
- Show each matching property as a numbered list item: property title followed by a one-line description.
- Do not include amenities, layouts, pricing or specifications.
The user is browsing; they only want titles and short descriptions at this stage.`

const detailedInstruction = `DETAILED VIEW:
Give complete information about the property, grouped under these bold section labels when the context covers them:
**Amenities**, **Configurations & Layouts**, **Pricing**, **Locality**, **Brochure Summary**.
Use "•" bullets under each label, bold property names and configurations, and no markdown headings.
For pricing use lines like: • **2 BHK**: Starting at ₹XX Lakh.`

const clarifyInstruction = `The user asks for details about "this property" without naming it.
Reply: "` + ClarifyText + `"
Do not guess or list details of any property.`

const advisoryPrompt = `You are Property AI Guru, a real estate assistant for properties in Pune.
No brochure passages matched the user's request. Give brief general guidance relevant to the request
(what to consider, which details would help narrow the search) and invite the user to refine it.
Do not name or describe specific properties, prices or projects.`

var guidanceLines = map[query.GuidanceNeed]string{
	query.GuidanceFinancing:   "Include: loan eligibility, down payment (typically 15-25%), EMI estimates and financing options.",
	query.GuidanceEligibility: "Include: income requirements, documentation needed and credit score considerations.",
	query.GuidancePolicy:      "Include: RERA compliance, registration process, legal documentation and possession timeline.",
	query.GuidanceComparison:  "Compare properties on price per sq.ft, amenities, location, possession timeline and financing ease.",
}

var vagueDetailPhrases = []string{"more details", "this property", "that property", "details", "information"}

type Composer struct {
	basePrompt string
}

// New returns a composer using basePrompt as the opening of every system
// prompt, or DefaultSystemPrompt when empty.
func New(basePrompt string) *Composer {
	if strings.TrimSpace(basePrompt) == "" {
		basePrompt = DefaultSystemPrompt
	}
	return &Composer{basePrompt: basePrompt}
}

type Input struct {
	Query    string
	Analysis query.Analysis
	Results  []retrieval.Result
	History  []llm.Message
}

// SystemPrompt adds the query facets, the location constraint, guidance
// lines and the grounding rules to the base prompt.
func (c *Composer) SystemPrompt(a query.Analysis) string {
	var b strings.Builder
	b.WriteString(c.basePrompt)
	b.WriteString("\n\n")
	b.WriteString(groundingRules)

	if len(a.PropertyTypes) > 0 {
		fmt.Fprintf(&b, "\n\nUser is looking for: %s", strings.Join(a.PropertyTypes, ", "))
	}
	if a.Bedrooms != "" {
		fmt.Fprintf(&b, "\nConfiguration: %s", a.Bedrooms)
	}
	if !a.Price.IsZero() {
		fmt.Fprintf(&b, "\nBudget: %s", formatBudget(a.Price))
	}
	if len(a.Locations) > 0 {
		locations := strings.Join(a.Locations, ", ")
		fmt.Fprintf(&b, "\nPreferred locations: %s", locations)
		fmt.Fprintf(&b, "\nONLY show properties from these locations: %s. Do NOT include properties from other localities.", locations)
	}
	if a.Action != "" && a.Action != query.ActionGeneral {
		fmt.Fprintf(&b, "\nUser intent: %s", a.Action)
	}
	if len(a.GuidanceNeeds) > 0 {
		names := make([]string, len(a.GuidanceNeeds))
		for i, need := range a.GuidanceNeeds {
			names[i] = string(need)
		}
		fmt.Fprintf(&b, "\nUser also needs guidance on: %s", strings.Join(names, ", "))
		for _, need := range a.GuidanceNeeds {
			if line, ok := guidanceLines[need]; ok {
				b.WriteString("\n- ")
				b.WriteString(line)
			}
		}
	}
	return b.String()
}

// Instruction picks the clarification, list or detailed contract.
func (c *Composer) Instruction(in Input) string {
	switch {
	case IsVagueDetailRequest(in.Query, in.Results):
		return clarifyInstruction
	case in.Analysis.DetailLevel == query.DetailDetailed:
		return detailedInstruction
	default:
		return briefInstruction
	}
}

// Messages is the grounded conversation: system prompt, prior turns, then the
// question with its context and instruction.
func (c *Composer) Messages(in Input) []llm.Message {
	messages := make([]llm.Message, 0, len(in.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: c.SystemPrompt(in.Analysis)})
	messages = append(messages, in.History...)
	messages = append(messages, llm.Message{
		Role: llm.RoleUser,
		Content: fmt.Sprintf("Question: %s\n\nContext from real estate documents:\n%s\n\n%s",
			in.Query, FormatContext(in.Results), c.Instruction(in)),
	})
	return messages
}

// AdvisoryMessages asks for guidance when retrieval found nothing.
func (c *Composer) AdvisoryMessages(in Input) []llm.Message {
	messages := make([]llm.Message, 0, len(in.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: advisoryPrompt})
	messages = append(messages, in.History...)
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("My query: %s\n\nNo direct matches were found in the property records.", in.Query),
	})
	return messages
}

// FormatContext renders results as bullet-tagged passages.
func FormatContext(results []retrieval.Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		parts = append(parts, bullet+text)
	}
	return strings.Join(parts, "\n\n")
}

// Degraded is the answer when the completion call fails: the raw context.
func Degraded(q string, results []retrieval.Result) string {
	return fmt.Sprintf("Based on your query about %s:\n\n%s", q, FormatContext(results))
}

// IsVagueDetailRequest reports a request for details that names none of the
// properties in results.
func IsVagueDetailRequest(q string, results []retrieval.Result) bool {
	lower := strings.ToLower(q)
	vague := false
	for _, phrase := range vagueDetailPhrases {
		if strings.Contains(lower, phrase) {
			vague = true
			break
		}
	}
	if !vague {
		return false
	}
	return !mentionsProperty(lower, PropertyNames(results))
}

// genericNameWords never identify a project on their own.
var genericNameWords = map[string]struct{}{
	"the": {}, "this": {}, "that": {}, "with": {}, "from": {}, "pune": {}, "welcome": {},
	"property": {}, "properties": {}, "project": {}, "projects": {}, "apartment": {},
	"apartments": {}, "villa": {}, "villas": {}, "flat": {}, "flats": {}, "tower": {},
	"towers": {}, "price": {}, "amenities": {}, "details": {}, "more": {}, "information": {},
}

// PropertyNames collects candidate project names from the results: titles
// that are not just the source id, the leading capitalised phrase of every
// line, and any run of two or more capitalised words.
func PropertyNames(results []retrieval.Result) []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if len(key) < 3 {
			return
		}
		if _, ok := genericNameWords[key]; ok {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}

	for _, r := range results {
		if title := strings.TrimSpace(r.Title); title != "" && title != r.Source {
			add(title)
		}
		for _, line := range strings.Split(r.Text, "\n") {
			line = strings.TrimLeft(strings.TrimSpace(line), "•-*#0123456789. ")
			for i, run := range capitalisedRuns(line) {
				if i == 0 || strings.Contains(run, " ") {
					add(run)
				}
			}
		}
	}
	return names
}

// capitalisedRuns splits line into runs of consecutive capitalised words.
// The first run is only reported when the line starts with it.
func capitalisedRuns(line string) []string {
	var (
		runs    []string
		current []string
		leading = true
	)
	flush := func() {
		if len(current) > 0 {
			runs = append(runs, strings.Join(current, " "))
		} else if leading {
			runs = append(runs, "")
		}
		current = nil
		leading = false
	}
	for _, field := range strings.Fields(line) {
		word := strings.Trim(field, ",.:;()\"'!?")
		if word == "" || !startsUpper(word) {
			flush()
			continue
		}
		current = append(current, word)
		if strings.ContainsAny(field[len(field)-1:], ",.:;)") {
			flush()
		}
	}
	flush()
	return runs
}

func startsUpper(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}

func mentionsProperty(lowerQuery string, names []string) bool {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(lowerQuery, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = struct{}{}
	}
	for _, name := range names {
		lowerName := strings.ToLower(name)
		if strings.Contains(lowerQuery, lowerName) {
			return true
		}
		for _, w := range strings.Fields(lowerName) {
			if len(w) < 4 {
				continue
			}
			if _, generic := genericNameWords[w]; generic {
				continue
			}
			if _, ok := words[w]; ok {
				return true
			}
		}
	}
	return false
}

func formatBudget(p query.PriceRange) string {
	switch {
	case p.Min != nil && p.Max != nil && *p.Min != *p.Max:
		return fmt.Sprintf("%s to %s lakh", formatLakh(*p.Min), formatLakh(*p.Max))
	case p.Max != nil:
		return fmt.Sprintf("around %s lakh", formatLakh(*p.Max))
	default:
		return fmt.Sprintf("around %s lakh", formatLakh(*p.Min))
	}
}

func formatLakh(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
