package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fabfab/estate-agent/knowledge"
	"github.com/fabfab/estate-agent/llm"
	"github.com/fabfab/estate-agent/query"
	"github.com/fabfab/estate-agent/retrieval"
)

const (
	ToolSearchProperties = "search_properties"
	ToolQueryKnowledge   = "query_property_knowledge"

	inrPerLakh        = 100000
	defaultSearchSize = 10
	defaultKnowledgeK = 5
)

type PropertyFinder interface {
	FindProperties(ctx context.Context, q knowledge.PropertyQuery) ([]knowledge.PropertySummary, error)
}

type KnowledgeSearcher interface {
	SearchLocality(ctx context.Context, queryText, locality string, topK int) ([]retrieval.Result, error)
	SearchMany(ctx context.Context, queries []string, analysis query.Analysis, topK int) ([]retrieval.Result, error)
}

func toolDefinitions() []llm.Tool {
	return []llm.Tool{
		{
			Name:        ToolSearchProperties,
			Description: "Search ingested property listings by locality, property type, bedrooms and price range",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"locality": map[string]any{
						"type":        "string",
						"description": "Locality name, e.g. Wakad, Baner, Hinjewadi",
					},
					"transaction_type": map[string]any{
						"type":        "string",
						"enum":        []string{"buy", "rent"},
						"description": "Whether the user wants to buy or rent",
					},
					"property_type": map[string]any{
						"type":        "string",
						"enum":        []string{"apartment", "villa", "plot", "commercial"},
						"description": "Type of property",
					},
					"bedrooms": map[string]any{
						"type":        "integer",
						"description": "Number of bedrooms (1, 2, 3, ...)",
					},
					"min_price": map[string]any{
						"type":        "number",
						"description": "Minimum sale price in INR",
					},
					"max_price": map[string]any{
						"type":        "number",
						"description": "Maximum sale price in INR",
					},
				},
				"required": []string{"transaction_type"},
			},
		},
		{
			Name:        ToolQueryKnowledge,
			Description: "Retrieve passages from property brochures about projects, localities, amenities and pricing",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "What to look up",
					},
					"locality": map[string]any{
						"type":        "string",
						"description": "Optional locality to restrict the search to",
					},
					"alternatives": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Optional rephrasings searched alongside the query",
					},
					"top_k": map[string]any{
						"type":        "integer",
						"description": "Number of passages to return",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

type searchArgs struct {
	Locality        string          `json:"locality"`
	TransactionType string          `json:"transaction_type"`
	PropertyType    string          `json:"property_type"`
	Bedrooms        json.RawMessage `json:"bedrooms"`
	MinPrice        *float64        `json:"min_price"`
	MaxPrice        *float64        `json:"max_price"`
}

type knowledgeArgs struct {
	Query        string   `json:"query"`
	Locality     string   `json:"locality"`
	Alternatives []string `json:"alternatives"`
	TopK         int      `json:"top_k"`
}

type toolError struct {
	Error string `json:"error"`
}

func (r *Runner) execute(ctx context.Context, profile Profile, call llm.ToolCall) (string, error) {
	switch call.Name {
	case ToolSearchProperties:
		return r.searchProperties(ctx, profile, call.Arguments)
	case ToolQueryKnowledge:
		return r.queryKnowledge(ctx, call.Arguments)
	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
}

func (r *Runner) searchProperties(ctx context.Context, profile Profile, arguments string) (string, error) {
	if r.finder == nil {
		return "", fmt.Errorf("property search is not available")
	}
	var args searchArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("decode %s arguments: %w", ToolSearchProperties, err)
	}
	if args.TransactionType == "" {
		args.TransactionType = profile.Transaction
	}

	q := knowledge.PropertyQuery{
		Locality:     strings.TrimSpace(args.Locality),
		PropertyType: strings.TrimSpace(args.PropertyType),
		Bedrooms:     bedroomLabel(args.Bedrooms),
		Limit:        defaultSearchSize,
	}
	// Brochure prices are sale prices; a monthly rent cannot be compared to them.
	if args.TransactionType != "rent" {
		q.MinLakh = inrToLakh(args.MinPrice)
		q.MaxLakh = inrToLakh(args.MaxPrice)
	}

	found, err := r.finder.FindProperties(ctx, q)
	if err != nil {
		return "", fmt.Errorf("search properties: %w", err)
	}
	return marshal(map[string]any{
		"success":          true,
		"count":            len(found),
		"transaction_type": args.TransactionType,
		"properties":       found,
	})
}

func (r *Runner) queryKnowledge(ctx context.Context, arguments string) (string, error) {
	if r.searcher == nil {
		return "", fmt.Errorf("knowledge search is not available")
	}
	var args knowledgeArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("decode %s arguments: %w", ToolQueryKnowledge, err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("query is required")
	}
	if args.TopK <= 0 {
		args.TopK = defaultKnowledgeK
	}

	var (
		results []retrieval.Result
		err     error
	)
	if len(args.Alternatives) > 0 && strings.TrimSpace(args.Locality) == "" {
		// Rephrasings are swept together; the analysis of the main query
		// still narrows the merged results to any locality it names.
		queries := append([]string{args.Query}, args.Alternatives...)
		results, err = r.searcher.SearchMany(ctx, queries, r.analyzer.Analyze(args.Query), args.TopK)
	} else {
		results, err = r.searcher.SearchLocality(ctx, args.Query, args.Locality, args.TopK)
	}
	if err != nil {
		return "", fmt.Errorf("query knowledge: %w", err)
	}
	return marshal(map[string]any{
		"success": true,
		"count":   len(results),
		"results": results,
	})
}

// bedroomLabel accepts 2, 2.5, "2" or "2 BHK".
func bedroomLabel(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil && number > 0 {
		return query.FormatBHK(strconv.FormatFloat(number, 'f', -1, 64))
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return ""
	}
	if configs := query.Configurations(text); len(configs) > 0 {
		return configs[0]
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
		return query.FormatBHK(text)
	}
	return ""
}

func inrToLakh(inr *float64) *float64 {
	if inr == nil || *inr <= 0 {
		return nil
	}
	v := *inr / inrPerLakh
	return &v
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(data), nil
}

func errorPayload(err error) string {
	data, marshalErr := json.Marshal(toolError{Error: err.Error()})
	if marshalErr != nil {
		return `{"error":"tool failed"}`
	}
	return string(data)
}
