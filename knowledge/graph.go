// Package knowledge keeps a property graph of ingested brochures so agents can
// look up listings by locality, type, configuration and price.
package knowledge

import (
	"context"
	"sort"
	"strings"
)

type Document struct {
	ID             string
	Source         string
	Title          string
	SHA            string
	Locality       string
	PropertyType   string
	Configurations []string
	PricesLakh     []float64
	Chunks         []Chunk
}

type Chunk struct {
	ID    string
	Index int
	Text  string
}

// PropertyQuery filters listings. Empty fields and nil bounds match anything.
type PropertyQuery struct {
	Locality     string
	PropertyType string
	Bedrooms     string
	MinLakh      *float64
	MaxLakh      *float64
	Limit        int
}

type PropertySummary struct {
	Source         string    `json:"source"`
	Title          string    `json:"title"`
	Locality       string    `json:"locality"`
	PropertyType   string    `json:"property_type"`
	Configurations []string  `json:"configurations,omitempty"`
	PricesLakh     []float64 `json:"prices_lakh,omitempty"`
	ChunkCount     int       `json:"chunk_count"`
}

type Graph interface {
	SyncDocument(ctx context.Context, doc Document) error
	FindProperties(ctx context.Context, q PropertyQuery) ([]PropertySummary, error)
	Purge(ctx context.Context) error
}

const defaultLimit = 10

func (q PropertyQuery) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}

// Matches applies the query to a summary the same way the Cypher filter does.
func (q PropertyQuery) Matches(s PropertySummary) bool {
	if q.Locality != "" && !strings.EqualFold(q.Locality, s.Locality) {
		return false
	}
	if q.PropertyType != "" && !strings.EqualFold(q.PropertyType, s.PropertyType) {
		return false
	}
	if q.Bedrooms != "" && !containsFold(s.Configurations, q.Bedrooms) {
		return false
	}
	if q.MinLakh == nil && q.MaxLakh == nil {
		return true
	}
	for _, price := range s.PricesLakh {
		if q.MinLakh != nil && price < *q.MinLakh {
			continue
		}
		if q.MaxLakh != nil && price > *q.MaxLakh {
			continue
		}
		return true
	}
	return false
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func sortSummaries(summaries []PropertySummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Locality != summaries[j].Locality {
			return summaries[i].Locality < summaries[j].Locality
		}
		return summaries[i].Source < summaries[j].Source
	})
}
