package knowledge

import (
	"context"
	"sync"
)

// MemoryGraph serves property lookups without Neo4j.
type MemoryGraph struct {
	mu   sync.RWMutex
	docs map[string]PropertySummary
}

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{docs: make(map[string]PropertySummary)}
}

func (g *MemoryGraph) SyncDocument(ctx context.Context, doc Document) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.docs[doc.Source] = PropertySummary{
		Source:         doc.Source,
		Title:          doc.Title,
		Locality:       doc.Locality,
		PropertyType:   doc.PropertyType,
		Configurations: append([]string(nil), doc.Configurations...),
		PricesLakh:     append([]float64(nil), doc.PricesLakh...),
		ChunkCount:     len(doc.Chunks),
	}
	return nil
}

func (g *MemoryGraph) FindProperties(ctx context.Context, q PropertyQuery) ([]PropertySummary, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	summaries := make([]PropertySummary, 0)
	for _, summary := range g.docs {
		if q.Matches(summary) {
			summaries = append(summaries, summary)
		}
	}
	sortSummaries(summaries)
	if len(summaries) > q.limit() {
		summaries = summaries[:q.limit()]
	}
	return summaries, nil
}

func (g *MemoryGraph) Purge(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.docs = make(map[string]PropertySummary)
	return nil
}

var _ Graph = (*MemoryGraph)(nil)
