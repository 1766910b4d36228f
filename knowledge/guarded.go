package knowledge

import (
	"context"

	"github.com/fabfab/estate-agent/resilience"
)

// Guarded runs every graph call under a resilience policy so a stalled
// Neo4j cannot hold a request open.
type Guarded struct {
	graph  Graph
	policy *resilience.Policy
}

var _ Graph = (*Guarded)(nil)

func NewGuarded(graph Graph, policy *resilience.Policy) *Guarded {
	return &Guarded{graph: graph, policy: policy}
}

func (g *Guarded) SyncDocument(ctx context.Context, doc Document) error {
	_, err := resilience.Do(ctx, g.policy, "sync document", doc.Source, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.graph.SyncDocument(ctx, doc)
	})
	return err
}

func (g *Guarded) FindProperties(ctx context.Context, q PropertyQuery) ([]PropertySummary, error) {
	return resilience.Do(ctx, g.policy, "find properties", q.Locality, func(ctx context.Context) ([]PropertySummary, error) {
		return g.graph.FindProperties(ctx, q)
	})
}

func (g *Guarded) Purge(ctx context.Context) error {
	_, err := resilience.Do(ctx, g.policy, "purge", "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.graph.Purge(ctx)
	})
	return err
}
