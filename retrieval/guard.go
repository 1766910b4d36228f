package retrieval

import (
	"context"
	"sync"
)

// Guard lets upserts and searches share the index while a reset waits for
// them to drain and blocks new ones until it completes.
type Guard struct {
	mu    sync.RWMutex
	store VectorStore
}

func NewGuard(store VectorStore) *Guard {
	return &Guard{store: store}
}

func (g *Guard) Upsert(ctx context.Context, doc Document) (UpsertResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.store.Upsert(ctx, doc)
}

func (g *Guard) Search(ctx context.Context, embedding []float32, limit int, filter Filter) ([]Hit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.store.Search(ctx, embedding, limit, filter)
}

func (g *Guard) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Reset(ctx)
}

// Exclusive runs fn with the index locked against upserts and searches, for
// resets that span more than the vector store.
func (g *Guard) Exclusive(ctx context.Context, fn func(ctx context.Context, store VectorStore) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(ctx, g.store)
}

// Shared runs fn alongside other upserts and searches but never during a
// reset, for writes that span more than the vector store. fn must use the
// store it is given, not the Guard.
func (g *Guard) Shared(ctx context.Context, fn func(ctx context.Context, store VectorStore) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(ctx, g.store)
}

var _ VectorStore = (*Guard)(nil)
