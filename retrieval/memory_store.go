package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a brute-force cosine index for tests and single-process use.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string]memoryDocument
	order     []string
}

type memoryDocument struct {
	id      string
	sha     string
	chunks  []Chunk
	vectors [][]float32
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension, docs: map[string]memoryDocument{}}
}

func (s *MemoryStore) Upsert(_ context.Context, doc Document) (UpsertResult, error) {
	if err := validateDocument(doc); err != nil {
		return UpsertResult{}, err
	}
	for i, vec := range doc.Embeddings {
		if s.dimension > 0 && len(vec) != s.dimension {
			return UpsertResult{}, fmt.Errorf("chunk %d: vector dimension mismatch: expected %d, got %d", i, s.dimension, len(vec))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.docs[doc.Source]
	if ok && doc.SHA != "" && existing.sha == doc.SHA {
		return UpsertResult{DocumentID: existing.id}, nil
	}

	id := existing.id
	if !ok {
		id = uuid.NewString()
		s.order = append(s.order, doc.Source)
	}

	chunks := make([]Chunk, len(doc.Chunks))
	for i, chunk := range doc.Chunks {
		chunk.DocumentID = id
		chunk.Source = doc.Source
		if chunk.Title == "" {
			chunk.Title = doc.Title
		}
		if chunk.ID == "" {
			chunk.ID = uuid.NewString()
		}
		chunks[i] = chunk
	}
	vectors := make([][]float32, len(doc.Embeddings))
	copy(vectors, doc.Embeddings)

	s.docs[doc.Source] = memoryDocument{id: id, sha: doc.SHA, chunks: chunks, vectors: vectors}
	return UpsertResult{DocumentID: id, Inserted: len(chunks), Changed: true}, nil
}

func (s *MemoryStore) Search(_ context.Context, embedding []float32, limit int, filter Filter) ([]Hit, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]Hit, 0)
	for _, source := range s.order {
		doc := s.docs[source]
		for i, chunk := range doc.chunks {
			ok, err := matchesFilter(chunk, filter)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			hits = append(hits, Hit{Chunk: chunk, Distance: 1 - cosine(doc.vectors[i], embedding)})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = map[string]memoryDocument{}
	s.order = nil
	return nil
}

// Len reports the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, doc := range s.docs {
		total += len(doc.chunks)
	}
	return total
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ VectorStore = (*MemoryStore)(nil)
