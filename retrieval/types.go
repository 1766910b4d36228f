// Package retrieval owns the vector index contract and the query-time search
// that filters, deduplicates and ranks brochure chunks.
package retrieval

import (
	"context"
	"fmt"
)

// Filter fields understood by every VectorStore.
const (
	FieldLocality     = "locality"
	FieldPropertyType = "property_type"
	FieldSource       = "source"
)

// Chunk is one embedded brochure segment. It is immutable once stored.
type Chunk struct {
	ID           string
	DocumentID   string
	Source       string
	Title        string
	Index        int
	Text         string
	Locality     string
	PropertyType string
	Metadata     map[string]string
}

// Document is a brochure with its chunks and their embeddings, index-aligned.
type Document struct {
	Source     string
	Title      string
	SHA        string
	Chunks     []Chunk
	Embeddings [][]float32
}

type UpsertResult struct {
	DocumentID string
	// Inserted is the number of vectors written; zero when the stored hash matched.
	Inserted int
	Changed  bool
}

// Hit is a raw index match. Distance is cosine distance, 1 - cosine similarity.
type Hit struct {
	Chunk    Chunk
	Distance float64
}

// Filter is a conjunction of equality predicates over chunk fields.
type Filter map[string]string

type VectorStore interface {
	Upsert(ctx context.Context, doc Document) (UpsertResult, error)
	Search(ctx context.Context, embedding []float32, limit int, filter Filter) ([]Hit, error)
	Reset(ctx context.Context) error
}

// Result is a ranked search match handed to routing and composition.
type Result struct {
	Text         string  `json:"text"`
	Source       string  `json:"source"`
	Title        string  `json:"title,omitempty"`
	Locality     string  `json:"locality"`
	PropertyType string  `json:"property_type"`
	Score        float64 `json:"score"`
	ChunkIndex   int     `json:"chunk_index"`
}

// Similarity converts cosine distance back to a score in [0,1].
func Similarity(distance float64) float64 {
	score := 1 - distance
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func validateDocument(doc Document) error {
	if doc.Source == "" {
		return fmt.Errorf("document source is required")
	}
	if len(doc.Chunks) != len(doc.Embeddings) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(doc.Chunks), len(doc.Embeddings))
	}
	for i, chunk := range doc.Chunks {
		if chunk.Text == "" {
			return fmt.Errorf("chunk %d has no text", i)
		}
		if i > 0 && chunk.Index <= doc.Chunks[i-1].Index {
			return fmt.Errorf("chunk %d index %d is not increasing", i, chunk.Index)
		}
	}
	return nil
}

func matchesFilter(chunk Chunk, filter Filter) (bool, error) {
	for field, want := range filter {
		var have string
		switch field {
		case FieldLocality:
			have = chunk.Locality
		case FieldPropertyType:
			have = chunk.PropertyType
		case FieldSource:
			have = chunk.Source
		default:
			return false, fmt.Errorf("unsupported filter field %q", field)
		}
		if have != want {
			return false, nil
		}
	}
	return true, nil
}
