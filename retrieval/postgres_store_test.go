package retrieval_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/estate-agent/config"
	"github.com/fabfab/estate-agent/database"
	"github.com/fabfab/estate-agent/retrieval"
)

func TestPostgresStoreRankingAndFilter(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database connectivity checks")
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	require.NoError(t, err)
	defer pool.Close()

	dim := cfg.Embeddings.Dimension
	require.NoError(t, database.EnsureRAGSchema(ctx, pool, dim))

	makeVector := func(x, y float32) []float32 {
		vec := make([]float32, dim)
		vec[0] = x
		vec[1] = y
		return vec
	}

	suffix := uuid.NewString()
	wakad := "test/wakad-" + suffix + ".md"
	baner := "test/baner-" + suffix + ".md"
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, "DELETE FROM rag_documents WHERE source_path = ANY($1)", []string{wakad, baner})
	})

	store := retrieval.NewPostgresStore(pool, quietLogger())
	first, err := store.Upsert(ctx, retrieval.Document{
		Source:     wakad,
		Title:      "Evergreen Heights",
		SHA:        "hash-a",
		Chunks:     []retrieval.Chunk{{Index: 0, Text: "Evergreen Heights, Wakad", Locality: "Wakad", PropertyType: "Apartment"}},
		Embeddings: [][]float32{makeVector(1, 0)},
	})
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, 1, first.Inserted)

	_, err = store.Upsert(ctx, retrieval.Document{
		Source:     baner,
		Title:      "Skyline Villas",
		SHA:        "hash-b",
		Chunks:     []retrieval.Chunk{{Index: 0, Text: "Skyline Villas, Baner", Locality: "Baner", PropertyType: "Villa"}},
		Embeddings: [][]float32{makeVector(0.6, 0.8)},
	})
	require.NoError(t, err)

	again, err := store.Upsert(ctx, retrieval.Document{
		Source:     wakad,
		SHA:        "hash-a",
		Chunks:     []retrieval.Chunk{{Index: 0, Text: "Evergreen Heights, Wakad"}},
		Embeddings: [][]float32{makeVector(1, 0)},
	})
	require.NoError(t, err)
	assert.False(t, again.Changed)

	hits, err := store.Search(ctx, makeVector(0.9, 0.1), 2, retrieval.Filter{retrieval.FieldSource: wakad})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Wakad", hits[0].Chunk.Locality)
	assert.Equal(t, "Evergreen Heights", hits[0].Chunk.Title)

	hits, err = store.Search(ctx, makeVector(0.9, 0.1), 50, retrieval.Filter{retrieval.FieldLocality: "Baner"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		assert.Equal(t, "Baner", hit.Chunk.Locality)
	}
}
