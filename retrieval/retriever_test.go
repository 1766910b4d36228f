package retrieval_test

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/estate-agent/apperr"
	"github.com/fabfab/estate-agent/catalogue"
	"github.com/fabfab/estate-agent/embeddings/embeddingstest"
	"github.com/fabfab/estate-agent/query"
	"github.com/fabfab/estate-agent/resilience"
	"github.com/fabfab/estate-agent/retrieval"
)

var vocabulary = []string{"wakad", "baner", "kothrud", "villa", "apartment", "bhk", "pool", "gym", "evergreen", "heights"}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func seedStore(t *testing.T, embedder *embeddingstest.Keyword, docs map[string][]retrieval.Chunk) *retrieval.MemoryStore {
	t.Helper()
	store := retrieval.NewMemoryStore(embedder.Dimension())
	for source, chunks := range docs {
		texts := make([]string, len(chunks))
		for i := range chunks {
			texts[i] = chunks[i].Text
		}
		vectors, err := embedder.Embed(context.Background(), texts)
		require.NoError(t, err)
		_, err = store.Upsert(context.Background(), retrieval.Document{Source: source, SHA: source, Chunks: chunks, Embeddings: vectors})
		require.NoError(t, err)
	}
	return store
}

func TestSimilarityClamps(t *testing.T) {
	assert.InDelta(t, 0.75, retrieval.Similarity(0.25), 1e-9)
	assert.Equal(t, 0.0, retrieval.Similarity(1.3))
	assert.Equal(t, 1.0, retrieval.Similarity(-0.0001))
}

func TestFilterByLocationsFallsBack(t *testing.T) {
	results := []retrieval.Result{
		{Text: "Skyline villas in Baner", Score: 0.9},
		{Text: "Lakeview apartments, Wakad", Score: 0.8},
	}

	kept := retrieval.FilterByLocations(results, []string{"Wakad"})
	require.Len(t, kept, 1)
	assert.Equal(t, "Lakeview apartments, Wakad", kept[0].Text)

	fallback := retrieval.FilterByLocations(results, []string{"Kothrud"})
	assert.Equal(t, results, fallback)

	assert.Equal(t, results, retrieval.FilterByLocations(results, nil))
}

func TestFilterByLocationsUsesChunkLocality(t *testing.T) {
	results := []retrieval.Result{{Text: "Tower B possession in 2026", Locality: "Hinjewadi"}}
	assert.Len(t, retrieval.FilterByLocations(results, []string{"hinjewadi"}), 1)
}

func TestDedupeKeepsFirstSeen(t *testing.T) {
	prefix := strings.Repeat("Evergreen Heights offers 2 BHK homes. ", 5)
	results := []retrieval.Result{
		{Text: prefix + "first tail", Score: 0.5},
		{Text: "something else", Score: 0.4},
		{Text: prefix + "second tail", Score: 0.9},
	}

	unique := retrieval.Dedupe(results)
	require.Len(t, unique, 2)
	assert.Equal(t, 0.5, unique[0].Score)
}

func TestEmbeddingInput(t *testing.T) {
	assert.Equal(t, "villas in baner", retrieval.EmbeddingInput("villas in baner", "villas in baner"))
	assert.Equal(t, "2bhk wakad 2 BHK properties in Wakad", retrieval.EmbeddingInput("2bhk wakad", "2 BHK properties in Wakad"))
}

func TestSearchFiltersToRequestedLocality(t *testing.T) {
	embedder := embeddingstest.NewKeyword(vocabulary...)
	store := seedStore(t, embedder, map[string][]retrieval.Chunk{
		"wakad.pdf": {
			{Index: 0, Text: "Lakeview apartment Wakad with pool", Locality: "Wakad"},
			{Index: 1, Text: "Wakad 2 BHK apartment with gym", Locality: "Wakad"},
		},
		"baner.pdf": {
			{Index: 0, Text: "Baner apartment tower with pool and gym", Locality: "Baner"},
		},
	})

	retriever := retrieval.NewRetriever(embedder, store, retrieval.Options{}, quietLogger())
	analysis := query.NewAnalyzer(catalogue.Default()).Analyze("Show me properties in Wakad")

	results, err := retriever.Search(context.Background(), analysis.Original, analysis, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, "Wakad", result.Locality)
		assert.Equal(t, "wakad.pdf", result.Source)
	}
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearchFallsBackWhenLocationMissing(t *testing.T) {
	embedder := embeddingstest.NewKeyword(vocabulary...)
	store := seedStore(t, embedder, map[string][]retrieval.Chunk{
		"baner.pdf": {{Index: 0, Text: "Baner villa with pool", Locality: "Baner"}},
	})

	retriever := retrieval.NewRetriever(embedder, store, retrieval.Options{}, quietLogger())
	analysis := query.NewAnalyzer(catalogue.Default()).Analyze("villa with pool in Kothrud")

	results, err := retriever.Search(context.Background(), analysis.Original, analysis, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Baner", results[0].Locality)
}

type recordingStore struct {
	retrieval.VectorStore
	limits  []int
	filters []retrieval.Filter
	err     error
}

func (s *recordingStore) Search(ctx context.Context, embedding []float32, limit int, filter retrieval.Filter) ([]retrieval.Hit, error) {
	s.limits = append(s.limits, limit)
	s.filters = append(s.filters, filter)
	if s.err != nil {
		return nil, s.err
	}
	return []retrieval.Hit{{Chunk: retrieval.Chunk{Text: "x"}, Distance: 1.2}}, nil
}

func TestSearchOverFetchesCandidates(t *testing.T) {
	store := &recordingStore{}
	retriever := retrieval.NewRetriever(embeddingstest.NewKeyword(vocabulary...), store, retrieval.Options{CandidateMultiplier: 3, CandidateFloor: 10}, quietLogger())

	_, err := retriever.Search(context.Background(), "villa", query.Analysis{}, 2)
	require.NoError(t, err)
	_, err = retriever.Search(context.Background(), "villa", query.Analysis{}, 5)
	require.NoError(t, err)

	assert.Equal(t, []int{10, 15}, store.limits)
}

func TestSearchClampsNegativeScores(t *testing.T) {
	retriever := retrieval.NewRetriever(embeddingstest.NewKeyword(vocabulary...), &recordingStore{}, retrieval.Options{}, quietLogger())

	results, err := retriever.Search(context.Background(), "villa", query.Analysis{}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Score)
}

func TestSearchLocalityPushesFilterDown(t *testing.T) {
	store := &recordingStore{}
	retriever := retrieval.NewRetriever(embeddingstest.NewKeyword(vocabulary...), store, retrieval.Options{}, quietLogger())

	_, err := retriever.SearchLocality(context.Background(), "amenities", "Baner", 4)
	require.NoError(t, err)
	require.Len(t, store.filters, 1)
	assert.Equal(t, retrieval.Filter{retrieval.FieldLocality: "Baner"}, store.filters[0])
	assert.Equal(t, []int{4}, store.limits)
}

func TestSearchManyDeduplicatesAcrossQueries(t *testing.T) {
	embedder := embeddingstest.NewKeyword(vocabulary...)
	store := seedStore(t, embedder, map[string][]retrieval.Chunk{
		"evergreen.pdf": {
			{Index: 0, Text: "Evergreen Heights Wakad 2 BHK apartment", Locality: "Wakad"},
			{Index: 1, Text: "Evergreen Heights pool and gym", Locality: "Wakad"},
		},
	})
	retriever := retrieval.NewRetriever(embedder, store, retrieval.Options{}, quietLogger())

	results, err := retriever.SearchMany(context.Background(), []string{"evergreen heights", "evergreen pool", "wakad apartment"}, query.Analysis{}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchReportsExternalFailures(t *testing.T) {
	embedder := embeddingstest.NewKeyword(vocabulary...)
	embedder.Err = errors.New("embedding service down")
	policy := resilience.New(resilience.Settings{Name: "embedding"}, quietLogger())
	retriever := retrieval.NewRetriever(embedder, &recordingStore{}, retrieval.Options{EmbedPolicy: policy}, quietLogger())

	_, err := retriever.Search(context.Background(), "villa", query.Analysis{}, 3)
	require.Error(t, err)
	assert.True(t, apperr.IsExternal(err))
}

func TestGuardSerialisesReset(t *testing.T) {
	embedder := embeddingstest.NewKeyword(vocabulary...)
	store := seedStore(t, embedder, map[string][]retrieval.Chunk{
		"baner.pdf": {{Index: 0, Text: "Baner villa", Locality: "Baner"}},
	})
	guard := retrieval.NewGuard(store)

	require.NoError(t, guard.Reset(context.Background()))
	assert.Equal(t, 0, store.Len())

	called := false
	require.NoError(t, guard.Exclusive(context.Background(), func(ctx context.Context, s retrieval.VectorStore) error {
		called = true
		return nil
	}))
	assert.True(t, called)
}
