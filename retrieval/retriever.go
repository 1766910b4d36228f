package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fabfab/estate-agent/embeddings"
	"github.com/fabfab/estate-agent/query"
	"github.com/fabfab/estate-agent/resilience"
)

const (
	defaultTopK         = 5
	defaultMultiplier   = 2
	defaultFloor        = 10
	fingerprintRuneSize = 100
)

type Options struct {
	CandidateMultiplier int
	CandidateFloor      int
	EmbedPolicy         *resilience.Policy
	SearchPolicy        *resilience.Policy
}

type Retriever struct {
	embedder embeddings.Embedder
	store    VectorStore
	opts     Options
	logger   *log.Logger
}

func NewRetriever(embedder embeddings.Embedder, store VectorStore, opts Options, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.Default()
	}
	if opts.CandidateMultiplier <= 0 {
		opts.CandidateMultiplier = defaultMultiplier
	}
	if opts.CandidateFloor <= 0 {
		opts.CandidateFloor = defaultFloor
	}
	return &Retriever{embedder: embedder, store: store, opts: opts, logger: logger}
}

// Search embeds the query (biased by its enhanced form), over-fetches
// candidates, filters them by the extracted locations and returns the best
// topK by similarity.
func (r *Retriever) Search(ctx context.Context, queryText string, analysis query.Analysis, topK int) ([]Result, error) {
	topK = normalizeTopK(topK)
	results, err := r.candidates(ctx, EmbeddingInput(queryText, analysis.Enhanced), r.candidateCount(topK), nil)
	if err != nil {
		return nil, err
	}
	return rank(FilterByLocations(results, analysis.Locations), topK), nil
}

// SearchMany sweeps several phrasings concurrently, keeping the first copy of
// any chunk seen by more than one of them.
func (r *Retriever) SearchMany(ctx context.Context, queries []string, analysis query.Analysis, topK int) ([]Result, error) {
	topK = normalizeTopK(topK)
	if len(queries) == 0 {
		return nil, nil
	}

	perQuery := make([][]Result, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			results, err := r.candidates(gctx, EmbeddingInput(q, analysis.Enhanced), r.candidateCount(topK), nil)
			if err != nil {
				return err
			}
			perQuery[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]Result, 0)
	for _, results := range perQuery {
		merged = append(merged, results...)
	}
	return rank(FilterByLocations(Dedupe(merged), analysis.Locations), topK), nil
}

// SearchLocality restricts the index search itself to one locality.
func (r *Retriever) SearchLocality(ctx context.Context, queryText, locality string, topK int) ([]Result, error) {
	topK = normalizeTopK(topK)
	var filter Filter
	if strings.TrimSpace(locality) != "" {
		filter = Filter{FieldLocality: locality}
	}
	results, err := r.candidates(ctx, queryText, topK, filter)
	if err != nil {
		return nil, err
	}
	return rank(results, topK), nil
}

func (r *Retriever) candidates(ctx context.Context, input string, limit int, filter Filter) ([]Result, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("embedder is not configured")
	}
	if r.store == nil {
		return nil, fmt.Errorf("vector store is not configured")
	}

	vectors, err := resilience.Do(ctx, r.opts.EmbedPolicy, "embed query", input, func(ctx context.Context) ([][]float32, error) {
		return r.embedder.Embed(ctx, []string{input})
	})
	if err != nil {
		r.logger.Printf("embed query failed for %q: %v", input, err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	hits, err := resilience.Do(ctx, r.opts.SearchPolicy, "search", input, func(ctx context.Context) ([]Hit, error) {
		return r.store.Search(ctx, vectors[0], limit, filter)
	})
	if err != nil {
		r.logger.Printf("vector search failed for %q: %v", input, err)
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Text:         hit.Chunk.Text,
			Source:       hit.Chunk.Source,
			Title:        hit.Chunk.Title,
			Locality:     hit.Chunk.Locality,
			PropertyType: hit.Chunk.PropertyType,
			Score:        Similarity(hit.Distance),
			ChunkIndex:   hit.Chunk.Index,
		})
	}
	return results, nil
}

func (r *Retriever) candidateCount(topK int) int {
	n := topK * r.opts.CandidateMultiplier
	if n < r.opts.CandidateFloor {
		n = r.opts.CandidateFloor
	}
	return n
}

// EmbeddingInput appends the enhanced query when it adds anything.
func EmbeddingInput(original, enhanced string) string {
	original = strings.TrimSpace(original)
	enhanced = strings.TrimSpace(enhanced)
	if enhanced == "" || enhanced == original {
		return original
	}
	return original + " " + enhanced
}

// FilterByLocations keeps results mentioning any location. When none would
// survive, the unfiltered results are returned.
func FilterByLocations(results []Result, locations []string) []Result {
	if len(locations) == 0 || len(results) == 0 {
		return results
	}

	filtered := make([]Result, 0, len(results))
	for _, result := range results {
		text := strings.ToLower(result.Text)
		for _, location := range locations {
			if strings.Contains(text, strings.ToLower(location)) || strings.EqualFold(result.Locality, location) {
				filtered = append(filtered, result)
				break
			}
		}
	}
	if len(filtered) == 0 {
		return results
	}
	return filtered
}

// Dedupe drops results whose text starts with the same prefix as an earlier one.
func Dedupe(results []Result) []Result {
	seen := make(map[string]struct{}, len(results))
	unique := make([]Result, 0, len(results))
	for _, result := range results {
		key := Fingerprint(result.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, result)
	}
	return unique
}

// Fingerprint is the fixed-length text prefix used for deduplication.
func Fingerprint(text string) string {
	runes := []rune(text)
	if len(runes) > fingerprintRuneSize {
		runes = runes[:fingerprintRuneSize]
	}
	return string(runes)
}

func rank(results []Result, topK int) []Result {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if len(sorted) > topK {
		sorted = sorted[:topK]
	}
	return sorted
}

func normalizeTopK(topK int) int {
	if topK <= 0 {
		return defaultTopK
	}
	return topK
}
