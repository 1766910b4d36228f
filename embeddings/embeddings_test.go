package embeddings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/estate-agent/apperr"
	"github.com/fabfab/estate-agent/config"
	"github.com/fabfab/estate-agent/embeddings"
)

func TestNewEmbedderDefaults(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingConfig{
			Provider:  config.ProviderOllama,
			Model:     "nomic-embed-text",
			Dimension: 3,
		},
		OllamaHost: "http://localhost:11434",
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	require.NoError(t, err)
	assert.NotNil(t, embedder)
}

func TestNewEmbedderOpenAIMissingKey(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingConfig{
			Provider:  config.ProviderOpenAI,
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
	}

	_, err := embeddings.NewEmbedder(cfg)
	require.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
}

func newOllamaServer(t *testing.T, vector []float32) (*httptest.Server, *[]int) {
	t.Helper()
	var batches []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nomic-embed-text", body.Model)
		batches = append(batches, len(body.Input))

		out := make([][]float32, len(body.Input))
		for i := range out {
			out[i] = vector
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
	t.Cleanup(server.Close)
	return server, &batches
}

func TestOllamaEmbedderBatchesInputs(t *testing.T) {
	server, batches := newOllamaServer(t, []float32{0.1, 0.2, 0.3})
	embedder := embeddings.NewOllamaEmbedder(embeddings.Options{
		Model:      "nomic-embed-text",
		Dimension:  3,
		OllamaHost: server.URL,
	})

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = "Evergreen Heights, Wakad"
	}
	vectors, err := embedder.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 20)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, vectors[19], 1e-6)
	assert.Equal(t, []int{16, 4}, *batches)
}

func TestOllamaEmbedderReportsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model \"nomic-embed-text\" not found"})
	}))
	t.Cleanup(server.Close)

	embedder := embeddings.NewOllamaEmbedder(embeddings.Options{Model: "nomic-embed-text", OllamaHost: server.URL})
	_, err := embedder.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestProbeDetectsDimensionMismatch(t *testing.T) {
	server, _ := newOllamaServer(t, []float32{0.1, 0.2})
	embedder := embeddings.NewOllamaEmbedder(embeddings.Options{
		Model:      "nomic-embed-text",
		OllamaHost: server.URL,
	})

	err := embeddings.Probe(context.Background(), embedder, 768)
	require.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))

	require.NoError(t, embeddings.Probe(context.Background(), embedder, 2))
}

func TestOllamaEmbedderRejectsWrongDimension(t *testing.T) {
	server, _ := newOllamaServer(t, []float32{0.1, 0.2})
	embedder := embeddings.NewOllamaEmbedder(embeddings.Options{
		Model:      "nomic-embed-text",
		Dimension:  3,
		OllamaHost: server.URL,
	})

	_, err := embedder.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestOpenAIEmbedderBatchesAndKeepsOrder(t *testing.T) {
	var sizes []int
	var dimensions []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var body struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		sizes = append(sizes, len(body.Input))
		dimensions = append(dimensions, body.Dimensions)

		// Reply in reverse so the embedder has to place vectors by index.
		data := make([]map[string]any, 0, len(body.Input))
		for i := len(body.Input) - 1; i >= 0; i-- {
			first := float32(0)
			if body.Input[i] == "Skyline Villas" {
				first = 1
			}
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": []float32{first, 0.5}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "text-embedding-3-small"})
	}))
	t.Cleanup(server.Close)

	embedder := embeddings.NewOpenAIEmbedder(embeddings.Options{
		Model:         "text-embedding-3-small",
		Dimension:     2,
		OpenAIAPIKey:  "test",
		OpenAIBaseURL: server.URL + "/v1",
	})

	texts := make([]string, 300)
	for i := range texts {
		texts[i] = "Evergreen Heights"
	}
	texts[270] = "Skyline Villas"
	texts[10] = "   "

	vectors, err := embedder.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 300)
	assert.Equal(t, []int{256, 44}, sizes)
	assert.Equal(t, []int{2, 2}, dimensions)
	assert.Equal(t, float32(1), vectors[270][0])
	assert.Equal(t, float32(0), vectors[269][0])
}
