package embeddings

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const openAIBatchSize = 256

type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(opts Options) Embedder {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dimension: opts.Dimension,
	}
}

// Embed sends texts in batches. Blank inputs, which the API rejects, are
// embedded as a single space so positions stay aligned with the chunks.
func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += openAIBatchSize {
		end := start + openAIBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		inputs := make([]string, end-start)
		for i, text := range texts[start:end] {
			if strings.TrimSpace(text) == "" {
				text = " "
			}
			inputs[i] = text
		}

		req := openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: inputs,
		}
		// Only the text-embedding-3 family accepts a reduced dimension.
		if strings.HasPrefix(e.model, "text-embedding-3") && e.dimension > 0 {
			req.Dimensions = e.dimension
		}

		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("create openai embeddings: %w", err)
		}
		if len(resp.Data) != len(inputs) {
			return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(inputs))
		}

		for _, datum := range resp.Data {
			if datum.Index < 0 || datum.Index >= len(inputs) {
				return nil, fmt.Errorf("openai embedding index %d out of range", datum.Index)
			}
			if e.dimension > 0 && len(datum.Embedding) != e.dimension {
				return nil, dimensionError("openai", e.dimension, len(datum.Embedding))
			}
			results[start+datum.Index] = datum.Embedding
		}
	}
	return results, nil
}
