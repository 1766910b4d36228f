package embeddings

import (
	"context"
	"fmt"

	"github.com/fabfab/estate-agent/apperr"
	"github.com/fabfab/estate-agent/config"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Provider  string
	Model     string
	Dimension int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, apperr.Configuration("OPENAI_API_KEY", "openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIEmbedder(opts), nil
	default:
		return nil, apperr.Configuration("EMBEDDING_PROVIDER", fmt.Sprintf("unknown embedding provider: %s", opts.Provider))
	}
}

// Probe embeds a short text once and checks the vector length against the
// index dimension. A mismatch is a configuration error, not a runtime one.
func Probe(ctx context.Context, embedder Embedder, dimension int) error {
	vectors, err := embedder.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		if apperr.IsConfiguration(err) {
			return err
		}
		return fmt.Errorf("probe embedder: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("probe embedder: expected 1 vector, got %d", len(vectors))
	}
	if len(vectors[0]) != dimension {
		return apperr.Configuration("EMBEDDING_DIMENSION", fmt.Sprintf("index expects %d dimensions, embedder produced %d", dimension, len(vectors[0])))
	}
	return nil
}

func dimensionError(provider string, expected, got int) error {
	return &apperr.ConfigurationError{
		Field:  "EMBEDDING_DIMENSION",
		Reason: fmt.Sprintf("%s embedding dimension mismatch: expected %d, got %d", provider, expected, got),
	}
}
