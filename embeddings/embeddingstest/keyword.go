// Package embeddingstest provides deterministic embedders for tests.
package embeddingstest

import (
	"context"
	"sync"

	"github.com/fabfab/estate-agent/catalogue"
)

// Keyword embeds text as whole-word counts over a fixed vocabulary, plus a
// small constant component so no vector is all zeros.
type Keyword struct {
	Vocabulary []string
	Err        error

	mu     sync.Mutex
	inputs []string
}

func NewKeyword(vocabulary ...string) *Keyword {
	return &Keyword{Vocabulary: vocabulary}
}

func (k *Keyword) Embed(_ context.Context, texts []string) ([][]float32, error) {
	k.mu.Lock()
	k.inputs = append(k.inputs, texts...)
	k.mu.Unlock()

	if k.Err != nil {
		return nil, k.Err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(k.Vocabulary)+1)
		for j, word := range k.Vocabulary {
			vec[j] = float32(catalogue.CountPhrase(text, word))
		}
		vec[len(k.Vocabulary)] = 0.01
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimension is the length of every produced vector.
func (k *Keyword) Dimension() int {
	return len(k.Vocabulary) + 1
}

// Inputs returns every text embedded so far.
func (k *Keyword) Inputs() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]string, len(k.inputs))
	copy(out, k.inputs)
	return out
}
