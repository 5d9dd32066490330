// Package embedding converts text into vectors for the collection.
package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/eugenenazirov/doc-assistant/internal/llm"
)

// DefaultDimension is the vector size used by Hashing when none is configured.
const DefaultDimension = 256

// ErrNoProvider is returned by FromProvider when given a nil provider.
var ErrNoProvider = errors.New("embedding provider is required")

// Embedder turns texts into embedding vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Hashing is a deterministic bag-of-words embedder using signed feature hashing.
// It needs no model and is the default for local runs and tests.
type Hashing struct {
	Dimension int
}

// NewHashing returns a hashing embedder with the given dimension.
func NewHashing(dimension int) Hashing {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return Hashing{Dimension: dimension}
}

// Embed hashes the lowercase word tokens of every text into an L2-normalised vector.
func (h Hashing) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dim := h.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dim)
		for _, token := range Tokenize(text) {
			hasher := fnv.New64a()
			_, _ = hasher.Write([]byte(token))
			sum := hasher.Sum64()
			bucket := int(sum % uint64(dim))
			if sum&(1<<63) != 0 {
				vec[bucket]--
			} else {
				vec[bucket]++
			}
		}
		normalize(vec)
		out[i] = vec
	}
	return out, nil
}

// Tokenize splits text into lowercase alphanumeric tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// FromProvider adapts an LLM embedding endpoint to Embedder.
func FromProvider(provider llm.Embedder) (Embedder, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	return provider, nil
}
