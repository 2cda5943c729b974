// Package mock provides a deterministic embedder for tests and for running
// the backend without a local model: identical text always embeds to the
// identical unit vector, so index behavior is reproducible.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultDimensions matches all-MiniLM-L6-v2 so the mock is a drop-in for
// the onnx embedder.
const DefaultDimensions = 384

// Embedder derives embeddings from a text hash instead of a model.
type Embedder struct {
	dims int
}

// New returns a mock embedder with DefaultDimensions.
func New() *Embedder {
	return &Embedder{dims: DefaultDimensions}
}

// NewWithDimensions returns a mock embedder producing vectors of the given
// size. Sizes below 1 fall back to DefaultDimensions.
func NewWithDimensions(dims int) *Embedder {
	if dims < 1 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

// Embed hashes the text and expands the hash into a normalized vector with
// an LCG. The result depends only on the text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))

	vec := make([]float32, e.dims)
	state := h.Sum64()
	for i := range vec {
		state = state*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(state)) / float32(math.MaxInt64)
	}
	unitNorm(vec)
	return vec, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int { return e.dims }

// unitNorm scales vec to unit length in place. The zero vector stays zero.
func unitNorm(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}
