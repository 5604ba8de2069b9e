package adapter

import (
	"context"
	"hash/fnv"
	"math"
	"unicode/utf8"
)

// HashEmbedder produces deterministic pseudo-embeddings from a text hash. It
// needs no network or credentials, which makes it the offline default and the
// embedder of choice in tests: identical texts always map to identical unit
// vectors.
type HashEmbedder struct {
	dimensions int
}

func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	vectors := make([][]float32, len(texts))
	tokens := 0
	for i, text := range texts {
		vectors[i] = h.embedOne(text)
		tokens += utf8.RuneCountInString(text)
	}
	return vectors, tokens, nil
}

func (h *HashEmbedder) embedOne(text string) []float32 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(text))

	// LCG seeded by the text hash fills the vector with values in [-1, 1].
	seed := hasher.Sum64()
	vec := make([]float32, h.dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
