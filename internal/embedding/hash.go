package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// =============================================================================
// DETERMINISTIC HASH ENGINE
// =============================================================================

// hashDimensions is the fixed vector size of the lexical-hash engine.
const hashDimensions = 256

// HashEngine produces deterministic embeddings by feature-hashing normalized
// tokens into a fixed-size vector. It needs no model or network: the same
// text always yields the same vector, which makes it the default backend for
// tests and for running without an inference service. It never fails.
type HashEngine struct{}

// NewHashEngine creates a deterministic lexical-hash embedding engine.
func NewHashEngine() *HashEngine {
	return &HashEngine{}
}

// Embed hashes each token (and each adjacent token bigram, to keep some
// word-order signal) into a bucket, then L2-normalizes the counts.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashDimensions)

	tokens := Tokenize(text)
	for i, tok := range tokens {
		vec[bucket(tok)]++
		if i > 0 {
			vec[bucket(tokens[i-1]+" "+tok)]++
		}
	}

	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v * v)
	}
	if magnitude > 0 {
		norm := float32(math.Sqrt(magnitude))
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the fixed vector size.
func (e *HashEngine) Dimensions() int {
	return hashDimensions
}

// Name returns the engine name.
func (e *HashEngine) Name() string {
	return "hash"
}

func bucket(token string) int {
	h := fnv.New32a()
	h.Write([]byte(token))
	return int(h.Sum32() % hashDimensions)
}
