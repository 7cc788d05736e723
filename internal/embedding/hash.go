package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashProvider is a deterministic, dependency-free embedder. Each lowercase
// word is hashed into a signed bucket, so texts sharing words land close
// together under cosine similarity. Useful offline and in tests.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a HashProvider; dimension defaults to 256.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashProvider{dimension: dimension}
}

func (p *HashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *HashProvider) Dimension() int { return p.dimension }

func (p *HashProvider) vector(text string) []float32 {
	vec := make([]float32, p.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		h := fnv.New64a()
		h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dimension))
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Empty text still needs a non-zero vector for cosine indexes.
		vec[0] = 1
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
