// Package embed provides the text-embedding collaborator used for semantic
// control search: an Embedder turns text into a unit-length vector, and an
// Index answers exact nearest-neighbor queries by inner product (equal to
// cosine similarity for normalized vectors).
package embed

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Embedder converts text into a fixed-dimension, L2-normalized vector.
// Implementations must be deterministic: the same text always yields the
// same vector.
type Embedder interface {
	Embed(text string) []float64
	Dim() int
}

// NewEmbedder parses a "provider:dimension" string and returns the matching
// Embedder. Example: "hash:256".
func NewEmbedder(spec string) (Embedder, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid embedder spec %q: expected provider:dimension (e.g. hash:256)", spec)
	}
	switch parts[0] {
	case "hash":
		dim, err := strconv.Atoi(parts[1])
		if err != nil || dim <= 0 {
			return nil, fmt.Errorf("invalid embedder dimension %q: must be a positive integer", parts[1])
		}
		return &hashEmbedder{dim: dim}, nil
	default:
		return nil, fmt.Errorf("unknown embedder provider %q: supported providers are hash", parts[0])
	}
}

// hashEmbedder is a deterministic signed feature-hashing embedder: each
// token is hashed into a bucket with a sign bit, term frequencies are
// accumulated, and the result is L2-normalized. It captures token overlap
// with sub-linear dimension and needs no model files.
type hashEmbedder struct {
	dim int
}

func (h *hashEmbedder) Dim() int { return h.dim }

func (h *hashEmbedder) Embed(text string) []float64 {
	vec := make([]float64, h.dim)
	for _, token := range tokenize(text) {
		hasher := fnv.New64a()
		hasher.Write([]byte(token)) //nolint:errcheck
		sum := hasher.Sum64()
		bucket := int(sum % uint64(h.dim))
		sign := 1.0
		if (sum>>32)&1 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign
	}
	normalize(vec)
	return vec
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalize scales vec to unit length in place; the zero vector is left as is.
func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}
