package embed

import (
	"fmt"
	"sort"
)

// Result is one nearest-neighbor match: the corpus index of the matched text
// and its cosine similarity to the query.
type Result struct {
	Index int
	Score float64
}

// Index is an exact inner-product index over a fixed corpus of normalized
// vectors. It is immutable after construction and safe for concurrent reads.
type Index struct {
	vectors [][]float64
	dim     int
}

// BuildIndex embeds every corpus text and stores the vectors. The corpus
// must be non-empty.
func BuildIndex(e Embedder, texts []string) (*Index, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("building index: empty corpus")
	}
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vectors[i] = e.Embed(text)
	}
	return &Index{vectors: vectors, dim: e.Dim()}, nil
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int { return len(ix.vectors) }

// Search returns the top-k corpus entries by inner product with the query
// vector, descending. Ties preserve corpus insertion order.
func (ix *Index) Search(query []float64, k int) ([]Result, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("searching index: query dimension %d != index dimension %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("searching index: k must be positive, got %d", k)
	}
	results := make([]Result, len(ix.vectors))
	for i, vec := range ix.vectors {
		var dot float64
		for j, v := range vec {
			dot += v * query[j]
		}
		results[i] = Result{Index: i, Score: dot}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}
