package intent

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// MemoryIndex is an in-process Index using exhaustive cosine similarity.
// Suitable for the small static catalogs intents are drawn from.
type MemoryIndex struct {
	texts   []string
	vectors [][]float32
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Add implements Index.
func (m *MemoryIndex) Add(_ context.Context, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("memory index: %d texts but %d vectors", len(texts), len(vectors))
	}
	m.texts = append(m.texts, texts...)
	m.vectors = append(m.vectors, vectors...)
	return nil
}

// Search implements Index. Scores are cosine similarity clamped to [0, 1].
func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(m.texts))
	for i, text := range m.texts {
		score := cosine(vector, m.vectors[i])
		if score < 0 {
			score = 0
		}
		hits = append(hits, Hit{Text: text, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
