// Package intent implements the embedding-based intent classification
// subsystem: a static catalog of Intent records, a Mapper that resolves free
// text to catalog entries by vector similarity (with an LLM paraphrase
// fallback and a degraded substring mode), and the bootstrap intents every
// intent-routed agent is seeded with.
package intent

import "context"

// Type discriminates what an intent's target means.
type Type string

const (
	// TypeRaw targets a literal response string.
	TypeRaw Type = "RAW"
	// TypeTool targets a tool name to invoke.
	TypeTool Type = "TOOL"
	// TypeAgent targets a graph node to transition to.
	TypeAgent Type = "AGENT"
)

// Scope groups intents for presentation. It plays no part in routing.
type Scope string

// ScopeDirect marks framework bootstrap intents.
const ScopeDirect Scope = "direct"

// Intent is an immutable catalog entry mapping a canonical phrase to a
// routing outcome.
type Intent struct {
	Value  string `json:"value"`
	Type   Type   `json:"type"`
	Target string `json:"target"`
	Scope  Scope  `json:"scope,omitempty"`
}

// Key returns the identity triple used for catalog deduplication.
func (i Intent) Key() string {
	return i.Value + "\x00" + string(i.Type) + "\x00" + i.Target
}

// Match is one intent lookup result.
type Match struct {
	Text   string  `json:"text"`
	Intent Intent  `json:"intent"`
	Score  float64 `json:"score"`
}

// Embedder produces one dense vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is a raw nearest-neighbor result from an Index.
type Hit struct {
	Text  string
	Score float64
}

// Index is the vector store capability the Mapper builds on.
type Index interface {
	Add(ctx context.Context, texts []string, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

// Merge combines intent catalogs, deduplicating on the (value, type, target)
// triple and keeping first-seen entries.
func Merge(catalogs ...[]Intent) []Intent {
	seen := map[string]struct{}{}
	var out []Intent
	for _, catalog := range catalogs {
		for _, it := range catalog {
			key := it.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, it)
		}
	}
	return out
}
