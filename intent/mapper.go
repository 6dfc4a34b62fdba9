package intent

import (
	"context"
	"strings"

	"github.com/jupyter-naas/abi-sub005/core"
	"github.com/jupyter-naas/abi-sub005/logging"
	"github.com/jupyter-naas/abi-sub005/model"
)

const rewritePrompt = `You rewrite user messages into terse canonical intent phrasings so they can be matched against an intent catalog by vector search.

Rules:
- Output only the rewritten phrase, nothing else.
- Keep it short and imperative or interrogative, matching how intents are usually phrased.
- Preserve named entities exactly as written.

Examples:
User: "hey, could you maybe tell me what time it is right now?"
Output: what time is it

User: "I'd love it if someone could send an email to John for me"
Output: send an email to John

User: "umm who exactly am I talking to here"
Output: who are you`

// MapperOptions configure Mapper construction.
type MapperOptions struct {
	// Index receives the catalog embeddings. Defaults to a MemoryIndex.
	Index Index
	// Rewriter is the model used by MapPrompt to paraphrase queries. When
	// nil, MapPrompt behaves like MapIntent.
	Rewriter model.ChatModel
	Logger   logging.Logger
}

// Mapper resolves free text to catalog intents. Embeddings for the whole
// catalog are computed once, batched, at construction. If embedding or
// indexing fails the mapper degrades to case-insensitive substring matching
// for its lifetime; the failure is logged once, not retried per call.
type Mapper struct {
	catalog  []Intent
	byText   map[string]Intent
	embedder Embedder
	index    Index
	rewriter model.ChatModel
	logger   logging.Logger
	degraded bool
}

// NewMapper builds a mapper over the given catalog, eagerly embedding every
// intent phrase.
func NewMapper(ctx context.Context, embedder Embedder, catalog []Intent, optFns ...func(o *MapperOptions)) *Mapper {
	opts := MapperOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Index == nil {
		opts.Index = NewMemoryIndex()
	}

	m := &Mapper{
		catalog:  catalog,
		byText:   make(map[string]Intent, len(catalog)),
		embedder: embedder,
		index:    opts.Index,
		rewriter: opts.Rewriter,
		logger:   logging.OrNoOp(opts.Logger),
	}
	for _, it := range catalog {
		if _, ok := m.byText[it.Value]; !ok {
			m.byText[it.Value] = it
		}
	}

	if err := m.buildIndex(ctx); err != nil {
		m.logger.Warn("intent.mapper.degraded",
			"error", err.Error(),
			"fallback", "substring matching",
		)
		m.degraded = true
	}
	return m
}

func (m *Mapper) buildIndex(ctx context.Context) error {
	if len(m.catalog) == 0 {
		return nil
	}
	if m.embedder == nil {
		return errNoEmbedder
	}

	texts := make([]string, len(m.catalog))
	for i, it := range m.catalog {
		texts[i] = it.Value
	}
	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	return m.index.Add(ctx, texts, vectors)
}

// Degraded reports whether the mapper fell back to substring matching.
func (m *Mapper) Degraded() bool { return m.degraded }

// Catalog returns the intents this mapper was built over.
func (m *Mapper) Catalog() []Intent { return m.catalog }

// MapIntent returns the top-k catalog entries nearest to text, with
// similarity scores. In degraded mode it returns score 1.0 for any
// case-insensitive substring containment in either direction.
func (m *Mapper) MapIntent(ctx context.Context, text string, k int) ([]Match, error) {
	if m.degraded {
		return m.substringMatch(text, k), nil
	}

	vectors, err := m.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	hits, err := m.index.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		it, ok := m.byText[hit.Text]
		if !ok {
			continue
		}
		matches = append(matches, Match{Text: hit.Text, Intent: it, Score: hit.Score})
	}
	return matches, nil
}

// MapPrompt asks the rewriter model to paraphrase text into a canonical
// intent phrasing, then runs MapIntent on both the rewritten phrase and the
// original text. The rewritten-phrase results are the primary signal; the
// raw-text results serve as a fallback. Degraded mappers skip the model call
// entirely.
func (m *Mapper) MapPrompt(ctx context.Context, text string, k int) (rewritten []Match, original []Match, err error) {
	if m.degraded || m.rewriter == nil {
		matches := m.substringMatch(text, k)
		return matches, matches, nil
	}

	phrase := text
	reply, rewriteErr := m.rewriter.Invoke(ctx, []core.Message{
		core.NewSystemMessage(rewritePrompt),
		core.NewHumanMessage(text),
	})
	if rewriteErr != nil {
		m.logger.Warn("intent.mapper.rewrite_failed", "error", rewriteErr.Error())
	} else if trimmed := strings.TrimSpace(reply.Content); trimmed != "" {
		phrase = trimmed
	}

	rewritten, err = m.MapIntent(ctx, phrase, k)
	if err != nil {
		return nil, nil, err
	}
	original, err = m.MapIntent(ctx, text, k)
	if err != nil {
		return nil, nil, err
	}
	return rewritten, original, nil
}

func (m *Mapper) substringMatch(text string, k int) []Match {
	needle := strings.ToLower(text)
	var matches []Match
	for _, it := range m.catalog {
		phrase := strings.ToLower(it.Value)
		if strings.Contains(needle, phrase) || strings.Contains(phrase, needle) {
			matches = append(matches, Match{Text: it.Value, Intent: it, Score: 1.0})
			if len(matches) == k {
				break
			}
		}
	}
	return matches
}

type mapperError string

func (e mapperError) Error() string { return string(e) }

const errNoEmbedder = mapperError("no embedder configured")
