package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupyter-naas/abi-sub005/core"
	"github.com/jupyter-naas/abi-sub005/model"
)

// stubEmbedder returns fixed vectors per text, with a default for unknown inputs.
type stubEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.fail {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func testCatalog() []Intent {
	return []Intent{
		{Value: "hello", Type: TypeRaw, Target: "Hi there!"},
		{Value: "send an email", Type: TypeTool, Target: "send_email"},
		{Value: "talk to the researcher", Type: TypeAgent, Target: "Researcher"},
	}
}

func testEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: map[string][]float32{
		"hello":                  {1, 0, 0},
		"send an email":          {0, 1, 0},
		"talk to the researcher": {0.7, 0.7, 0},
		"hi":                     {0.99, 0.1, 0},
	}}
}

func TestMapIntentRanking(t *testing.T) {
	m := NewMapper(context.Background(), testEmbedder(), testCatalog())
	require.False(t, m.Degraded())

	matches, err := m.MapIntent(context.Background(), "hi", 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	assert.Equal(t, "hello", matches[0].Text)
	assert.Equal(t, TypeRaw, matches[0].Intent.Type)
	assert.Greater(t, matches[0].Score, 0.9)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i].Score, matches[i-1].Score)
	}
}

func TestMapIntentRespectsK(t *testing.T) {
	m := NewMapper(context.Background(), testEmbedder(), testCatalog())
	matches, err := m.MapIntent(context.Background(), "hi", 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestMapperDegradesOnEmbedderFailure(t *testing.T) {
	m := NewMapper(context.Background(), &stubEmbedder{fail: true}, testCatalog())
	assert.True(t, m.Degraded())

	matches, err := m.MapIntent(context.Background(), "please say HELLO to everyone", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "hello", matches[0].Text)
	assert.Equal(t, 1.0, matches[0].Score)
}

func TestMapperDegradesWithoutEmbedder(t *testing.T) {
	m := NewMapper(context.Background(), nil, testCatalog())
	assert.True(t, m.Degraded())
}

func TestDegradedMapPromptSkipsModel(t *testing.T) {
	rewriter := model.NewMockModel("rewriter", "mock")
	m := NewMapper(context.Background(), &stubEmbedder{fail: true}, testCatalog(),
		func(o *MapperOptions) { o.Rewriter = rewriter })

	rewritten, original, err := m.MapPrompt(context.Background(), "hello", 10)
	require.NoError(t, err)
	assert.Equal(t, rewritten, original)
	assert.Empty(t, rewriter.Requests())
}

func TestMapPromptUsesRewriter(t *testing.T) {
	rewriter := model.NewMockModel("rewriter", "mock")
	rewriter.QueueMessage(core.NewAIMessage("send an email"))

	m := NewMapper(context.Background(), testEmbedder(), testCatalog(),
		func(o *MapperOptions) { o.Rewriter = rewriter })

	rewritten, original, err := m.MapPrompt(context.Background(), "could you maybe shoot a message over to someone", 10)
	require.NoError(t, err)
	require.NotEmpty(t, rewritten)
	assert.Equal(t, "send an email", rewritten[0].Text)
	assert.NotNil(t, original)
	require.Len(t, rewriter.Requests(), 1)
}

func TestMapPromptRewriterFailureFallsBackToOriginal(t *testing.T) {
	rewriter := model.NewMockModel("rewriter", "mock")
	rewriter.QueueError(errors.New("model down"))

	m := NewMapper(context.Background(), testEmbedder(), testCatalog(),
		func(o *MapperOptions) { o.Rewriter = rewriter })

	rewritten, _, err := m.MapPrompt(context.Background(), "hi", 10)
	require.NoError(t, err)
	require.NotEmpty(t, rewritten)
	assert.Equal(t, "hello", rewritten[0].Text)
}

func TestMerge(t *testing.T) {
	a := []Intent{
		{Value: "hello", Type: TypeRaw, Target: "Hi there!"},
		{Value: "hello", Type: TypeRaw, Target: "Hi there!"},
	}
	b := []Intent{
		{Value: "hello", Type: TypeRaw, Target: "Hi there!"},
		{Value: "hello", Type: TypeRaw, Target: "Howdy!"},
		{Value: "hello", Type: TypeAgent, Target: "Greeter"},
	}

	merged := Merge(a, b)
	assert.Len(t, merged, 3)
	assert.Equal(t, "Hi there!", merged[0].Target)
}

func TestDefaults(t *testing.T) {
	defaults := Defaults()
	require.NotEmpty(t, defaults)

	var identity, raw int
	for _, it := range defaults {
		assert.Equal(t, ScopeDirect, it.Scope)
		switch it.Type {
		case TypeAgent:
			assert.Equal(t, CallModelTarget, it.Target)
			identity++
		case TypeRaw:
			assert.NotEmpty(t, it.Target)
			raw++
		}
	}
	assert.NotZero(t, identity)
	assert.NotZero(t, raw)
}

func TestMemoryIndex(t *testing.T) {
	idx := NewMemoryIndex()
	err := idx.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	err = idx.Add(context.Background(), []string{"c"}, [][]float32{})
	assert.Error(t, err)

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.0, hits[1].Score, 1e-6)

	hits, err = idx.Search(context.Background(), []float32{-1, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, hits[0].Score)
}
