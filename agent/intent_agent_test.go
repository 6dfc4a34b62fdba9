package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupyter-naas/abi-sub005/core"
	"github.com/jupyter-naas/abi-sub005/graph"
	"github.com/jupyter-naas/abi-sub005/intent"
	"github.com/jupyter-naas/abi-sub005/model"
	"github.com/jupyter-naas/abi-sub005/tool"
)

// stubEmbedder returns fixed vectors per phrase. Unknown phrases embed to the
// zero vector, which scores 0 against everything, so only phrases the test
// declares can ever match.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := e.vectors[text]
		if !ok {
			v = []float32{0, 0, 0}
		}
		out[i] = v
	}
	return out, nil
}

func TestRawIntentShortCircuits(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"hello": {1, 0, 0},
	}}

	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Embedder = embedder
	})
	require.NoError(t, err)

	reply, err := a.Invoke(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help you today?", reply)
	assert.Empty(t, mock.Requests(), "a canned reply must not consult the model")
}

func TestAgentIntentRoutesToChild(t *testing.T) {
	childModel := model.NewMockModel("child-model", "test")
	child, err := New("Researcher", "digs things up", childModel)
	require.NoError(t, err)

	mock := model.NewMockModel("mock", "test")
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"talk to the researcher": {1, 0, 0},
	}}

	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Agents = []*Agent{child}
		o.Embedder = embedder
		o.Intents = []intent.Intent{
			{Value: "talk to the researcher", Type: intent.TypeAgent, Target: "Researcher"},
		}
	})
	require.NoError(t, err)

	reply, err := a.Invoke(context.Background(), "talk to the researcher")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: talk to the researcher", reply)
	assert.Equal(t, "Researcher", a.Shared().CurrentActiveAgent())
	assert.Empty(t, mock.Requests())
}

func TestToolIntentInjectsRules(t *testing.T) {
	sendEmail := tool.NewFunctionTool("send_email", "Send an email.", map[string]any{
		"type": "object", "properties": map[string]any{},
	}, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return "sent", nil
	})

	mock := model.NewMockModel("mock", "test")
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"send an email": {1, 0, 0},
	}}

	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Tools = []tool.Tool{sendEmail}
		o.Embedder = embedder
		o.Intents = []intent.Intent{
			{Value: "send an email", Type: intent.TypeTool, Target: "send_email"},
		}
	})
	require.NoError(t, err)

	reply, err := a.Invoke(context.Background(), "send an email")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: send an email", reply)

	prompt := a.SystemPrompt()
	assert.Contains(t, prompt, "INTENT RULES")
	assert.Contains(t, prompt, "END INTENT RULES")
	assert.Contains(t, prompt, "send_email")

	requests := mock.Requests()
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0][0].Content, "INTENT RULES")
}

// ambiguousRouter builds an intent agent with two child agents whose intent
// phrases score 0.95 and 0.947 against "talk to someone", inside the neighbor
// window.
func ambiguousRouter(t *testing.T) (*IntentAgent, *model.MockModel, *model.MockModel, *model.MockModel) {
	t.Helper()

	researcherModel := model.NewMockModel("researcher-model", "test")
	researcher, err := New("Researcher", "", researcherModel)
	require.NoError(t, err)
	writerModel := model.NewMockModel("writer-model", "test")
	writer, err := New("Writer", "", writerModel)
	require.NoError(t, err)

	mock := model.NewMockModel("mock", "test")
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"talk to the researcher": {1, 0, 0},
		"talk to the writer":     {0.8, 0.6, 0},
		"talk to someone":        {0.95, 0.31, 0},
	}}

	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Agents = []*Agent{researcher, writer}
		o.Embedder = embedder
		o.Intents = []intent.Intent{
			{Value: "talk to the researcher", Type: intent.TypeAgent, Target: "Researcher"},
			{Value: "talk to the writer", Type: intent.TypeAgent, Target: "Writer"},
		}
	})
	require.NoError(t, err)
	return a, mock, researcherModel, writerModel
}

func TestAmbiguousIntentsAskForValidation(t *testing.T) {
	a, mock, _, writerModel := ambiguousRouter(t)

	// The forced filter call keeps both candidates.
	filterReply := core.NewAIMessage("")
	filterReply.ToolCalls = []core.ToolCall{{
		ID:        "call-1",
		Name:      "filter_intents",
		Arguments: json.RawMessage(`{"bool_list":[true,true]}`),
	}}
	mock.QueueMessage(filterReply)

	reply, err := a.Invoke(context.Background(), "talk to someone")
	require.NoError(t, err)

	assert.Contains(t, reply, validationMarker)
	assert.Contains(t, reply, "1. Researcher: talk to the researcher")
	assert.Contains(t, reply, "2. Writer: talk to the writer")
	assert.Equal(t, "filter_intents", mock.ForcedTool())

	// A numeric reply resolves the pending question.
	reply, err = a.Invoke(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: 2", reply)
	assert.Len(t, writerModel.Requests(), 1)
	assert.Equal(t, "Writer", a.Shared().CurrentActiveAgent())
}

func TestFilterFailsOpen(t *testing.T) {
	a, mock, _, _ := ambiguousRouter(t)

	// A reply without the forced tool call keeps every candidate, so the
	// ambiguity still reaches the user.
	mock.QueueMessage(core.NewAIMessage("I cannot decide"))

	reply, err := a.Invoke(context.Background(), "talk to someone")
	require.NoError(t, err)
	assert.Contains(t, reply, validationMarker)
}

func TestUnmatchedPromptFallsThroughToModel(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"obscure phrase": {1, 0, 0},
		"unrelated":      {0, 1, 0},
	}}

	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Embedder = embedder
		o.Intents = []intent.Intent{
			{Value: "obscure phrase", Type: intent.TypeAgent, Target: intent.CallModelTarget},
		}
	})
	require.NoError(t, err)

	reply, err := a.Invoke(context.Background(), "unrelated")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: unrelated", reply)

	// One paraphrase attempt, then the normal model turn.
	assert.Len(t, mock.Requests(), 2)
}

func TestNumericReplyWithoutPendingQuestion(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Embedder = &stubEmbedder{vectors: map[string][]float32{}}
	})
	require.NoError(t, err)

	reply, err := a.Invoke(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: 42", reply)
}

func TestEntityCheckKeepsAndDrops(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Embedder = &stubEmbedder{vectors: map[string][]float32{}}
	})
	require.NoError(t, err)

	matches := []intent.Match{
		{Text: "check the weather", Intent: intent.Intent{Value: "check the weather", Type: intent.TypeTool, Target: "weather"}, Score: 0.9},
		{Text: "email John", Intent: intent.Intent{Value: "email John", Type: intent.TypeTool, Target: "email_john"}, Score: 0.9},
		{Text: "email Sarah", Intent: intent.Intent{Value: "email Sarah", Type: intent.TypeTool, Target: "email_sarah"}, Score: 0.88},
	}

	state := graph.NewState(core.NewHumanMessage("email John about the launch"))
	state.Scratch[intentMappingKey] = matches

	// "Sarah" never appears in the conversation; the model confirms the
	// mismatch.
	mock.QueueMessage(core.NewAIMessage("false"))

	cmd, err := a.entityCheckNode(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, nodeIntentMappingRouter, cmd.Goto)

	kept, ok := cmd.Scratch[intentMappingKey].([]intent.Match)
	require.True(t, ok)
	require.Len(t, kept, 2)
	assert.Equal(t, "check the weather", kept[0].Text, "entity-free candidates always pass")
	assert.Equal(t, "email John", kept[1].Text, "entities present in the message pass without a model call")
}

func TestEntityCheckFailsOpen(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Embedder = &stubEmbedder{vectors: map[string][]float32{}}
	})
	require.NoError(t, err)

	matches := []intent.Match{
		{Text: "email Sarah", Intent: intent.Intent{Value: "email Sarah", Type: intent.TypeTool, Target: "email_sarah"}, Score: 0.9},
	}
	state := graph.NewState(core.NewHumanMessage("send that message"))
	state.Scratch[intentMappingKey] = matches

	mock.QueueError(assert.AnError)

	cmd, err := a.entityCheckNode(context.Background(), state)
	require.NoError(t, err)
	kept, _ := cmd.Scratch[intentMappingKey].([]intent.Match)
	assert.Len(t, kept, 1, "a failing entity check keeps the candidate")
}

func TestIntentThresholdBoundaries(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Embedder = &stubEmbedder{vectors: map[string][]float32{}}
	})
	require.NoError(t, err)

	matches := []intent.Match{
		{Text: "a", Score: 0.86},
		{Text: "b", Score: 0.85},
		{Text: "c", Score: 0.84},
	}
	above := a.aboveThreshold(matches)
	require.Len(t, above, 1, "a candidate must score strictly above the threshold")
	assert.Equal(t, "a", above[0].Text)
}

func TestNeighborWindowIsExclusive(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Embedder = &stubEmbedder{vectors: map[string][]float32{}}
	})
	require.NoError(t, err)

	window := a.neighborWindow([]intent.Match{
		{Text: "close call", Intent: intent.Intent{Type: intent.TypeAgent, Target: "Alpha"}, Score: 0.95},
		{Text: "just inside", Intent: intent.Intent{Type: intent.TypeAgent, Target: "Gamma"}, Score: 0.91},
		{Text: "exact edge", Intent: intent.Intent{Type: intent.TypeAgent, Target: "Beta"}, Score: 0.90},
	})
	require.Len(t, window, 2, "a gap equal to the window falls outside it")
	assert.Equal(t, "Alpha", window[0].Intent.Target)
	assert.Equal(t, "Gamma", window[1].Intent.Target)
}

func TestValidationTieBreaksByTargetName(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Embedder = &stubEmbedder{vectors: map[string][]float32{}}
	})
	require.NoError(t, err)

	state := graph.NewState(core.NewHumanMessage("do something"))
	state.Scratch[intentMappingKey] = []intent.Match{
		{Text: "zeta task", Intent: intent.Intent{Type: intent.TypeAgent, Target: "Zeta"}, Score: 0.9},
		{Text: "alpha task", Intent: intent.Intent{Type: intent.TypeAgent, Target: "Alpha"}, Score: 0.9},
	}

	cmd, err := a.requestHumanValidationNode(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, cmd.Messages, 1)

	content := cmd.Messages[0].Content
	assert.Less(t, strings.Index(content, "Alpha"), strings.Index(content, "Zeta"),
		"equal scores order by target name")
}

func TestListIntentsToolReflectsCatalog(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	a, err := NewIntentAgent(context.Background(), "Router", "", mock, func(o *IntentOptions) {
		o.Embedder = &stubEmbedder{vectors: map[string][]float32{}}
		o.Intents = []intent.Intent{
			{Value: "send an email", Type: intent.TypeTool, Target: "send_email", Scope: "email"},
		}
	})
	require.NoError(t, err)

	listTool, ok := a.Tool("list_intents_available")
	require.True(t, ok)

	toolCtx := core.NewToolContext("tester",
		core.ToolCall{ID: "t1", Name: "list_intents_available"}, nil, a.Shared(), nil)
	result, err := listTool.Call(toolCtx, map[string]any{})
	require.NoError(t, err)

	listing, ok := result.(string)
	require.True(t, ok)
	assert.Contains(t, listing, "email:")
	assert.Contains(t, listing, "send an email")
	assert.Contains(t, listing, "direct:")
	assert.True(t, strings.Contains(listing, "hello"))
}
