package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupyter-naas/abi-sub005/core"
	"github.com/jupyter-naas/abi-sub005/model"
)

func TestParseStructuredReplyExtractsActions(t *testing.T) {
	msg := core.NewAIMessage("Here is the plan.\n```action\n{\"name\":\"send_email\",\"arguments\":{\"to\":\"john\"}}\n```\nDone.")

	parsed := parseStructuredReply(msg)

	require.Len(t, parsed.ToolCalls, 1)
	assert.Equal(t, "send_email", parsed.ToolCalls[0].Name)
	assert.JSONEq(t, `{"to":"john"}`, string(parsed.ToolCalls[0].Arguments))
	assert.NotContains(t, parsed.Content, "```action")
	assert.Contains(t, parsed.Content, "Here is the plan.")
	assert.Contains(t, parsed.Content, "Done.")
}

func TestParseStructuredReplyAppendsAnnotations(t *testing.T) {
	msg := core.NewAIMessage("The answer is 42.\n```annotation\nverify against the source\n```")

	parsed := parseStructuredReply(msg)

	assert.Empty(t, parsed.ToolCalls)
	assert.Contains(t, parsed.Content, "The answer is 42.")
	assert.Contains(t, parsed.Content, "> verify against the source")
	assert.NotContains(t, parsed.Content, "```annotation")
}

func TestParseStructuredReplyLeavesMalformedBlocks(t *testing.T) {
	msg := core.NewAIMessage("```action\nnot json at all\n```")

	parsed := parseStructuredReply(msg)

	assert.Empty(t, parsed.ToolCalls)
	assert.Contains(t, parsed.Content, "not json at all")
}

func TestParseStructuredReplyPlainText(t *testing.T) {
	msg := core.NewAIMessage("just a plain reply")
	parsed := parseStructuredReply(msg)
	assert.Equal(t, "just a plain reply", parsed.Content)
	assert.Empty(t, parsed.ToolCalls)
}

func TestStructuredRepliesAlwaysEndTheTurn(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	mock.QueueMessage(core.NewAIMessage("Working on it.\n```action\n{\"name\":\"lookup\",\"arguments\":{}}\n```"))

	a, err := New("Solo", "", mock, func(o *Options) {
		o.StructuredReplies = true
	})
	require.NoError(t, err)

	reply, err := a.Invoke(context.Background(), "find it")
	require.NoError(t, err)

	assert.Equal(t, "Working on it.", reply)
	assert.Len(t, mock.Requests(), 1, "extracted actions are not executed")

	thread, err := a.store.Load(context.Background(), a.shared.ThreadID())
	require.NoError(t, err)
	last := thread.Messages[len(thread.Messages)-1]
	require.Len(t, last.ToolCalls, 1)
	assert.Equal(t, "lookup", last.ToolCalls[0].Name)
}
