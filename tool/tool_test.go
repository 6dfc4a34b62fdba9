package tool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupyter-naas/abi-sub005/core"
)

func newTestContext(agentName string) *core.ToolContext {
	return core.NewToolContext(
		agentName,
		core.ToolCall{ID: "call-1", Name: "test"},
		[]core.Message{core.NewHumanMessage("hi")},
		core.NewSharedState(),
		nil,
	)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		changed bool
	}{
		{name: "valid is no-op", in: "transfer_to_agent-1", want: "transfer_to_agent-1", changed: false},
		{name: "spaces replaced", in: "my tool", want: "my_tool", changed: true},
		{name: "unicode replaced", in: "héllo!", want: "h_llo_", changed: true},
		{name: "dots replaced", in: "a.b.c", want: "a_b_c", changed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := SanitizeName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)

			again, changedAgain := SanitizeName(got)
			assert.Equal(t, got, again)
			assert.False(t, changedAgain)
		})
	}
}

func TestFunctionToolCall(t *testing.T) {
	sum := NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	result, err := sum.Call(newTestContext("Agent"), map[string]any{"a": 1.0, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result)
	assert.False(t, sum.ReturnDirect())
}

func TestFunctionToolValidationError(t *testing.T) {
	tl := NewFunctionTool(
		"echo",
		"Echo the input",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return args["text"], nil
		},
	)

	_, err := tl.Call(newTestContext("Agent"), map[string]any{})
	require.Error(t, err)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidationError, toolErr.Code)
	assert.Equal(t, "echo", toolErr.Tool)
}

func TestFunctionToolExecutionError(t *testing.T) {
	failing := NewFunctionTool("broken", "Always fails", emptySchema,
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, errors.New("backend unavailable")
		},
	)

	_, err := failing.Call(newTestContext("Agent"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecutionError, toolErr.Code)
	assert.Equal(t, "backend unavailable", toolErr.Message)
}

func TestFunctionToolCustomErrorPassthrough(t *testing.T) {
	custom := NewToolError("custom", "rate limited", "RATE_LIMITED")
	tl := NewFunctionTool("custom", "Fails with custom code", emptySchema,
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, custom
		},
	)

	_, err := tl.Call(newTestContext("Agent"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Same(t, custom, toolErr)
}

func TestFunctionToolReturnDirect(t *testing.T) {
	tl := NewFunctionTool("report", "Render a report", emptySchema,
		func(_ *core.ToolContext, _ map[string]any) (any, error) { return "report", nil },
		func(o *FunctionToolOptions) { o.ReturnDirect = true },
	)
	assert.True(t, tl.ReturnDirect())
}

func TestHandoffTool(t *testing.T) {
	handoff := NewHandoffTool("Data Analyst", "Analyzes data sets.", false)
	assert.Equal(t, "transfer_to_Data_Analyst", handoff.Name())
	assert.Equal(t, "Data Analyst", handoff.TargetAgent())
	assert.False(t, handoff.ParentGraph())
	assert.Contains(t, handoff.Description(), "Data Analyst")

	tc := newTestContext("Supervisor")
	result, err := handoff.Call(tc, map[string]any{})
	require.NoError(t, err)

	transfer, ok := result.(core.Transfer)
	require.True(t, ok)
	assert.Equal(t, "Data Analyst", transfer.Goto)
	assert.False(t, transfer.Parent)
	require.Len(t, transfer.Messages, 1)
	assert.Equal(t, core.RoleTool, transfer.Messages[0].Role)
	assert.Equal(t, "call-1", transfer.Messages[0].ToolCallID)
	assert.Contains(t, transfer.Messages[0].Content, "Transferred to Data Analyst")

	assert.Equal(t, "Data Analyst", tc.Shared().CurrentActiveAgent())
}

func TestHandoffToolRetarget(t *testing.T) {
	handoff := NewHandoffTool("Researcher", "", false)
	escalated := handoff.Retarget(true)

	assert.False(t, handoff.ParentGraph())
	assert.True(t, escalated.ParentGraph())
	assert.Equal(t, handoff.Name(), escalated.Name())
}

func TestDefaultTools(t *testing.T) {
	t.Run("get_time_date", func(t *testing.T) {
		result, err := NewGetTimeDateTool().Call(newTestContext("Agent"), map[string]any{})
		require.NoError(t, err)
		assert.NotEmpty(t, result)
	})

	t.Run("list_tools_available", func(t *testing.T) {
		listTool := NewListToolsTool(func() []Descriptor {
			return []Descriptor{{Name: "get_time_date", Description: "clock"}}
		})
		result, err := listTool.Call(newTestContext("Agent"), map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result.(string), "get_time_date: clock")
	})

	t.Run("list_subagents_empty", func(t *testing.T) {
		listTool := NewListSubagentsTool(func() []Descriptor { return nil })
		result, err := listTool.Call(newTestContext("Agent"), map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, "No sub-agents available.", result)
	})

	t.Run("list_intents_grouped", func(t *testing.T) {
		listTool := NewListIntentsTool(func() map[string][]string {
			return map[string][]string{"direct": {"Hello", "Thank you"}}
		})
		result, err := listTool.Call(newTestContext("Agent"), map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result.(string), "direct:")
		assert.Contains(t, result.(string), "- Hello")
	})

	t.Run("get_current_active_agent", func(t *testing.T) {
		tc := newTestContext("Agent")
		result, err := NewGetCurrentActiveAgentTool().Call(tc, map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, "No agent is currently active.", result)

		tc.Shared().SetCurrentActiveAgent("Researcher")
		result, err = NewGetCurrentActiveAgentTool().Call(tc, map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, "Researcher", result)
	})

	t.Run("get_supervisor_agent", func(t *testing.T) {
		tc := newTestContext("Agent")
		tc.Shared().SetSupervisorAgent("Supervisor")
		result, err := NewGetSupervisorAgentTool().Call(tc, map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, "Supervisor", result)
	})

	t.Run("request_help acknowledges", func(t *testing.T) {
		result, err := NewRequestHelpTool().Call(newTestContext("Agent"), map[string]any{"reason": "stuck"})
		require.NoError(t, err)
		assert.Equal(t, "Help requested from supervisor.", result)
	})

	t.Run("read_makefile missing file", func(t *testing.T) {
		_, err := NewReadMakefileTool("testdata/does-not-exist").Call(newTestContext("Agent"), map[string]any{})
		assert.Error(t, err)
	})
}
