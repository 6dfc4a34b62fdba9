package tool

import (
	"fmt"

	"github.com/jupyter-naas/abi-sub005/core"
)

// HandoffPrefix prefixes every synthetic delegation tool name.
const HandoffPrefix = "transfer_to_"

// HandoffTool transfers conversational control to a named child agent. One
// instance is synthesized per child at registry assembly time. Invoking it
// marks the child as the active agent and returns a control transfer
// targeting the child's graph node.
type HandoffTool struct {
	agentName   string
	description string
	parentGraph bool
}

// NewHandoffTool creates a handoff tool for the given agent. parentGraph
// selects whether the transfer targets the enclosing graph instead of the
// current one; handoff tools for direct children stay in the current graph,
// while propagated grandchild tools must escalate out of it.
func NewHandoffTool(agentName, description string, parentGraph bool) *HandoffTool {
	return &HandoffTool{agentName: agentName, description: description, parentGraph: parentGraph}
}

// TargetAgent returns the name of the agent this tool transfers to.
func (t *HandoffTool) TargetAgent() string { return t.agentName }

// ParentGraph reports whether the transfer targets the enclosing graph.
func (t *HandoffTool) ParentGraph() bool { return t.parentGraph }

// Retarget returns a copy of the tool with a different graph target. Used
// when a child's handoff tools are propagated into a parent's registry.
func (t *HandoffTool) Retarget(parentGraph bool) *HandoffTool {
	clone := *t
	clone.parentGraph = parentGraph
	return &clone
}

// Name implements Tool.
func (t *HandoffTool) Name() string {
	sanitized, _ := SanitizeName(t.agentName)
	return HandoffPrefix + sanitized
}

// Description implements Tool.
func (t *HandoffTool) Description() string {
	if t.description != "" {
		return fmt.Sprintf("Transfer the conversation to the %s agent. %s", t.agentName, t.description)
	}
	return fmt.Sprintf("Transfer the conversation to the %s agent.", t.agentName)
}

// Parameters implements Tool. Handoffs take no arguments.
func (t *HandoffTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// ReturnDirect implements Tool.
func (t *HandoffTool) ReturnDirect() bool { return false }

// Call implements Tool. It records the child as the active agent and returns
// a Transfer carrying a synthetic tool result announcing the hand off.
func (t *HandoffTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	tc.Shared().SetCurrentActiveAgent(t.agentName)
	tc.Logger().Info("tool.handoff", "from", tc.AgentName(), "to", t.agentName, "parent_graph", t.parentGraph)

	announcement := core.NewToolMessage(
		t.Name(),
		tc.ToolCall().ID,
		fmt.Sprintf("Transferred to %s", t.agentName),
	)
	return core.Transfer{
		Goto:     t.agentName,
		Parent:   t.parentGraph,
		Messages: []core.Message{announcement},
	}, nil
}
