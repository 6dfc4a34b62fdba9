package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jupyter-naas/abi-sub005/core"
	"github.com/jupyter-naas/abi-sub005/graph"
	"github.com/jupyter-naas/abi-sub005/tool"
)

// currentActiveAgentNode is the graph entry. It resolves who should handle
// the turn (explicit @mention, then sticky active agent, then self) and
// applies the marker-guarded system prompt mutations before handing off to
// continue_conversation.
func (a *Agent) currentActiveAgentNode(_ context.Context, s *graph.State) (graph.Command, error) {
	idx := lastHumanIndex(s.Messages)
	if idx < 0 {
		a.logger.Warn("agent.no_human_message", "agent", a.name)
		return graph.Command{Goto: graph.End}, nil
	}
	content := s.Messages[idx].Content

	// Explicit @mention overrides sticky routing.
	if mention, rest, ok := parseMention(content); ok && !strings.EqualFold(mention, a.name) {
		if child := a.childFor(mention); child != nil {
			s.Messages[idx].Content = rest
			a.shared.SetCurrentActiveAgent(child.name)
			return graph.Command{Goto: child.name}, nil
		}
		a.logger.Debug("agent.mention_unresolved", "agent", a.name, "mention", mention)
	}

	// Sticky routing: a previously active descendant keeps the conversation.
	if active := a.shared.CurrentActiveAgent(); active != "" && !strings.EqualFold(active, a.name) {
		if child := a.childFor(active); child != nil {
			return graph.Command{Goto: child.name}, nil
		}
	}

	supervisor := a.shared.SupervisorAgent()
	if supervisor != "" && supervisor != a.name && !strings.Contains(a.systemPrompt, supervisorPromptMarker) {
		a.systemPrompt = fmt.Sprintf(
			"=== %s ===\nYou are working under the supervision of the %s agent. "+
				"If you are unsure how to answer or none of your tools fit the request, "+
				"call the request_help tool to hand the conversation back to your supervisor.\n"+
				"=== END %s ===\n\n%s",
			supervisorPromptMarker, supervisor, supervisorPromptMarker, a.systemPrompt,
		)
	}
	if supervisor == a.name && a.devMode && !strings.Contains(a.systemPrompt, developerPromptMarker) {
		a.systemPrompt = fmt.Sprintf(
			"=== %s ===\nYou are running in a development environment. "+
				"Use the read_makefile tool to discover the project's development commands "+
				"before suggesting how to build, test or run anything.\n"+
				"=== END %s ===\n\n%s",
			developerPromptMarker, developerPromptMarker, a.systemPrompt,
		)
	}
	if !strings.Contains(a.systemPrompt, currentDateMarker) {
		a.systemPrompt = fmt.Sprintf("%s\n\n%s %s",
			a.systemPrompt, currentDateMarker, time.Now().Format("2006-01-02"))
		// Loop once so the routing checks see the finished prompt.
		return graph.Command{Goto: nodeCurrentActiveAgent}, nil
	}

	return graph.Command{Goto: nodeContinueConversation}, nil
}

// continueConversationNode is the seam between routing and the model loop.
// The base agent goes straight to call_model; the intent pipeline reroutes
// it through intent mapping.
func (a *Agent) continueConversationNode(_ context.Context, _ *graph.State) (graph.Command, error) {
	return graph.Command{Goto: a.continueTarget}, nil
}

// callModelNode invokes the bound model on the conversation. A reply with
// tool calls routes to call_tools; a plain reply ends the turn.
func (a *Agent) callModelNode(ctx context.Context, s *graph.State) (graph.Command, error) {
	a.shared.SetCurrentActiveAgent(a.name)

	if last, ok := s.LastMessage(); ok && last.Role == core.RoleTool {
		a.hub.NotifyToolResponse(last)
	}

	request := make([]core.Message, 0, len(s.Messages)+1)
	if a.systemPrompt != "" {
		request = append(request, core.NewSystemMessage(a.systemPrompt))
	}
	for _, msg := range s.Messages {
		if msg.Role == core.RoleSystem {
			continue
		}
		request = append(request, msg)
	}

	response, err := a.modelWithTools.Invoke(ctx, request)
	if err != nil {
		return graph.Command{}, fmt.Errorf("agent %s: model call: %w", a.name, err)
	}
	response.Name = a.name

	if a.structuredReplies {
		parsed := parseStructuredReply(response)
		a.hub.NotifyAIMessage(parsed)
		return graph.Command{Goto: graph.End, Messages: []core.Message{parsed}}, nil
	}

	if response.HasToolCalls() {
		a.hub.NotifyToolUsage(response)
		return graph.Command{Goto: nodeCallTools, Messages: []core.Message{response}}, nil
	}

	a.hub.NotifyAIMessage(response)
	return graph.Command{Goto: graph.End, Messages: []core.Message{response}}, nil
}

// callToolsNode executes the tool calls carried by the last AI message.
// Control transfers and escalations return immediately; at most one
// consequential call is honored per batch. Plain results accumulate, then
// either loop back to the model or, when every executed tool is
// return-direct, end the turn with the last result promoted to the reply.
func (a *Agent) callToolsNode(ctx context.Context, s *graph.State) (graph.Command, error) {
	last, ok := s.LastMessage()
	if !ok || !last.HasToolCalls() {
		a.logger.Warn("agent.call_tools_without_calls", "agent", a.name)
		return graph.Command{Goto: graph.End}, nil
	}

	var out []core.Message
	hadError := false
	allReturnDirect := true

	for _, tc := range last.ToolCalls {
		if err := ctx.Err(); err != nil {
			return graph.Command{}, err
		}

		registered, found := a.tools[tc.Name]
		if !found {
			out = a.appendToolResult(out, tc, fmt.Sprintf("Error: tool %q is not available to this agent", tc.Name))
			hadError = true
			allReturnDirect = false
			continue
		}

		args, err := tc.ArgumentsMap()
		if err != nil {
			out = a.appendToolResult(out, tc, fmt.Sprintf("Error: invalid arguments for %s: %v", tc.Name, err))
			hadError = true
			allReturnDirect = false
			continue
		}

		toolCtx := core.NewToolContext(a.name, tc, append(s.Messages, out...), a.shared, a.logger)
		result, err := callToolSafely(registered, toolCtx, args)
		if err != nil {
			a.logger.Error("agent.tool_failed", "agent", a.name, "tool", tc.Name, "error", err.Error())
			out = a.appendToolResult(out, tc, "Error: "+err.Error())
			hadError = true
			allReturnDirect = false
			continue
		}

		// Escalation hands control back to the supervisor through the
		// enclosing graph.
		if tc.Name == tool.RequestHelpName {
			if supervisor := a.shared.SupervisorAgent(); supervisor != "" && supervisor != a.name {
				out = a.appendToolResult(out, tc, fmt.Sprint(result))
				a.shared.SetCurrentActiveAgent(supervisor)
				a.shared.SetRequestingHelp(true)
				a.logger.Info("agent.requesting_help", "agent", a.name, "supervisor", supervisor)
				return graph.Command{
					Goto:     nodeCurrentActiveAgent,
					Target:   graph.TargetParent,
					Messages: out,
				}, nil
			}
		}

		switch v := result.(type) {
		case core.Transfer:
			for _, msg := range v.Messages {
				a.hub.NotifyToolResponse(msg)
			}
			out = append(out, v.Messages...)
			return a.transferCommand(v, out), nil
		case core.MessageOutput:
			a.hub.NotifyToolResponse(v.Message)
			out = append(out, v.Message)
		case core.RawOutput:
			out = a.appendToolResult(out, tc, renderToolResult(v.Value))
		default:
			out = a.appendToolResult(out, tc, renderToolResult(result))
		}

		if !registered.ReturnDirect() {
			allReturnDirect = false
		}
	}

	if hadError {
		return graph.Command{Goto: graph.End, Messages: out}, nil
	}

	if allReturnDirect && len(out) > 0 {
		final := core.NewAIMessage(out[len(out)-1].Content)
		final.Name = a.name
		a.hub.NotifyAIMessage(final)
		return graph.Command{Goto: graph.End, Messages: append(out, final)}, nil
	}

	return graph.Command{Goto: nodeCallModel, Messages: out}, nil
}

// transferCommand translates a tool-level Transfer into a graph command.
// Unknown targets fall back to re-routing from the entry node, where sticky
// routing walks the tree toward the agent recorded in shared state.
func (a *Agent) transferCommand(t core.Transfer, messages []core.Message) graph.Command {
	if t.Parent {
		return graph.Command{
			Goto:     nodeCurrentActiveAgent,
			Target:   graph.TargetParent,
			Messages: messages,
		}
	}
	target := t.Goto
	if !a.graph.HasNode(target) {
		target = nodeCurrentActiveAgent
	}
	return graph.Command{Goto: target, Messages: messages}
}

func (a *Agent) appendToolResult(out []core.Message, tc core.ToolCall, content string) []core.Message {
	msg := core.NewToolMessage(tc.Name, tc.ID, content)
	a.hub.NotifyToolResponse(msg)
	return append(out, msg)
}

// callToolSafely converts a tool panic into an execution error so one broken
// tool cannot take the whole turn down.
func callToolSafely(t tool.Tool, tc *core.ToolContext, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = tool.NewToolError(t.Name(), fmt.Sprintf("panic: %v", r), tool.CodeExecutionError)
		}
	}()
	return t.Call(tc, args)
}

func renderToolResult(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case error:
		return val.Error()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

func lastHumanIndex(messages []core.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleHuman {
			return i
		}
	}
	return -1
}

// parseMention splits a leading "@Name rest of prompt" into the mentioned
// name and the prompt with the mention stripped.
func parseMention(content string) (mention, rest string, ok bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "@") {
		return "", "", false
	}
	fields := strings.SplitN(trimmed[1:], " ", 2)
	if fields[0] == "" {
		return "", "", false
	}
	mention = fields[0]
	if len(fields) == 2 {
		rest = strings.TrimSpace(fields[1])
	}
	return mention, rest, true
}
