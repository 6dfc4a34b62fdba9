package tool

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jupyter-naas/abi-sub005/core"
)

// RequestHelpName is the reserved name of the escalation tool. The tool
// executor special-cases it to hand control back to the supervisor.
const RequestHelpName = "request_help"

// Descriptor is a name/description pair used by the listing tools. Providers
// are closures so the listings always reflect the agent's current registry.
type Descriptor struct {
	Name        string
	Description string
}

var emptySchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{},
}

// NewGetTimeDateTool returns a tool reporting the current local date and time
// with timezone.
func NewGetTimeDateTool() Tool {
	return NewFunctionTool(
		"get_time_date",
		"Get the current date and time, including the timezone.",
		emptySchema,
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			now := time.Now()
			zone, offset := now.Zone()
			return fmt.Sprintf("%s (%s, UTC%+03d:%02d)",
				now.Format("Monday, 2 January 2006 15:04:05"),
				zone, offset/3600, abs(offset%3600)/60), nil
		},
	)
}

// NewListToolsTool returns a tool listing every tool available to the agent.
func NewListToolsTool(list func() []Descriptor) Tool {
	return NewFunctionTool(
		"list_tools_available",
		"List every tool available to this agent with a short description.",
		emptySchema,
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return renderDescriptors("Tools available", list()), nil
		},
	)
}

// NewListSubagentsTool returns a tool listing the agent's direct sub agents.
func NewListSubagentsTool(list func() []Descriptor) Tool {
	return NewFunctionTool(
		"list_subagents_available",
		"List the sub-agents this agent can delegate to.",
		emptySchema,
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			descriptors := list()
			if len(descriptors) == 0 {
				return "No sub-agents available.", nil
			}
			return renderDescriptors("Sub-agents available", descriptors), nil
		},
	)
}

// NewListIntentsTool returns a tool listing the canonical intent phrases the
// agent can match, grouped by scope.
func NewListIntentsTool(list func() map[string][]string) Tool {
	return NewFunctionTool(
		"list_intents_available",
		"List the intents this agent recognizes, grouped by scope.",
		emptySchema,
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			groups := list()
			if len(groups) == 0 {
				return "No intents configured.", nil
			}
			scopes := make([]string, 0, len(groups))
			for scope := range groups {
				scopes = append(scopes, scope)
			}
			sort.Strings(scopes)

			var b strings.Builder
			for _, scope := range scopes {
				fmt.Fprintf(&b, "%s:\n", scope)
				for _, value := range groups[scope] {
					fmt.Fprintf(&b, "- %s\n", value)
				}
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	)
}

// NewRequestHelpTool returns the escalation tool offered to sub agents that
// have a supervisor. The tool body only acknowledges the request; the
// executor performs the actual state mutation and parent-graph transfer.
func NewRequestHelpTool() Tool {
	return NewFunctionTool(
		RequestHelpName,
		"Ask the supervisor agent for help when you are uncertain how to proceed or lack a suitable tool.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Short explanation of why help is needed",
				},
			},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			reason, _ := args["reason"].(string)
			tc.Logger().Info("tool.request_help", "agent", tc.AgentName(), "reason", reason)
			return "Help requested from supervisor.", nil
		},
	)
}

// NewGetCurrentActiveAgentTool returns a tool reporting which agent currently
// holds the conversation.
func NewGetCurrentActiveAgentTool() Tool {
	return NewFunctionTool(
		"get_current_active_agent",
		"Get the name of the agent currently holding the conversation.",
		emptySchema,
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			if name := tc.Shared().CurrentActiveAgent(); name != "" {
				return name, nil
			}
			return "No agent is currently active.", nil
		},
	)
}

// NewGetSupervisorAgentTool returns a tool reporting the tree's supervisor.
func NewGetSupervisorAgentTool() Tool {
	return NewFunctionTool(
		"get_supervisor_agent",
		"Get the name of the supervisor agent for this conversation.",
		emptySchema,
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			if name := tc.Shared().SupervisorAgent(); name != "" {
				return name, nil
			}
			return "No supervisor is configured.", nil
		},
	)
}

// NewReadMakefileTool returns the developer-only tool exposing the project
// Makefile. Injected only for the supervisor root in a development
// environment.
func NewReadMakefileTool(path string) Tool {
	if path == "" {
		path = "Makefile"
	}
	return NewFunctionTool(
		"read_makefile",
		"Read the project Makefile to discover available development commands.",
		emptySchema,
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read makefile: %w", err)
			}
			return string(data), nil
		},
	)
}

func renderDescriptors(title string, descriptors []Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", title)
	for _, d := range descriptors {
		if d.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", d.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
