package core

import "encoding/json"

// Role identifies the author class of a message.
type Role string

const (
	// RoleHuman marks a message authored by the end user.
	RoleHuman Role = "human"
	// RoleAI marks a message authored by a model.
	RoleAI Role = "ai"
	// RoleTool marks a tool execution result.
	RoleTool Role = "tool"
	// RoleSystem marks a system instruction message.
	RoleSystem Role = "system"
)

// ToolCall is a model-requested tool invocation carried on an AI message.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsMap decodes the raw JSON arguments into a map. An empty payload
// decodes to an empty map.
func (tc ToolCall) ArgumentsMap() (map[string]any, error) {
	if len(tc.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(tc.Arguments, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Message is a single conversation entry. The same flat shape carries human,
// AI, tool and system messages; role-specific fields stay zero valued when
// unused.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// NewHumanMessage creates a user message with a fresh ID.
func NewHumanMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleHuman, Content: content}
}

// NewAIMessage creates a model message with a fresh ID.
func NewAIMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleAI, Content: content}
}

// NewSystemMessage creates a system message with a fresh ID.
func NewSystemMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleSystem, Content: content}
}

// NewToolMessage creates a tool result message bound to the originating tool
// call.
func NewToolMessage(name, toolCallID, content string) Message {
	return Message{ID: NewID(), Role: RoleTool, Content: content, Name: name, ToolCallID: toolCallID}
}

// HasToolCalls reports whether the message carries at least one tool call.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}
