package model

import (
	"context"

	"github.com/jupyter-naas/abi-sub005/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// ChatModel is the minimal capability required to drive a conversation turn:
// feed the full message history in, get one assistant message (possibly
// carrying tool calls) back.
type ChatModel interface {
	Invoke(ctx context.Context, messages []core.Message) (core.Message, error)

	// Info returns information about the model implementation.
	Info() Info
}

// BindOptions configures a tool binding.
type BindOptions struct {
	// ForceTool names a tool the model is required to call. Empty means the
	// model chooses freely.
	ForceTool string
}

// ToolBinder is implemented by models that support function calling. BindTools
// returns a new ChatModel carrying the tool definitions; the receiver is not
// modified.
type ToolBinder interface {
	BindTools(tools []ToolDefinition, optFns ...func(o *BindOptions)) (ChatModel, error)
}
