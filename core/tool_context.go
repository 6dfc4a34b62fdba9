package core

import "github.com/jupyter-naas/abi-sub005/logging"

// ToolContext carries the execution environment handed to a tool: the calling
// agent's identity, the originating tool call, a read view of the current
// conversation, the mutable shared routing state and a logger.
type ToolContext struct {
	agentName string
	toolCall  ToolCall
	messages  []Message
	shared    *SharedState
	logger    logging.Logger
	extra     map[string]any
}

// NewToolContext builds a context for one tool invocation. A nil logger is
// replaced with a no-op.
func NewToolContext(agentName string, toolCall ToolCall, messages []Message, shared *SharedState, logger logging.Logger) *ToolContext {
	return &ToolContext{
		agentName: agentName,
		toolCall:  toolCall,
		messages:  messages,
		shared:    shared,
		logger:    logging.OrNoOp(logger),
		extra:     map[string]any{},
	}
}

// AgentName returns the name of the agent executing the tool.
func (c *ToolContext) AgentName() string { return c.agentName }

// ToolCall returns the tool call being executed.
func (c *ToolContext) ToolCall() ToolCall { return c.toolCall }

// Messages returns the conversation up to (and including) the AI message that
// requested the call. Callers must treat the slice as read only.
func (c *ToolContext) Messages() []Message { return c.messages }

// Shared returns the tree-wide conversation state.
func (c *ToolContext) Shared() *SharedState { return c.shared }

// Logger returns the logger bound to this invocation.
func (c *ToolContext) Logger() logging.Logger { return c.logger }

// Set stores an auxiliary value on the context for the enclosing executor.
func (c *ToolContext) Set(key string, value any) { c.extra[key] = value }

// Get retrieves an auxiliary value previously stored with Set.
func (c *ToolContext) Get(key string) (any, bool) {
	v, ok := c.extra[key]
	return v, ok
}
