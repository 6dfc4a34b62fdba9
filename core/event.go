package core

// EventType discriminates the events surfaced by the streaming caller surface.
type EventType string

const (
	// EventToolUsage signals that a model requested one or more tool calls.
	EventToolUsage EventType = "tool_usage"
	// EventToolResponse signals that a tool finished and produced a result.
	EventToolResponse EventType = "tool_response"
	// EventAIMessage carries a model-authored reply.
	EventAIMessage EventType = "ai_message"
	// EventMessage carries any other conversation update.
	EventMessage EventType = "message"
	// EventDone terminates a stream. Its data is always DoneData.
	EventDone EventType = "done"
	// EventError reports a failure inside the streaming worker.
	EventError EventType = "error"
)

// DoneData is the payload of the final event of every stream.
const DoneData = "[DONE]"

// StreamEvent is one item of a typed event stream.
type StreamEvent struct {
	Event EventType `json:"event"`
	Data  string    `json:"data"`
}
