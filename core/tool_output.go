package core

// ToolOutput is the closed set of values a tool may return beyond a plain
// error. The unexported marker method keeps the set closed so the executor
// can switch exhaustively.
type ToolOutput interface {
	isToolOutput()
}

// RawOutput wraps an arbitrary value that will be serialized into the tool
// result message.
type RawOutput struct {
	Value any
}

func (RawOutput) isToolOutput() {}

// MessageOutput lets a tool return a fully formed message instead of a raw
// value.
type MessageOutput struct {
	Message Message
}

func (MessageOutput) isToolOutput() {}

// Transfer instructs the executor to hand control to another node. Parent
// selects the enclosing graph one level up instead of the current one.
// Messages are appended to the conversation before the jump.
type Transfer struct {
	Goto     string
	Parent   bool
	Messages []Message
}

func (Transfer) isToolOutput() {}
