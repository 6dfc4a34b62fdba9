package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/jupyter-naas/abi-sub005/core"
)

// MockModel is a deterministic in-memory ChatModel for tests and examples.
// Replies are resolved in order of precedence: a scripted queue, a canned
// response keyed on the last message content, then a generic echo.
//
// BindTools returns a copy, like the real adapters; every copy shares the
// same queue, canned responses and recorders, so a mock scripted before
// binding keeps working through the bound model.
type MockModel struct {
	info  Info
	state *mockState

	bound  []ToolDefinition
	forced string
}

// mockState is shared across every bound copy of a mock.
type mockState struct {
	mu         sync.Mutex
	responses  map[string]string
	queue      []queued
	requests   [][]core.Message
	lastBound  []ToolDefinition
	lastForced string
}

type queued struct {
	msg core.Message
	err error
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:  Info{Name: name, Provider: provider, SupportsTools: true},
		state: &mockState{responses: make(map[string]string)},
	}
}

// AddResponse registers a canned completion returned when the last message
// content equals prompt and the queue is empty.
func (m *MockModel) AddResponse(prompt, response string) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.responses[prompt] = response
}

// QueueMessage scripts the next reply. Queued replies are consumed in FIFO
// order before canned responses are considered.
func (m *MockModel) QueueMessage(msg core.Message) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.queue = append(m.state.queue, queued{msg: msg})
}

// QueueError scripts a failure for the next invocation.
func (m *MockModel) QueueError(err error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.queue = append(m.state.queue, queued{err: err})
}

// Requests returns a copy of every message history the mock was invoked with.
func (m *MockModel) Requests() [][]core.Message {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	out := make([][]core.Message, len(m.state.requests))
	copy(out, m.state.requests)
	return out
}

// BoundTools returns the tool definitions from the most recent BindTools
// call anywhere in the mock's copy chain.
func (m *MockModel) BoundTools() []ToolDefinition {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.lastBound
}

// ForcedTool returns the tool name forced by the most recent BindTools call
// anywhere in the mock's copy chain.
func (m *MockModel) ForcedTool() string {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.lastForced
}

// Invoke implements ChatModel.
func (m *MockModel) Invoke(ctx context.Context, messages []core.Message) (core.Message, error) {
	if err := ctx.Err(); err != nil {
		return core.Message{}, err
	}

	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	snapshot := make([]core.Message, len(messages))
	copy(snapshot, messages)
	m.state.requests = append(m.state.requests, snapshot)

	if len(m.state.queue) > 0 {
		next := m.state.queue[0]
		m.state.queue = m.state.queue[1:]
		if next.err != nil {
			return core.Message{}, next.err
		}
		return next.msg, nil
	}

	var last string
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	if resp, ok := m.state.responses[last]; ok {
		return core.NewAIMessage(resp), nil
	}
	return core.NewAIMessage(fmt.Sprintf("Mock response to: %s", last)), nil
}

// BindTools implements ToolBinder. The receiver is unchanged; the returned
// copy carries the binding and shares the receiver's scripted state.
func (m *MockModel) BindTools(tools []ToolDefinition, optFns ...func(o *BindOptions)) (ChatModel, error) {
	opts := BindOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	m.state.mu.Lock()
	m.state.lastBound = tools
	m.state.lastForced = opts.ForceTool
	m.state.mu.Unlock()

	bound := *m
	bound.bound = tools
	bound.forced = opts.ForceTool
	return &bound, nil
}

// Info implements ChatModel.
func (m *MockModel) Info() Info { return m.info }
