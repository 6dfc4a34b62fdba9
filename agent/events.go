package agent

import (
	"encoding/json"
	"sync"

	"github.com/jupyter-naas/abi-sub005/core"
)

// EventHub fans conversation lifecycle events out to registered callbacks
// and, when a stream is attached, to the stream's event channel. Tool
// response notifications are deduplicated by message id so a result bubbling
// through nested graphs is announced once.
type EventHub struct {
	mu             sync.Mutex
	onToolUsage    []func(core.Message)
	onToolResponse []func(core.Message)
	onAIMessage    []func(core.Message)
	seenResponses  map[string]struct{}
	sink           func(core.StreamEvent)
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{seenResponses: map[string]struct{}{}}
}

// OnToolUsage registers a callback invoked when the model requests tool calls.
func (h *EventHub) OnToolUsage(fn func(core.Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onToolUsage = append(h.onToolUsage, fn)
}

// OnToolResponse registers a callback invoked when a tool result is recorded.
func (h *EventHub) OnToolResponse(fn func(core.Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onToolResponse = append(h.onToolResponse, fn)
}

// OnAIMessage registers a callback invoked when the model produces a reply.
func (h *EventHub) OnAIMessage(fn func(core.Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAIMessage = append(h.onAIMessage, fn)
}

func (h *EventHub) setSink(sink func(core.StreamEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
}

// NotifyToolUsage announces a model message carrying tool calls.
func (h *EventHub) NotifyToolUsage(msg core.Message) {
	h.mu.Lock()
	callbacks := h.onToolUsage
	sink := h.sink
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn(msg)
	}
	if sink != nil {
		names := make([]string, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			names[i] = tc.Name
		}
		data, _ := json.Marshal(map[string]any{"tools": names})
		sink(core.StreamEvent{Event: core.EventToolUsage, Data: string(data)})
	}
}

// NotifyToolResponse announces a tool result message. Duplicate ids are
// dropped.
func (h *EventHub) NotifyToolResponse(msg core.Message) {
	h.mu.Lock()
	if _, seen := h.seenResponses[msg.ID]; seen {
		h.mu.Unlock()
		return
	}
	h.seenResponses[msg.ID] = struct{}{}
	callbacks := h.onToolResponse
	sink := h.sink
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn(msg)
	}
	if sink != nil {
		data, _ := json.Marshal(map[string]any{"tool": msg.Name, "content": msg.Content})
		sink(core.StreamEvent{Event: core.EventToolResponse, Data: string(data)})
	}
}

// NotifyAIMessage announces a model reply.
func (h *EventHub) NotifyAIMessage(msg core.Message) {
	h.mu.Lock()
	callbacks := h.onAIMessage
	sink := h.sink
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn(msg)
	}
	if sink != nil {
		sink(core.StreamEvent{Event: core.EventAIMessage, Data: msg.Content})
	}
}
