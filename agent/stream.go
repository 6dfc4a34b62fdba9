package agent

import (
	"context"
	"fmt"

	"github.com/jupyter-naas/abi-sub005/checkpoint"
	"github.com/jupyter-naas/abi-sub005/core"
	"github.com/jupyter-naas/abi-sub005/graph"
)

// Invoke runs one conversational turn: the prompt is appended to the current
// thread, the graph runs to completion, the thread is saved, and the final
// reply text is returned.
func (a *Agent) Invoke(ctx context.Context, prompt string) (string, error) {
	return a.run(ctx, prompt, nil)
}

// Stream runs one turn like Invoke while forwarding every raw graph update
// to the sink in execution order.
func (a *Agent) Stream(ctx context.Context, prompt string, sink graph.Sink) (string, error) {
	return a.run(ctx, prompt, sink)
}

func (a *Agent) run(ctx context.Context, prompt string, sink graph.Sink) (string, error) {
	threadID := a.shared.ThreadID()

	state := graph.NewState()
	thread, err := a.store.Load(ctx, threadID)
	if err != nil {
		a.logger.Warn("agent.thread_load_failed", "agent", a.name, "thread", threadID, "error", err.Error())
	} else if thread != nil {
		state.Messages = thread.Messages
		if thread.Scratch != nil {
			state.Scratch = thread.Scratch
		}
	}
	state.Messages = append(state.Messages, core.NewHumanMessage(prompt))

	if err := a.graph.Run(ctx, state, sink); err != nil {
		return "", err
	}

	saved := &checkpoint.Thread{ID: threadID, Messages: state.Messages, Scratch: state.Scratch}
	if err := a.store.Save(ctx, saved); err != nil {
		a.logger.Warn("agent.thread_save_failed", "agent", a.name, "thread", threadID, "error", err.Error())
	}

	if msg, ok := state.LastByRole(core.RoleAI); ok {
		return msg.Content, nil
	}
	if msg, ok := state.LastMessage(); ok {
		return msg.Content, nil
	}
	return "", nil
}

// StreamInvoke runs one turn on a worker goroutine and returns a channel of
// wire-ready events: tool usage, tool responses and model replies as they
// happen, then the final reply as a message event, then a done marker. The
// channel is always closed, and a dead worker is reported as an error event
// rather than a silent hang.
func (a *Agent) StreamInvoke(ctx context.Context, prompt string) <-chan core.StreamEvent {
	events := make(chan core.StreamEvent, 64)
	a.hub.setSink(func(ev core.StreamEvent) { events <- ev })

	go func() {
		defer close(events)
		defer a.hub.setSink(nil)
		defer func() {
			if r := recover(); r != nil {
				events <- core.StreamEvent{
					Event: core.EventError,
					Data:  fmt.Sprintf("stream worker terminated: %v", r),
				}
				events <- core.StreamEvent{Event: core.EventDone, Data: core.DoneData}
			}
		}()

		reply, err := a.Invoke(ctx, prompt)
		if err != nil {
			events <- core.StreamEvent{Event: core.EventError, Data: err.Error()}
		} else {
			events <- core.StreamEvent{Event: core.EventMessage, Data: reply}
		}
		events <- core.StreamEvent{Event: core.EventDone, Data: core.DoneData}
	}()

	return events
}
