// Package abi provides a high-level facade over the agent orchestration
// packages, enabling rapid construction of supervisor/sub-agent systems.
// Most applications interact with it by:
//  1. Building a chat model adapter (model/openai, model/anthropic, or the
//     MockModel for tests)
//  2. Creating agents via New or NewIntentAgent, nesting children through
//     the options
//  3. Driving turns with Invoke, Stream or StreamInvoke
//
// The facade delegates everything to the agent package while keeping the
// common path to one import. Defaults are safe for local development: an
// in-memory checkpoint store, a no-op logger, and an in-memory intent index.
package abi

import (
	"context"

	"github.com/jupyter-naas/abi-sub005/agent"
	"github.com/jupyter-naas/abi-sub005/model"
)

// Re-exported core types so simple programs need a single import.
type (
	Agent         = agent.Agent
	IntentAgent   = agent.IntentAgent
	Options       = agent.Options
	IntentOptions = agent.IntentOptions
)

// New creates a conversational agent. See agent.New.
func New(name, description string, chatModel model.ChatModel, optFns ...func(o *Options)) (*Agent, error) {
	return agent.New(name, description, chatModel, optFns...)
}

// NewIntentAgent creates an intent-routed agent. See agent.NewIntentAgent.
func NewIntentAgent(ctx context.Context, name, description string, chatModel model.ChatModel, optFns ...func(o *IntentOptions)) (*IntentAgent, error) {
	return agent.NewIntentAgent(ctx, name, description, chatModel, optFns...)
}
