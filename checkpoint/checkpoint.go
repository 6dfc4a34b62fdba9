// Package checkpoint persists conversation state keyed by thread id so a
// conversation survives across requests. It ships an in-memory store, a
// Postgres store, and an environment-driven factory that falls back to the
// in-memory store when no database is configured or reachable.
package checkpoint

import (
	"context"

	"github.com/jupyter-naas/abi-sub005/core"
)

// Thread is the durable unit of conversation state: the accumulated message
// history plus turn-scoped scratch fields.
type Thread struct {
	ID       string         `json:"id"`
	Messages []core.Message `json:"messages"`
	Scratch  map[string]any `json:"scratch,omitempty"`
}

// Store is the conversation persistence capability.
type Store interface {
	// Setup initializes backing storage (schema bootstrap). Idempotent.
	Setup(ctx context.Context) error

	// Load returns the thread with the given id, or nil when it does not
	// exist.
	Load(ctx context.Context, threadID string) (*Thread, error)

	// Save upserts the thread.
	Save(ctx context.Context, thread *Thread) error

	// Delete removes the thread. Deleting a missing thread is not an error.
	Delete(ctx context.Context, threadID string) error
}
