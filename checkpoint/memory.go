package checkpoint

import (
	"context"
	"sync"

	"github.com/jupyter-naas/abi-sub005/core"
)

// MemoryStore is a volatile Store keeping threads in a map. It is the
// default when no durable backend is configured, and the fallback when the
// configured backend is unreachable.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*Thread
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*Thread)}
}

// Setup implements Store. It is a no-op.
func (s *MemoryStore) Setup(_ context.Context) error { return nil }

// Load implements Store. The returned thread is a copy; mutating it does not
// affect the stored value until Save.
func (s *MemoryStore) Load(_ context.Context, threadID string) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}
	return copyThread(stored), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, thread *Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.ID] = copyThread(thread)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

func copyThread(t *Thread) *Thread {
	clone := &Thread{ID: t.ID}
	if t.Messages != nil {
		clone.Messages = append([]core.Message(nil), t.Messages...)
	}
	if t.Scratch != nil {
		clone.Scratch = make(map[string]any, len(t.Scratch))
		for k, v := range t.Scratch {
			clone.Scratch[k] = v
		}
	}
	return clone
}
