// Package clientsync implements ClientSyncEngine (C9, spec.md §4.9): the
// reconciliation algorithm between a client-local message cache and
// HistoryAPI (C8), plus the send/ack/resend/pruning flows around it. The
// browser reference client backs LocalCache with IndexedDB; this package
// only needs the interface and an in-memory implementation for embedding
// in a Go client or in tests.
package clientsync

import (
	"context"
	"sync"

	"github.com/relaymesh/signalhub/internal/domain"
)

// LocalCache is the client-local persistence Engine reconciles against.
// Save replaces the room's entire cached message set — callers pass the
// full post-reconciliation slice, not a delta.
type LocalCache interface {
	Load(ctx context.Context, room string) ([]domain.ChatMessage, error)
	Save(ctx context.Context, room string, msgs []domain.ChatMessage) error
}

// MemoryCache is a LocalCache backed by a process-local map, standing in
// for the browser's IndexedDB store (spec.md §4.9) in tests and in any
// non-browser embedding of this engine.
type MemoryCache struct {
	mu    sync.RWMutex
	rooms map[string][]domain.ChatMessage
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{rooms: make(map[string][]domain.ChatMessage)}
}

func (c *MemoryCache) Load(ctx context.Context, room string) ([]domain.ChatMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.rooms[room]
	out := make([]domain.ChatMessage, len(src))
	copy(out, src)
	return out, nil
}

func (c *MemoryCache) Save(ctx context.Context, room string, msgs []domain.ChatMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]domain.ChatMessage, len(msgs))
	copy(stored, msgs)
	c.rooms[room] = stored
	return nil
}
