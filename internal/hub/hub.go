// Package hub owns the in-process table of currently-running bots.
// Per spec.md's design notes, the table lives on an instance (not a
// package global) so tests and multiple processes never share state.
package hub

import (
	"context"
	"sync"

	"github.com/EXG1O/telegram-bots-hub/internal/router"
)

// Entry is one running bot's lifecycle-owned state. The concrete
// fields (cancel func, background runner handle, ...) belong to
// internal/lifecycle; Hub only stores and retrieves them by id.
type Entry struct {
	ServiceID int64
	// Token is the bot's Telegram API token, kept so Restart can
	// re-register the webhook without the caller resending it.
	Token string
	Stop  func()
	Route func(ctx context.Context, upd router.Update)
}

// Hub is a mutex-guarded map from service id to running Entry. It is
// mutated only by the Bot Lifecycle.
type Hub struct {
	mu      sync.RWMutex
	entries map[int64]*Entry
}

// New builds an empty Hub.
func New() *Hub {
	return &Hub{entries: make(map[int64]*Entry)}
}

// Get returns the running Entry for serviceID, if any.
func (h *Hub) Get(serviceID int64) (*Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[serviceID]
	return e, ok
}

// Put registers entry, overwriting any prior entry for the same id.
func (h *Hub) Put(entry *Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[entry.ServiceID] = entry
}

// Delete unregisters serviceID, if present.
func (h *Hub) Delete(serviceID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, serviceID)
}

// List returns every currently-running service id.
func (h *Hub) List() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int64, 0, len(h.entries))
	for id := range h.entries {
		ids = append(ids, id)
	}
	return ids
}
