package scratch

import (
	"context"
	"sync"
)

// MemBackend is an in-memory Backend with no expiry, used in tests and
// single-process development runs where durability is not needed.
type MemBackend struct {
	mu   sync.Mutex
	data map[Scope]map[string]any
}

// NewMemBackend builds an empty MemBackend.
func NewMemBackend() *MemBackend {
	return &MemBackend{data: make(map[Scope]map[string]any)}
}

func (m *MemBackend) Load(ctx context.Context, scope Scope) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.data[scope]
	if !ok {
		return make(map[string]any), nil
	}
	out := make(map[string]any, len(existing))
	for k, v := range existing {
		out[k] = v
	}
	return out, nil
}

func (m *MemBackend) Save(ctx context.Context, scope Scope, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make(map[string]any, len(data))
	for k, v := range data {
		stored[k] = v
	}
	m.data[scope] = stored
	return nil
}
