// Package scratch implements the per-(bot, chat, user) scratch store:
// a JSON-over-KV API where the whole value at one key scope is a
// single JSON object, and every write is read-modify-write against
// it. Keys are scoped tbh:{bot_id}[:{chat_id}[:{user_id}]].
package scratch

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Scope is one fully-qualified scratch key, e.g. "tbh:42:100:7".
type Scope string

// BotScope scopes scratch state to a bot (used by the Background
// Runner's last_run_iso bookkeeping).
func BotScope(botID int64) Scope {
	return Scope(fmt.Sprintf("tbh:%d", botID))
}

// ChatScope scopes scratch state to one chat within a bot.
func ChatScope(botID, chatID int64) Scope {
	return Scope(fmt.Sprintf("tbh:%d:%d", botID, chatID))
}

// UserScope scopes scratch state to one user within one chat.
func UserScope(botID, chatID, userID int64) Scope {
	return Scope(fmt.Sprintf("tbh:%d:%d:%d", botID, chatID, userID))
}

// ErrCorrupt is returned when the value stored at a scope is not a
// JSON object; per the error-handling design this is a hard error the
// caller should log and skip, not silently coerce.
var ErrCorrupt = errors.New("scratch: stored value is not a JSON object")

// Backend loads and saves the whole JSON object at one scope. Load
// returns an empty, non-nil map (never an error) when the scope has
// never been written; Save refreshes the backend's expiry policy.
type Backend interface {
	Load(ctx context.Context, scope Scope) (map[string]any, error)
	Save(ctx context.Context, scope Scope, data map[string]any) error
}

// Store is the field-level JSON-over-KV API described in §4.8.
type Store struct {
	backend Backend
}

// NewStore builds a Store over backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Get returns the value at field within scope, or nil if absent.
func (s *Store) Get(ctx context.Context, scope Scope, field string) (any, error) {
	data, err := s.backend.Load(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "scratch: load")
	}
	return data[field], nil
}

// Pop returns the value at field and removes it, in one read-modify-write.
func (s *Store) Pop(ctx context.Context, scope Scope, field string) (any, error) {
	data, err := s.backend.Load(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "scratch: load")
	}
	value, ok := data[field]
	if !ok {
		return nil, nil
	}
	delete(data, field)
	if err := s.backend.Save(ctx, scope, data); err != nil {
		return nil, errors.Wrap(err, "scratch: save")
	}
	return value, nil
}

// Set writes value at field within scope.
func (s *Store) Set(ctx context.Context, scope Scope, field string, value any) error {
	data, err := s.backend.Load(ctx, scope)
	if err != nil {
		return errors.Wrap(err, "scratch: load")
	}
	data[field] = value
	return errors.Wrap(s.backend.Save(ctx, scope, data), "scratch: save")
}

// Delete removes field within scope, if present.
func (s *Store) Delete(ctx context.Context, scope Scope, field string) error {
	data, err := s.backend.Load(ctx, scope)
	if err != nil {
		return errors.Wrap(err, "scratch: load")
	}
	if _, ok := data[field]; !ok {
		return nil
	}
	delete(data, field)
	return errors.Wrap(s.backend.Save(ctx, scope, data), "scratch: save")
}

// Handle binds a Store to one fixed scope for ergonomic repeated
// access, e.g. within one node handler invocation.
type Handle struct {
	store *Store
	scope Scope
}

// NewHandle binds store to scope.
func NewHandle(store *Store, scope Scope) *Handle {
	return &Handle{store: store, scope: scope}
}

func (h *Handle) Get(ctx context.Context, field string) (any, error) {
	return h.store.Get(ctx, h.scope, field)
}

func (h *Handle) Pop(ctx context.Context, field string) (any, error) {
	return h.store.Pop(ctx, h.scope, field)
}

func (h *Handle) Set(ctx context.Context, field string, value any) error {
	return h.store.Set(ctx, h.scope, field, value)
}

func (h *Handle) Delete(ctx context.Context, field string) error {
	return h.store.Delete(ctx, h.scope, field)
}

// EventStorage bundles the scratch handles available for one update:
// Bot is always present; Chat and User are nil when the update lacked
// the corresponding id, and handlers must skip scratch interaction in
// that case rather than fail.
type EventStorage struct {
	Bot  *Handle
	Chat *Handle
	User *Handle
}

// NewEventStorage builds an EventStorage for the given ids. chatID and
// userID are optional (nil means absent); User is set only when both
// are present.
func NewEventStorage(store *Store, botID int64, chatID, userID *int64) *EventStorage {
	es := &EventStorage{Bot: NewHandle(store, BotScope(botID))}
	if chatID != nil {
		es.Chat = NewHandle(store, ChatScope(botID, *chatID))
		if userID != nil {
			es.User = NewHandle(store, UserScope(botID, *chatID, *userID))
		}
	}
	return es
}
