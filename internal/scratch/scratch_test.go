package scratch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGetPopDelete(t *testing.T) {
	store := NewStore(NewMemBackend())
	ctx := context.Background()
	scope := BotScope(1)

	require.NoError(t, store.Set(ctx, scope, "expected_trigger_id", 42))

	v, err := store.Get(ctx, scope, "expected_trigger_id")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	popped, err := store.Pop(ctx, scope, "expected_trigger_id")
	require.NoError(t, err)
	assert.Equal(t, 42, popped)

	v, err = store.Get(ctx, scope, "expected_trigger_id")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEventStorage_AbsentHandlesAreNil(t *testing.T) {
	store := NewStore(NewMemBackend())
	es := NewEventStorage(store, 1, nil, nil)
	assert.NotNil(t, es.Bot)
	assert.Nil(t, es.Chat)
	assert.Nil(t, es.User)
}

func TestEventStorage_ChatAndUserScoped(t *testing.T) {
	store := NewStore(NewMemBackend())
	chatID := int64(100)
	userID := int64(7)
	es := NewEventStorage(store, 1, &chatID, &userID)

	require.NotNil(t, es.Chat)
	require.NotNil(t, es.User)

	require.NoError(t, es.Chat.Set(context.Background(), "last_bot_message_ids", []int{1, 2}))
	v, err := es.Chat.Get(context.Background(), "last_bot_message_ids")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, v)
}
