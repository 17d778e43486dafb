package handlers

import (
	"context"
	"testing"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/media"
	"github.com/EXG1O/telegram-bots-hub/internal/scratch"
	"github.com/EXG1O/telegram-bots-hub/internal/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	texts           []string
	deletedMessages []int
	nextID          int
}

func (f *fakePlatform) nextRef() media.MessageRef {
	f.nextID++
	return media.MessageRef{ID: f.nextID}
}

func (f *fakePlatform) SendSingle(ctx context.Context, chatID int64, replyTo *int, t media.Type, item media.Item, caption string, keyboard media.Keyboard) (media.MessageRef, error) {
	return f.nextRef(), nil
}

func (f *fakePlatform) SendMediaGroup(ctx context.Context, chatID int64, replyTo *int, t media.Type, items []media.Item) ([]media.MessageRef, error) {
	refs := make([]media.MessageRef, len(items))
	for i := range items {
		refs[i] = f.nextRef()
	}
	return refs, nil
}

func (f *fakePlatform) SendMessage(ctx context.Context, chatID int64, replyTo *int, text string, keyboard media.Keyboard) (media.MessageRef, error) {
	f.texts = append(f.texts, text)
	return f.nextRef(), nil
}

func (f *fakePlatform) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.deletedMessages = append(f.deletedMessages, messageID)
	return nil
}

func (f *fakePlatform) DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error {
	f.deletedMessages = append(f.deletedMessages, messageIDs...)
	return nil
}

func TestHandleMessage_PlainTextReply(t *testing.T) {
	plat := &fakePlatform{}
	deps := Deps{Platform: plat}
	store := scratch.NewStore(scratch.NewMemBackend())
	chatID := int64(100)
	es := scratch.NewEventStorage(store, 1, &chatID, nil)

	v := variables.New(nil, nil, map[string]any{"USER_FIRST_NAME": "Ada"})
	msg := flow.Message{
		Text:     "Hello, {{USER_FIRST_NAME}}!",
		Settings: flow.MessageSettings{SendAsNewMessage: true},
	}

	conns, err := HandleMessage(context.Background(), deps, msg, EventContext{ChatID: &chatID}, es, v)
	require.NoError(t, err)
	assert.Nil(t, conns)

	require.Len(t, plat.texts, 1)
	assert.Equal(t, "Hello, Ada!", plat.texts[0])
}

func TestHandleMessage_DeletesPriorMessagesWhenNotNew(t *testing.T) {
	plat := &fakePlatform{}
	deps := Deps{Platform: plat}
	store := scratch.NewStore(scratch.NewMemBackend())
	chatID := int64(100)
	es := scratch.NewEventStorage(store, 1, &chatID, nil)
	require.NoError(t, es.Chat.Set(context.Background(), "last_bot_message_ids", []any{float64(5), float64(6)}))

	v := variables.New(nil, nil, nil)
	msg := flow.Message{Text: "hi", Settings: flow.MessageSettings{SendAsNewMessage: false}}

	_, err := HandleMessage(context.Background(), deps, msg, EventContext{ChatID: &chatID}, es, v)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{5, 6}, plat.deletedMessages)
}

func TestHandleMessage_DeletesUserMessageWhenRequested(t *testing.T) {
	plat := &fakePlatform{}
	deps := Deps{Platform: plat}
	store := scratch.NewStore(scratch.NewMemBackend())
	chatID := int64(100)
	msgID := int64(55)
	es := scratch.NewEventStorage(store, 1, &chatID, nil)

	v := variables.New(nil, nil, nil)
	msg := flow.Message{
		Text:     "bye",
		Settings: flow.MessageSettings{SendAsNewMessage: true, DeleteUserMessage: true},
	}

	_, err := HandleMessage(context.Background(), deps, msg, EventContext{ChatID: &chatID, MessageID: &msgID}, es, v)
	require.NoError(t, err)

	assert.Contains(t, plat.deletedMessages, 55)
}

func TestHandleMessage_KeepsOriginatingMessageWhenUserIsBot(t *testing.T) {
	plat := &fakePlatform{}
	deps := Deps{Platform: plat}
	store := scratch.NewStore(scratch.NewMemBackend())
	chatID := int64(100)
	msgID := int64(55)
	es := scratch.NewEventStorage(store, 1, &chatID, nil)

	v := variables.New(nil, nil, nil)
	msg := flow.Message{
		Text:     "bye",
		Settings: flow.MessageSettings{SendAsNewMessage: true, DeleteUserMessage: true},
	}

	_, err := HandleMessage(context.Background(), deps, msg, EventContext{ChatID: &chatID, MessageID: &msgID, UserIsBot: true}, es, v)
	require.NoError(t, err)

	assert.NotContains(t, plat.deletedMessages, 55)
}
