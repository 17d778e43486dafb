package router

import (
	"context"
	"testing"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/handlers"
	"github.com/EXG1O/telegram-bots-hub/internal/scratch"
	"github.com/EXG1O/telegram-bots-hub/internal/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDesigner struct {
	users           map[int64]flow.User
	triggers        map[int64]flow.Trigger
	byCommand       map[string][]flow.Trigger
	messageTriggers []flow.Trigger
	buttonsByID     map[int64]flow.KeyboardButton
}

func newFakeDesigner() *fakeDesigner {
	return &fakeDesigner{
		users:       map[int64]flow.User{},
		triggers:    map[int64]flow.Trigger{},
		byCommand:   map[string][]flow.Trigger{},
		buttonsByID: map[int64]flow.KeyboardButton{},
	}
}

func (f *fakeDesigner) GetUsers(ctx context.Context) ([]flow.User, error) { return nil, nil }

func (f *fakeDesigner) GetOrCreateUser(ctx context.Context, telegramID int64, fullName string) (flow.User, error) {
	if u, ok := f.users[telegramID]; ok {
		return u, nil
	}
	u := flow.User{TelegramID: telegramID, FullName: fullName}
	f.users[telegramID] = u
	return u, nil
}

func (f *fakeDesigner) GetTrigger(ctx context.Context, id int64) (flow.Trigger, error) {
	return f.triggers[id], nil
}

func (f *fakeDesigner) FindTriggerByCommand(ctx context.Context, command, payload string) ([]flow.Trigger, error) {
	return f.byCommand[command+"|"+payload], nil
}

func (f *fakeDesigner) ListMessageTriggers(ctx context.Context) ([]flow.Trigger, error) {
	return f.messageTriggers, nil
}

func (f *fakeDesigner) FindButtonByID(ctx context.Context, id int64) (flow.KeyboardButton, bool, error) {
	b, ok := f.buttonsByID[id]
	return b, ok, nil
}

func (f *fakeDesigner) FindButtonByText(ctx context.Context, text string) (flow.KeyboardButton, bool, error) {
	return flow.KeyboardButton{}, false, nil
}

type fakeWalker struct {
	calls       int
	connections []flow.Connection
	lastEC      handlers.EventContext
}

func (w *fakeWalker) HandleMany(ctx context.Context, ec handlers.EventContext, connections []flow.Connection, storage *scratch.EventStorage, v *variables.Variables) {
	w.calls++
	w.connections = connections
	w.lastEC = ec
}

func TestRouter_DropsInvalidUser(t *testing.T) {
	designer := newFakeDesigner()
	bot := flow.Bot{ID: 1, IsPrivate: true}
	uid := int64(7)
	designer.users[uid] = flow.User{TelegramID: uid, IsAllowed: false}

	store := scratch.NewStore(scratch.NewMemBackend())
	w := &fakeWalker{}
	r := New(bot, "MyBot", "mybot_bot", designer, store, w)

	r.Route(context.Background(), Update{UserID: &uid, Text: "/start"})
	assert.Equal(t, 0, w.calls)
}

func TestRouter_CommandTriggerMatches(t *testing.T) {
	designer := newFakeDesigner()
	bot := flow.Bot{ID: 1}
	uid := int64(7)
	designer.byCommand["start|"] = []flow.Trigger{{ID: 1, SourceConnections: []flow.Connection{{ID: 100}}}}

	store := scratch.NewStore(scratch.NewMemBackend())
	w := &fakeWalker{}
	r := New(bot, "MyBot", "mybot_bot", designer, store, w)

	r.Route(context.Background(), Update{UserID: &uid, Text: "/start"})
	require.Equal(t, 1, w.calls)
	assert.Len(t, w.connections, 1)
}

func TestRouter_PassesUserIsBotToEventContext(t *testing.T) {
	designer := newFakeDesigner()
	bot := flow.Bot{ID: 1}
	uid := int64(7)
	designer.byCommand["start|"] = []flow.Trigger{{ID: 1, SourceConnections: []flow.Connection{{ID: 100}}}}

	store := scratch.NewStore(scratch.NewMemBackend())
	w := &fakeWalker{}
	r := New(bot, "MyBot", "mybot_bot", designer, store, w)

	r.Route(context.Background(), Update{UserID: &uid, Text: "/start", UserIsBot: true})
	require.Equal(t, 1, w.calls)
	assert.True(t, w.lastEC.UserIsBot)
}

func TestRouter_ExpectedTriggerConsumedOnce(t *testing.T) {
	designer := newFakeDesigner()
	bot := flow.Bot{ID: 1}
	uid := int64(7)
	yes := "yes"
	designer.triggers[5] = flow.Trigger{
		ID:                5,
		Message:           &flow.TriggerMessage{Text: &yes},
		SourceConnections: []flow.Connection{{ID: 200}},
	}

	store := scratch.NewStore(scratch.NewMemBackend())
	require.NoError(t, store.Set(context.Background(), scratch.UserScope(1, 7, 7), "expected_trigger_id", int64(5)))

	w := &fakeWalker{}
	r := New(bot, "MyBot", "mybot_bot", designer, store, w)

	r.Route(context.Background(), Update{UserID: &uid, ChatID: &uid, Text: "yes"})
	require.Equal(t, 1, w.calls)
	assert.Len(t, w.connections, 1)

	val, err := store.Get(context.Background(), scratch.UserScope(1, 7, 7), "expected_trigger_id")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRouter_MessageTriggerMatchesExpandedTemplate(t *testing.T) {
	designer := newFakeDesigner()
	bot := flow.Bot{ID: 1}
	uid := int64(7)
	template := "Hello, {{ USER_FIRST_NAME }}!"
	designer.messageTriggers = []flow.Trigger{
		{ID: 9, Message: &flow.TriggerMessage{Text: &template}, SourceConnections: []flow.Connection{{ID: 400}}},
	}

	store := scratch.NewStore(scratch.NewMemBackend())
	w := &fakeWalker{}
	r := New(bot, "MyBot", "mybot_bot", designer, store, w)

	r.Route(context.Background(), Update{UserID: &uid, FirstName: "Ada", Text: "Hello, Ada!"})
	require.Equal(t, 1, w.calls)
	assert.Len(t, w.connections, 1)
}

func TestRouter_MessageTriggerCatchAllMatchesAnyText(t *testing.T) {
	designer := newFakeDesigner()
	bot := flow.Bot{ID: 1}
	uid := int64(7)
	designer.messageTriggers = []flow.Trigger{
		{ID: 10, Message: &flow.TriggerMessage{}, SourceConnections: []flow.Connection{{ID: 401}}},
	}

	store := scratch.NewStore(scratch.NewMemBackend())
	w := &fakeWalker{}
	r := New(bot, "MyBot", "mybot_bot", designer, store, w)

	r.Route(context.Background(), Update{UserID: &uid, Text: "anything at all"})
	require.Equal(t, 1, w.calls)
	assert.Len(t, w.connections, 1)
}

func TestRouter_KeyboardButtonByCallback(t *testing.T) {
	designer := newFakeDesigner()
	bot := flow.Bot{ID: 1}
	uid := int64(7)
	cb := int64(42)
	designer.buttonsByID[42] = flow.KeyboardButton{ID: 42, SourceConnections: []flow.Connection{{ID: 300}}}

	store := scratch.NewStore(scratch.NewMemBackend())
	w := &fakeWalker{}
	r := New(bot, "MyBot", "mybot_bot", designer, store, w)

	r.Route(context.Background(), Update{UserID: &uid, CallbackData: &cb})
	require.Equal(t, 1, w.calls)
	assert.Len(t, w.connections, 1)
}
