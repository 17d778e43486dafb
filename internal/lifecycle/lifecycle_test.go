package lifecycle

import (
	"context"
	"testing"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/hub"
	"github.com/EXG1O/telegram-bots-hub/internal/scratch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_StopUnknownBotFails(t *testing.T) {
	m := New(hub.New(), scratch.NewStore(scratch.NewMemBackend()), "https://hub.example", "secret", "", nil, nil)
	err := m.Stop(999)
	assert.ErrorIs(t, err, ErrNotFoundBot)
}

func TestManager_RestartUnknownBotFails(t *testing.T) {
	m := New(hub.New(), scratch.NewStore(scratch.NewMemBackend()), "https://hub.example", "secret", "", nil, nil)
	err := m.Restart(t.Context(), 999)
	assert.ErrorIs(t, err, ErrNotFoundBot)
}

func TestManager_StartFailsWhenAlreadyEnabled(t *testing.T) {
	h := hub.New()
	h.Put(&hub.Entry{ServiceID: 1})
	m := New(h, scratch.NewStore(scratch.NewMemBackend()), "https://hub.example", "secret", "", nil, nil)

	err := m.Start(t.Context(), 1, "token")
	assert.ErrorIs(t, err, ErrBotAlreadyEnabled)
}

func TestCleanCommandName_StripsPunctuation(t *testing.T) {
	assert.Equal(t, "start", cleanCommandName("start!"))
	assert.Equal(t, "helpme", cleanCommandName("help-me"))
}

func TestFetchCommandTriggers_FiltersByDescription(t *testing.T) {
	desc := "Starts the bot"
	designer := fakeTriggerDesigner{triggers: []flow.Trigger{
		{ID: 1, Command: &flow.Command{Command: "start", Description: &desc}},
		{ID: 2, Command: &flow.Command{Command: "hidden"}},
		{ID: 3},
	}}

	out, err := fetchCommandTriggers(t.Context(), designer)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.EqualValues(t, 1, out[0].ID)
}

type fakeTriggerDesigner struct {
	Designer
	triggers []flow.Trigger
}

func (f fakeTriggerDesigner) GetTriggers(ctx context.Context) ([]flow.Trigger, error) {
	return f.triggers, nil
}
