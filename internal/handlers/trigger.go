package handlers

import (
	"context"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/scratch"
)

// HandleTrigger implements §4.4.1: used only for expected-trigger
// continuation, it records trigger.ID as expected_trigger_id in
// user-scoped scratch and is always terminal.
func HandleTrigger(ctx context.Context, trigger flow.Trigger, storage *scratch.EventStorage) ([]flow.Connection, error) {
	if storage.User == nil {
		return nil, nil
	}
	if err := storage.User.Set(ctx, "expected_trigger_id", trigger.ID); err != nil {
		return nil, err
	}
	return nil, nil
}
