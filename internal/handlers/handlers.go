// Package handlers implements the five Node Handlers (§4.4): Trigger,
// Message, Condition, APIRequest, and DatabaseOperation. Each handler
// takes the current EventContext, the immutable node snapshot, the
// per-traversal EventStorage, and a forked Variables bag, and returns
// the node's outgoing connections (or nil to cut the branch).
package handlers

import (
	"context"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/media"
	"github.com/EXG1O/telegram-bots-hub/internal/scratch"
	"github.com/EXG1O/telegram-bots-hub/internal/variables"
)

// EventContext is the platform-neutral projection of one incoming (or
// synthesized) update that node handlers need. The Update Router (or
// the Background Runner, for synthetic updates) builds one of these
// from the concrete platform update.
type EventContext struct {
	ChatID    *int64
	UserID    *int64
	UserIsBot bool
	MessageID *int64
	Text      string
}

// Platform is the narrow slice of the platform SDK the node handlers
// need: sending composed messages and cleaning up prior ones.
type Platform interface {
	media.Sender
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error
}

// Designer is the narrow slice of one bot's Designer Client the node
// handlers need: record mutation for DatabaseOperationHandler. Every
// method is implicitly scoped to the bot the client was built for.
type Designer interface {
	CreateDatabaseRecord(ctx context.Context, data map[string]any) error
	UpdateDatabaseRecords(ctx context.Context, lookupField, lookupValue string, newData map[string]any, overwrite, createIfNotFound bool) error
}

// MetricsRecorder is the slice of the metrics registry node handlers
// report outcomes to. Nil is valid: a Deps built without one simply
// records nothing.
type MetricsRecorder interface {
	APIRequest(botID int64, outcome string)
}

// Deps bundles the external collaborators every handler needs.
type Deps struct {
	Platform     Platform
	Designer     Designer
	MediaBaseURL string
	BotID        int64
	Metrics      MetricsRecorder
}

// Handle dispatches update/storage/variables to the handler for kind,
// given the already-fetched node object. obj must be the concrete
// flow type for kind (flow.Trigger, flow.Message, flow.Condition,
// flow.APIRequest, or flow.DatabaseOperation).
func Handle(ctx context.Context, deps Deps, kind flow.NodeKind, obj any, ec EventContext, storage *scratch.EventStorage, v *variables.Variables) ([]flow.Connection, error) {
	switch kind {
	case flow.KindTrigger:
		return HandleTrigger(ctx, obj.(flow.Trigger), storage)
	case flow.KindMessage:
		return HandleMessage(ctx, deps, obj.(flow.Message), ec, storage, v)
	case flow.KindCondition:
		return HandleCondition(ctx, obj.(flow.Condition), v)
	case flow.KindAPIRequest:
		return HandleAPIRequest(ctx, obj.(flow.APIRequest), v, deps.BotID, deps.Metrics)
	case flow.KindDatabaseOperation:
		return HandleDatabaseOperation(ctx, deps, obj.(flow.DatabaseOperation), v)
	default:
		return nil, nil
	}
}

// HandleCondition is the Condition node handler: it evaluates the
// node's parts and returns its outgoing connections only when the
// fold result is true.
func HandleCondition(ctx context.Context, cond flow.Condition, v *variables.Variables) ([]flow.Connection, error) {
	ok, err := EvaluateCondition(ctx, cond, v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return cond.SourceConnections, nil
}
