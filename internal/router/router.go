// Package router implements the Update Router (§4.2): given one
// platform update and the Bot it belongs to, it validates the user,
// seeds a Variables bag, builds an EventStorage handle, and gathers
// the starting connections from three concurrent fetchers before
// handing them to the Connection Walker.
package router

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/handlers"
	"github.com/EXG1O/telegram-bots-hub/internal/scratch"
	"github.com/EXG1O/telegram-bots-hub/internal/variables"
	"golang.org/x/sync/errgroup"
)

// Designer is the slice of the Designer Client the router needs to
// resolve starting connections.
type Designer interface {
	GetUsers(ctx context.Context) ([]flow.User, error)
	GetOrCreateUser(ctx context.Context, telegramID int64, fullName string) (flow.User, error)
	GetTrigger(ctx context.Context, id int64) (flow.Trigger, error)
	FindTriggerByCommand(ctx context.Context, command, payload string) ([]flow.Trigger, error)
	ListMessageTriggers(ctx context.Context) ([]flow.Trigger, error)
	FindButtonByID(ctx context.Context, id int64) (flow.KeyboardButton, bool, error)
	FindButtonByText(ctx context.Context, text string) (flow.KeyboardButton, bool, error)
}

// Update is the platform-neutral shape of one incoming update the
// router needs; it is a superset of handlers.EventContext enriched
// with the identity fields and callback-query metadata the router
// itself consumes.
type Update struct {
	ChatID         *int64
	UserID         *int64
	UserIsBot      bool
	Username       string
	FirstName      string
	LastName       string
	FullName       string
	LanguageCode   string
	MessageID      *int64
	Text           string
	MessageDateISO string

	// CallbackData carries the numeric keyboard button id when the
	// update is a callback query, nil otherwise.
	CallbackData *int64
}

// Walker is the slice of the Connection Walker the router drives.
type Walker interface {
	HandleMany(ctx context.Context, ec handlers.EventContext, connections []flow.Connection, storage *scratch.EventStorage, v *variables.Variables)
}

// Router ties one bot's Designer Client, scratch Store, and Connection
// Walker together to dispatch updates.
type Router struct {
	bot      flow.Bot
	botName  string
	botUser  string
	designer Designer
	store    *scratch.Store
	walker   Walker
}

// New builds a Router for one bot.
func New(bot flow.Bot, botName, botUsername string, designer Designer, store *scratch.Store, walker Walker) *Router {
	return &Router{bot: bot, botName: botName, botUser: botUsername, designer: designer, store: store, walker: walker}
}

// Route implements the full §4.2 algorithm for one update.
func (r *Router) Route(ctx context.Context, upd Update) {
	user, valid, err := r.validate(ctx, upd)
	if err != nil {
		slog.Error("update router: user validation failed", "error", err)
		return
	}
	if !valid {
		return
	}

	v := r.seedVariables(upd)
	storage := scratch.NewEventStorage(r.store, r.bot.ID, upd.ChatID, upd.UserID)

	connections := r.gatherStarting(ctx, upd, storage, v)
	if len(connections) == 0 {
		return
	}

	ec := handlers.EventContext{
		ChatID:    upd.ChatID,
		UserID:    upd.UserID,
		UserIsBot: upd.UserIsBot,
		MessageID: upd.MessageID,
		Text:      upd.Text,
	}
	_ = user
	r.walker.HandleMany(ctx, ec, connections, storage, v)
}

func (r *Router) validate(ctx context.Context, upd Update) (flow.User, bool, error) {
	if upd.UserID == nil {
		return flow.User{}, true, nil
	}
	user, err := r.designer.GetOrCreateUser(ctx, *upd.UserID, upd.FullName)
	if err != nil {
		return flow.User{}, false, err
	}
	return user, flow.IsValid(r.bot, user), nil
}

func (r *Router) seedVariables(upd Update) *variables.Variables {
	seed := map[string]any{
		"BOT_NAME":     r.botName,
		"BOT_USERNAME": r.botUser,
	}
	if upd.UserID != nil {
		seed["USER_ID"] = *upd.UserID
		seed["USER_USERNAME"] = upd.Username
		seed["USER_FIRST_NAME"] = upd.FirstName
		seed["USER_LAST_NAME"] = upd.LastName
		seed["USER_FULL_NAME"] = upd.FullName
		seed["USER_LANGUAGE_CODE"] = upd.LanguageCode
		if upd.MessageID != nil {
			seed["USER_MESSAGE_ID"] = *upd.MessageID
		}
		seed["USER_MESSAGE_TEXT"] = upd.Text
		seed["USER_MESSAGE_DATE"] = upd.MessageDateISO
	}
	return variables.New(nil, nil, seed)
}

// gatherStarting runs the three fetchers concurrently and concatenates
// their results. A fetcher's failure is logged and contributes no
// connections, matching the Connection Walker's per-branch isolation.
func (r *Router) gatherStarting(ctx context.Context, upd Update, storage *scratch.EventStorage, v *variables.Variables) []flow.Connection {
	results := make([][]flow.Connection, 3)

	var g errgroup.Group
	g.Go(func() error {
		results[0] = r.expectedTrigger(ctx, upd, storage, v)
		return nil
	})
	g.Go(func() error {
		results[1] = r.triggerMatch(ctx, upd, v)
		return nil
	})
	g.Go(func() error {
		results[2] = r.keyboardButtonMatch(ctx, upd)
		return nil
	})
	_ = g.Wait()

	var out []flow.Connection
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (r *Router) expectedTrigger(ctx context.Context, upd Update, storage *scratch.EventStorage, v *variables.Variables) []flow.Connection {
	if storage.User == nil {
		return nil
	}
	raw, err := storage.User.Get(ctx, "expected_trigger_id")
	if err != nil || raw == nil {
		return nil
	}
	id, ok := asInt64(raw)
	if !ok {
		return nil
	}

	trig, err := r.designer.GetTrigger(ctx, id)
	if err != nil {
		slog.Warn("update router: expected trigger fetch failed", "trigger_id", id, "error", err)
		return nil
	}
	matchedText, err := messageTriggerMatches(ctx, trig, upd.Text, v)
	if err != nil {
		slog.Warn("update router: expected trigger expansion failed", "trigger_id", id, "error", err)
	}
	if !matchedText && !triggerMatchesCommand(trig, upd.Text) {
		return nil
	}
	if err := storage.User.Delete(ctx, "expected_trigger_id"); err != nil {
		slog.Warn("update router: failed to clear expected_trigger_id", "error", err)
	}
	return trig.SourceConnections
}

func (r *Router) triggerMatch(ctx context.Context, upd Update, v *variables.Variables) []flow.Connection {
	var out []flow.Connection

	if upd.Text == "" {
		return out
	}

	if strings.HasPrefix(upd.Text, "/") {
		command, payload, _ := strings.Cut(strings.TrimPrefix(upd.Text, "/"), " ")
		triggers, err := r.designer.FindTriggerByCommand(ctx, command, payload)
		if err != nil {
			slog.Warn("update router: command trigger lookup failed", "error", err)
		}
		for _, t := range triggers {
			out = append(out, t.SourceConnections...)
		}
		return out
	}

	triggers, err := r.designer.ListMessageTriggers(ctx)
	if err != nil {
		slog.Warn("update router: message trigger lookup failed", "error", err)
		return out
	}
	for _, t := range triggers {
		matched, err := messageTriggerMatches(ctx, t, upd.Text, v)
		if err != nil {
			slog.Warn("update router: message trigger expansion failed", "trigger_id", t.ID, "error", err)
			continue
		}
		if matched {
			out = append(out, t.SourceConnections...)
		}
	}
	return out
}

// messageTriggerMatches implements §4.4.1's message-trigger matching:
// a trigger with no authored text is an "any message" catch-all; one
// with text matches only once its own template, expanded through this
// update's Variables, equals the input text verbatim.
func messageTriggerMatches(ctx context.Context, trig flow.Trigger, text string, v *variables.Variables) (bool, error) {
	if trig.Message == nil {
		return false, nil
	}
	if trig.Message.Text == nil {
		return true, nil
	}
	expanded, err := variables.ExpandText(ctx, *trig.Message.Text, v)
	if err != nil {
		return false, err
	}
	return expanded == text, nil
}

func (r *Router) keyboardButtonMatch(ctx context.Context, upd Update) []flow.Connection {
	if upd.CallbackData != nil {
		btn, ok, err := r.designer.FindButtonByID(ctx, *upd.CallbackData)
		if err != nil || !ok {
			return nil
		}
		return btn.SourceConnections
	}
	if upd.Text == "" {
		return nil
	}
	btn, ok, err := r.designer.FindButtonByText(ctx, upd.Text)
	if err != nil || !ok {
		return nil
	}
	return btn.SourceConnections
}

func triggerMatchesCommand(trig flow.Trigger, text string) bool {
	if trig.Command == nil || !strings.HasPrefix(text, "/") {
		return false
	}
	command, payload, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	if trig.Command.Command != command {
		return false
	}
	if trig.Command.Payload == nil {
		return payload == ""
	}
	return *trig.Command.Payload == payload
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
