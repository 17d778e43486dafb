// Package lifecycle implements the Bot Lifecycle (§4.1) and token
// watchdog (§4.10): starting, stopping, and restarting one bot's
// webhook registration, command menu, and long-running activities
// (Background Runner, watchdog), and owning its entry in the Hub.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/EXG1O/telegram-bots-hub/internal/background"
	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/handlers"
	"github.com/EXG1O/telegram-bots-hub/internal/hub"
	"github.com/EXG1O/telegram-bots-hub/internal/metrics"
	"github.com/EXG1O/telegram-bots-hub/internal/platform"
	"github.com/EXG1O/telegram-bots-hub/internal/router"
	"github.com/EXG1O/telegram-bots-hub/internal/scratch"
	"github.com/EXG1O/telegram-bots-hub/internal/variables"
	"github.com/EXG1O/telegram-bots-hub/internal/walker"
)

// watchdogInterval is how often the token watchdog probes the
// platform with a "get me" call.
const watchdogInterval = 24 * time.Hour

var (
	// ErrBotAlreadyEnabled is returned by Start when service_id is
	// already running.
	ErrBotAlreadyEnabled = errors.New("lifecycle: bot already enabled")
	// ErrNotFoundBot is returned by Stop/Restart when service_id is not
	// running.
	ErrNotFoundBot = errors.New("lifecycle: bot not found")
	// ErrInvalidBotToken is returned by Start when the SDK client cannot
	// be built for the token. The watchdog stops a bot whose token the
	// platform rejects without producing this error.
	ErrInvalidBotToken = errors.New("lifecycle: invalid bot token")
)

// Designer is the full Designer Client surface the lifecycle wires
// into the Router, Background Runner, Connection Walker, and node
// handlers for one bot.
type Designer interface {
	router.Designer
	background.Designer
	handlers.Designer
	walker.Fetcher
	GetTriggers(ctx context.Context) ([]flow.Trigger, error)
}

// Manager drives Start/Stop/Restart for every bot in one process.
type Manager struct {
	hub           *hub.Hub
	store         *scratch.Store
	selfURL       string
	webhookSecret string
	newDesigner   func(serviceID int64) Designer
	mediaBaseURL  string
	metrics       *metrics.Registry
}

// New builds a Manager. newDesigner constructs a Designer Client
// scoped to one bot's service id; webhookSecret is the process-wide
// random value sent as X-Telegram-Bot-Api-Secret-Token and verified by
// the webhook ingress handler. reg is the process-wide metrics
// registry every started bot reports traversal, send, and API Request
// outcomes to.
func New(h *hub.Hub, store *scratch.Store, selfURL, webhookSecret, mediaBaseURL string, newDesigner func(serviceID int64) Designer, reg *metrics.Registry) *Manager {
	return &Manager{
		hub:           h,
		store:         store,
		selfURL:       selfURL,
		webhookSecret: webhookSecret,
		newDesigner:   newDesigner,
		mediaBaseURL:  mediaBaseURL,
		metrics:       reg,
	}
}

// Start implements §4.1 steps 1-5.
func (m *Manager) Start(ctx context.Context, serviceID int64, token string) error {
	if _, ok := m.hub.Get(serviceID); ok {
		return ErrBotAlreadyEnabled
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return errors.Wrap(ErrInvalidBotToken, err.Error())
	}

	d := m.newDesigner(serviceID)

	triggers, err := fetchCommandTriggers(ctx, d)
	if err != nil {
		return errors.Wrap(err, "lifecycle: fetch triggers")
	}
	if err := registerCommandMenu(bot, triggers); err != nil {
		slog.Warn("lifecycle: failed to register command menu", "service_id", serviceID, "error", err)
	}

	webhookURL := fmt.Sprintf("%s/telegram/bots/%d/webhook/", strings.TrimRight(m.selfURL, "/"), serviceID)
	if err := registerWebhook(bot, webhookURL, m.webhookSecret); err != nil {
		return errors.Wrap(err, "lifecycle: register webhook")
	}

	// Typed-nil guards: a nil *metrics.Registry must never be wrapped into
	// a non-nil Recorder interface value, or the nil checks downstream
	// would pass and the first recorded metric would panic on a nil
	// receiver.
	var walkerRec walker.Recorder
	var platformRec platform.Recorder
	var handlersRec handlers.MetricsRecorder
	if m.metrics != nil {
		walkerRec, platformRec, handlersRec = m.metrics, m.metrics, m.metrics
	}

	tele := platform.New(bot, platformRec)
	w := newWalker(d, tele, m.mediaBaseURL, bot.Self.ID, walkerRec, handlersRec)

	flowBot, err := d.GetBot(ctx)
	if err != nil {
		return errors.Wrap(err, "lifecycle: fetch bot")
	}

	r := router.New(flowBot, bot.Self.FirstName, bot.Self.UserName, d, m.store, w)
	runnerCtx, cancel := context.WithCancel(context.Background())

	bg := background.New(serviceID, bot.Self.FirstName, bot.Self.UserName, d, m.store, w)
	go bg.Run(runnerCtx)
	go m.watchdog(runnerCtx, serviceID, bot)

	m.hub.Put(&hub.Entry{
		ServiceID: serviceID,
		Token:     token,
		Stop: func() {
			cancel()
			_, _ = bot.Request(tgbotapi.DeleteWebhookConfig{})
		},
		Route: r.Route,
	})

	slog.Info("lifecycle: bot started", "service_id", serviceID, "username", bot.Self.UserName)
	return nil
}

// Stop implements §4.1's stop contract.
func (m *Manager) Stop(serviceID int64) error {
	entry, ok := m.hub.Get(serviceID)
	if !ok {
		return ErrNotFoundBot
	}
	entry.Stop()
	m.hub.Delete(serviceID)
	slog.Info("lifecycle: bot stopped", "service_id", serviceID)
	return nil
}

// Restart is stop followed by start with the same token the bot was
// originally started with.
func (m *Manager) Restart(ctx context.Context, serviceID int64) error {
	entry, ok := m.hub.Get(serviceID)
	if !ok {
		return ErrNotFoundBot
	}
	token := entry.Token
	if err := m.Stop(serviceID); err != nil {
		return err
	}
	return m.Start(ctx, serviceID, token)
}

// watchdog implements §4.10: every 24h, probe "get me"; on an invalid
// token signal, stop the bot.
func (m *Manager) watchdog(ctx context.Context, serviceID int64, bot *tgbotapi.BotAPI) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := bot.GetMe(); err != nil && isInvalidToken(err) {
				slog.Warn("lifecycle: watchdog detected invalid token, stopping bot", "service_id", serviceID)
				_ = m.Stop(serviceID)
				return
			}
		}
	}
}

func isInvalidToken(err error) bool {
	var apiErr *tgbotapi.Error
	if e, ok := err.(*tgbotapi.Error); ok {
		apiErr = e
	}
	if apiErr == nil {
		return false
	}
	return apiErr.Code == 401 || apiErr.Code == 404
}

// fetchCommandTriggers returns every trigger carrying a command with a
// non-nil description, the set exposed as the visible command menu.
func fetchCommandTriggers(ctx context.Context, d Designer) ([]flow.Trigger, error) {
	all, err := d.GetTriggers(ctx)
	if err != nil {
		return nil, err
	}
	var out []flow.Trigger
	for _, t := range all {
		if t.Command != nil && t.Command.Description != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

// newWalker builds the Connection Walker for one bot, binding the node
// handler dispatch table to its Designer Client and platform adapter.
func newWalker(d Designer, tele *platform.Telegram, mediaBaseURL string, botID int64, walkerRec walker.Recorder, handlersRec handlers.MetricsRecorder) *walker.Walker {
	deps := handlers.Deps{Platform: tele, Designer: d, MediaBaseURL: mediaBaseURL, BotID: botID, Metrics: handlersRec}
	handle := func(ctx context.Context, kind flow.NodeKind, obj any, ec handlers.EventContext, storage *scratch.EventStorage, v *variables.Variables) ([]flow.Connection, error) {
		return handlers.Handle(ctx, deps, kind, obj, ec, storage, v)
	}
	return walker.New(d, handle, walkerRec, botID)
}

// registerCommandMenu strips punctuation from each command name before
// registering it, matching the Designer Service's authored commands
// against Telegram's stricter command-name charset.
func registerCommandMenu(bot *tgbotapi.BotAPI, triggers []flow.Trigger) error {
	if len(triggers) == 0 {
		return nil
	}
	commands := make([]tgbotapi.BotCommand, 0, len(triggers))
	for _, t := range triggers {
		commands = append(commands, tgbotapi.BotCommand{
			Command:     cleanCommandName(t.Command.Command),
			Description: *t.Command.Description,
		})
	}
	_, err := bot.Request(tgbotapi.NewSetMyCommands(commands...))
	return err
}

func cleanCommandName(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func registerWebhook(bot *tgbotapi.BotAPI, url, secret string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return err
	}
	wh.SecretToken = secret
	_, err = bot.Request(wh)
	return err
}
