// Package background implements the Background Runner (§4.9): once an
// hour it checks every scheduled task's interval against the last run
// recorded in bot-level scratch, and for every due task synthesizes one
// Update per valid user and drives it through the Connection Walker.
package background

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/handlers"
	"github.com/EXG1O/telegram-bots-hub/internal/scratch"
	"github.com/EXG1O/telegram-bots-hub/internal/variables"
	"golang.org/x/sync/errgroup"
)

// tickInterval is how often the runner wakes to check due tasks.
const tickInterval = time.Hour

// firstNameCutoff is where a synthesized user's full_name is split
// into first/last name for variable seeding.
const firstNameCutoff = 64

// Designer is the slice of the Designer Client the runner needs.
type Designer interface {
	GetBot(ctx context.Context) (flow.Bot, error)
	GetBackgroundTasks(ctx context.Context) ([]flow.BackgroundTask, error)
	GetUsers(ctx context.Context) ([]flow.User, error)
}

// Walker is the slice of the Connection Walker the runner drives.
type Walker interface {
	HandleMany(ctx context.Context, ec handlers.EventContext, connections []flow.Connection, storage *scratch.EventStorage, v *variables.Variables)
}

// clock abstracts time.Now so tests can control it; New sets it to
// time.Now().UTC().
type clock func() time.Time

// Runner drives one bot's background tasks.
type Runner struct {
	botID    int64
	botName  string
	botUser  string
	designer Designer
	store    *scratch.Store
	walker   Walker
	now      clock
}

// New builds a Runner for one bot.
func New(botID int64, botName, botUsername string, designer Designer, store *scratch.Store, walker Walker) *Runner {
	return &Runner{
		botID:    botID,
		botName:  botName,
		botUser:  botUsername,
		designer: designer,
		store:    store,
		walker:   walker,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks, ticking once an hour, until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick implements one loop iteration; it is separate from Run so tests
// can drive a single pass without waiting an hour.
func (r *Runner) tick(ctx context.Context) {
	tasks, err := r.designer.GetBackgroundTasks(ctx)
	if err != nil {
		slog.Error("background runner: fetch tasks failed", "bot_id", r.botID, "error", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	scope := scratch.BotScope(r.botID)
	lastRun, err := r.loadLastRun(ctx, scope)
	if err != nil {
		slog.Error("background runner: load state failed", "bot_id", r.botID, "error", err)
		return
	}

	now := r.now()
	due := dueTasks(tasks, lastRun, now)
	if len(due) == 0 {
		return
	}

	bot, err := r.designer.GetBot(ctx)
	if err != nil {
		slog.Error("background runner: fetch bot failed", "bot_id", r.botID, "error", err)
		return
	}
	users, err := r.designer.GetUsers(ctx)
	if err != nil {
		slog.Error("background runner: fetch users failed", "bot_id", r.botID, "error", err)
		return
	}

	for _, task := range due {
		r.runTask(ctx, bot, task, users)
		lastRun[taskKey(task.ID)] = now.Format(time.RFC3339)
	}

	if err := r.saveLastRun(ctx, scope, lastRun); err != nil {
		slog.Error("background runner: persist state failed", "bot_id", r.botID, "error", err)
	}
}

func (r *Runner) runTask(ctx context.Context, bot flow.Bot, task flow.BackgroundTask, users []flow.User) {
	var g errgroup.Group
	for _, user := range users {
		user := user
		if !flow.IsValid(bot, user) {
			continue
		}
		g.Go(func() error {
			r.driveUser(ctx, task, user)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) driveUser(ctx context.Context, task flow.BackgroundTask, user flow.User) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("background runner: task panicked", "task_id", task.ID, "user_id", user.TelegramID, "panic", rec)
		}
	}()

	first, last := splitFullName(user.FullName)
	chatID := user.TelegramID
	userID := user.TelegramID

	v := variables.New(nil, nil, map[string]any{
		"BOT_NAME":           r.botName,
		"BOT_USERNAME":       r.botUser,
		"USER_ID":            user.TelegramID,
		"USER_FIRST_NAME":    first,
		"USER_LAST_NAME":     last,
		"USER_FULL_NAME":     user.FullName,
		"USER_MESSAGE_TEXT":  "",
		"USER_MESSAGE_DATE":  r.now().Format(time.RFC3339),
	})
	storage := scratch.NewEventStorage(r.store, r.botID, &chatID, &userID)
	ec := handlers.EventContext{ChatID: &chatID, UserID: &userID}

	r.walker.HandleMany(ctx, ec, task.SourceConnections, storage, v)
}

func (r *Runner) loadLastRun(ctx context.Context, scope scratch.Scope) (map[string]string, error) {
	raw, err := r.store.Get(ctx, scope, "background_tasks")
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	if m, ok := raw.(map[string]any); ok {
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out, nil
}

func (r *Runner) saveLastRun(ctx context.Context, scope scratch.Scope, lastRun map[string]string) error {
	encoded := make(map[string]any, len(lastRun))
	for k, v := range lastRun {
		encoded[k] = v
	}
	return r.store.Set(ctx, scope, "background_tasks", encoded)
}

func dueTasks(tasks []flow.BackgroundTask, lastRun map[string]string, now time.Time) []flow.BackgroundTask {
	var out []flow.BackgroundTask
	for _, task := range tasks {
		raw, ok := lastRun[taskKey(task.ID)]
		if !ok {
			out = append(out, task)
			continue
		}
		last, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			out = append(out, task)
			continue
		}
		if now.Sub(last) >= time.Duration(task.Interval)*24*time.Hour {
			out = append(out, task)
		}
	}
	return out
}

func taskKey(id int64) string {
	return "task_" + strconv.FormatInt(id, 10)
}

func splitFullName(fullName string) (first, last string) {
	if len(fullName) <= firstNameCutoff {
		return fullName, ""
	}
	return fullName[:firstNameCutoff], fullName[firstNameCutoff:]
}
