package handlers

import (
	"context"
	"net/url"
	"sort"
	"strconv"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/htmlsanitize"
	"github.com/EXG1O/telegram-bots-hub/internal/media"
	"github.com/EXG1O/telegram-bots-hub/internal/scratch"
	"github.com/EXG1O/telegram-bots-hub/internal/variables"
	"golang.org/x/sync/errgroup"
)

// ButtonSpec is one platform-neutral keyboard button.
type ButtonSpec struct {
	Text         string
	URL          *string
	CallbackData string
}

// KeyboardSpec is a platform-neutral rendering of a flow.Keyboard,
// laid out into rows; the platform layer turns it into the concrete
// reply/inline markup.
type KeyboardSpec struct {
	Type flow.KeyboardType
	Rows [][]ButtonSpec
}

// buildKeyboard lays flow.Keyboard's flat button list into rows
// ordered by (Row, Position), matching the Designer Service's
// authoring order.
func buildKeyboard(kb *flow.Keyboard) *KeyboardSpec {
	if kb == nil {
		return nil
	}
	buttons := append([]flow.KeyboardButton(nil), kb.Buttons...)
	sort.Slice(buttons, func(i, j int) bool {
		if buttons[i].Row != buttons[j].Row {
			return buttons[i].Row < buttons[j].Row
		}
		return buttons[i].Position < buttons[j].Position
	})

	var rows [][]ButtonSpec
	for _, b := range buttons {
		for len(rows) <= b.Row {
			rows = append(rows, nil)
		}
		spec := ButtonSpec{Text: b.Text, URL: b.URL}
		if b.URL == nil {
			spec.CallbackData = strconv.FormatInt(b.ID, 10)
		}
		rows[b.Row] = append(rows[b.Row], spec)
	}

	return &KeyboardSpec{Type: kb.Type, Rows: rows}
}

// prepareMedia resolves each file's URL (preferring URL over FromURL)
// against baseURL, in Position order, skipping entries with neither
// set.
func prepareMedia(files []flow.MediaFile, baseURL string) []media.Item {
	ordered := append([]flow.MediaFile(nil), files...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	var items []media.Item
	for _, f := range ordered {
		raw := f.URL
		if raw == "" {
			raw = f.FromURL
		}
		if raw == "" {
			continue
		}
		items = append(items, resolveURL(baseURL, raw))
	}
	return items
}

func resolveURL(baseURL, raw string) string {
	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		unescaped = raw
	}
	parsed, err := url.Parse(unescaped)
	if err != nil || parsed.IsAbs() || baseURL == "" {
		return unescaped
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return unescaped
	}
	return base.ResolveReference(parsed).String()
}

// HandleMessage implements §4.4.2: composes photo/document batches,
// expanded+sanitized text, and a built keyboard concurrently, cleans
// up the previous reply when send_as_new_message is false, dispatches
// through the Media Planner, records the new message ids, and
// optionally deletes the triggering user message.
func HandleMessage(ctx context.Context, deps Deps, msg flow.Message, ec EventContext, storage *scratch.EventStorage, v *variables.Variables) ([]flow.Connection, error) {
	if ec.ChatID == nil {
		return nil, nil
	}

	var replyTo *int
	if msg.Settings.ReplyToUserMessage && ec.MessageID != nil {
		id := int(*ec.MessageID)
		replyTo = &id
	}

	var photos, documents []media.Item
	var text string
	var keyboard media.Keyboard

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		photos = prepareMedia(msg.Images, deps.MediaBaseURL)
		return nil
	})
	g.Go(func() error {
		documents = prepareMedia(msg.Documents, deps.MediaBaseURL)
		return nil
	})
	g.Go(func() error {
		if msg.Text == "" {
			return nil
		}
		expanded, err := variables.ExpandText(gctx, htmlsanitize.Sanitize(msg.Text), v)
		if err != nil {
			return err
		}
		text = expanded
		return nil
	})
	g.Go(func() error {
		if spec := buildKeyboard(msg.Keyboard); spec != nil {
			keyboard = spec
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !msg.Settings.SendAsNewMessage && storage.Chat != nil {
		if err := deleteLastBotMessages(ctx, deps, *ec.ChatID, storage.Chat); err != nil {
			return nil, err
		}
	}

	batch := media.Batch{
		media.TypePhoto:    photos,
		media.TypeDocument: documents,
	}
	sent, err := media.Send(ctx, deps.Platform, *ec.ChatID, replyTo, batch, text, keyboard)
	if err != nil {
		return nil, err
	}

	if storage.Chat != nil {
		ids := make([]int, len(sent))
		for i, ref := range sent {
			ids[i] = ref.ID
		}
		if err := storage.Chat.Set(ctx, "last_bot_message_ids", ids); err != nil {
			return nil, err
		}
	}

	if msg.Settings.DeleteUserMessage && !ec.UserIsBot && ec.MessageID != nil {
		_ = deps.Platform.DeleteMessage(ctx, *ec.ChatID, int(*ec.MessageID))
	}

	return msg.SourceConnections, nil
}

// deleteLastBotMessages pops the previous reply's message ids from
// chat scratch and deletes them best-effort; the platform call is
// allowed to fail silently since the messages may already be gone.
func deleteLastBotMessages(ctx context.Context, deps Deps, chatID int64, chat *scratch.Handle) error {
	raw, err := chat.Pop(ctx, "last_bot_message_ids")
	if err != nil {
		return err
	}
	ids, ok := toIntSlice(raw)
	if !ok || len(ids) == 0 {
		return nil
	}
	_ = deps.Platform.DeleteMessages(ctx, chatID, ids)
	return nil
}

func toIntSlice(raw any) ([]int, bool) {
	switch v := raw.(type) {
	case []int:
		return v, true
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case int:
				out = append(out, n)
			case int64:
				out = append(out, int(n))
			case float64:
				out = append(out, int(n))
			}
		}
		return out, true
	default:
		return nil, false
	}
}
