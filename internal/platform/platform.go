// Package platform adapts the Telegram Bot API SDK to the
// media.Sender and handlers.Platform interfaces the node handlers
// depend on, so they never reference the concrete SDK types.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/EXG1O/telegram-bots-hub/internal/handlers"
	"github.com/EXG1O/telegram-bots-hub/internal/media"
)

// rateLimitRetryDelay is the wait before the single retry on a 429 when
// Telegram's error carries no retry_after value.
const rateLimitRetryDelay = time.Second

// Recorder is the slice of the metrics registry the platform adapter
// reports delivered messages to. Nil is a valid Recorder: an adapter
// built without one simply records nothing.
type Recorder interface {
	MessageSent(botID int64)
}

// Telegram wraps one bot's *tgbotapi.BotAPI, exposing only the slice
// of behavior node handlers need.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	metrics Recorder
}

// New builds a Telegram adapter around an already-constructed bot
// client (the Bot Lifecycle owns construction/token validation).
// metrics may be nil.
func New(bot *tgbotapi.BotAPI, metrics Recorder) *Telegram {
	return &Telegram{bot: bot, metrics: metrics}
}

var _ handlers.Platform = (*Telegram)(nil)

// SendSingle implements media.Sender for one photo/document/video/
// audio item plus optional caption and keyboard.
func (t *Telegram) SendSingle(ctx context.Context, chatID int64, replyTo *int, kind media.Type, item media.Item, caption string, keyboard media.Keyboard) (media.MessageRef, error) {
	url, ok := item.(string)
	if !ok {
		return media.MessageRef{}, fmt.Errorf("platform: unexpected media item type %T", item)
	}

	var chattable tgbotapi.Chattable
	file := tgbotapi.FileURL(url)

	switch kind {
	case media.TypePhoto:
		msg := tgbotapi.NewPhoto(chatID, file)
		msg.Caption = caption
		applyReplyAndKeyboard(&msg.BaseChat, replyTo, keyboard)
		chattable = msg
	case media.TypeDocument:
		msg := tgbotapi.NewDocument(chatID, file)
		msg.Caption = caption
		applyReplyAndKeyboard(&msg.BaseChat, replyTo, keyboard)
		chattable = msg
	case media.TypeVideo:
		msg := tgbotapi.NewVideo(chatID, file)
		msg.Caption = caption
		applyReplyAndKeyboard(&msg.BaseChat, replyTo, keyboard)
		chattable = msg
	case media.TypeAudio:
		msg := tgbotapi.NewAudio(chatID, file)
		msg.Caption = caption
		applyReplyAndKeyboard(&msg.BaseChat, replyTo, keyboard)
		chattable = msg
	default:
		return media.MessageRef{}, fmt.Errorf("platform: unknown media type %q", kind)
	}

	sent, err := t.send(chattable)
	if err != nil {
		return media.MessageRef{}, err
	}
	return media.MessageRef{ID: sent.MessageID}, nil
}

// SendMediaGroup implements media.Sender for a batch of ≤10 items of
// the same type. Telegram's media group API does not accept a
// keyboard, matching the Media Planner's contract that only a
// singleton or a trailing text message may carry one.
func (t *Telegram) SendMediaGroup(ctx context.Context, chatID int64, replyTo *int, kind media.Type, items []media.Item) ([]media.MessageRef, error) {
	group := make([]any, 0, len(items))
	for _, it := range items {
		url, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("platform: unexpected media item type %T", it)
		}
		switch kind {
		case media.TypePhoto:
			group = append(group, tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(url)))
		case media.TypeDocument:
			group = append(group, tgbotapi.NewInputMediaDocument(tgbotapi.FileURL(url)))
		case media.TypeVideo:
			group = append(group, tgbotapi.NewInputMediaVideo(tgbotapi.FileURL(url)))
		case media.TypeAudio:
			group = append(group, tgbotapi.NewInputMediaAudio(tgbotapi.FileURL(url)))
		default:
			return nil, fmt.Errorf("platform: unknown media type %q", kind)
		}
	}

	cfg := tgbotapi.NewMediaGroup(chatID, group)
	if replyTo != nil {
		cfg.ReplyToMessageID = *replyTo
	}

	msgs, err := t.bot.SendMediaGroup(cfg)
	if err != nil {
		return nil, fmt.Errorf("platform: send media group: %w", err)
	}
	refs := make([]media.MessageRef, len(msgs))
	for i, m := range msgs {
		refs[i] = media.MessageRef{ID: m.MessageID}
	}
	if t.metrics != nil {
		for range msgs {
			t.metrics.MessageSent(t.botID())
		}
	}
	return refs, nil
}

// SendMessage implements media.Sender for a plain (or keyboard-
// carrying) text message.
func (t *Telegram) SendMessage(ctx context.Context, chatID int64, replyTo *int, text string, keyboard media.Keyboard) (media.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if replyTo != nil {
		msg.ReplyToMessageID = *replyTo
	}
	if markup := toReplyMarkup(keyboard); markup != nil {
		msg.ReplyMarkup = markup
	}

	sent, err := t.send(msg)
	if err != nil {
		return media.MessageRef{}, err
	}
	return media.MessageRef{ID: sent.MessageID}, nil
}

// DeleteMessage removes one message, best-effort.
func (t *Telegram) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

// DeleteMessages removes a batch of messages; one failure does not
// stop the rest.
func (t *Telegram) DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error {
	var firstErr error
	for _, id := range messageIDs {
		if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, id)); err != nil {
			slog.Warn("platform: delete message failed", "chat_id", chatID, "message_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// send dispatches chattable and, when Telegram reports a rate limit,
// retries exactly once after the retry_after delay Telegram advised
// (rateLimitRetryDelay when it advised none).
func (t *Telegram) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	sent, err := t.bot.Send(c)
	if err != nil {
		if !isRateLimited(err) {
			return tgbotapi.Message{}, err
		}
		delay := rateLimitRetryDelay
		if apiErr, ok := err.(*tgbotapi.Error); ok && apiErr.RetryAfter > 0 {
			delay = time.Duration(apiErr.RetryAfter) * time.Second
		}
		time.Sleep(delay)
		if sent, err = t.bot.Send(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	if t.metrics != nil {
		t.metrics.MessageSent(t.botID())
	}
	return sent, nil
}

func (t *Telegram) botID() int64 {
	return t.bot.Self.ID
}

func isRateLimited(err error) bool {
	var apiErr *tgbotapi.Error
	if e, ok := err.(*tgbotapi.Error); ok {
		apiErr = e
	}
	return apiErr != nil && apiErr.Code == 429
}

func applyReplyAndKeyboard(chat *tgbotapi.BaseChat, replyTo *int, keyboard media.Keyboard) {
	if replyTo != nil {
		chat.ReplyToMessageID = *replyTo
	}
	if markup := toReplyMarkup(keyboard); markup != nil {
		chat.ReplyMarkup = markup
	}
}

// toReplyMarkup renders a *handlers.KeyboardSpec into the concrete SDK
// markup type. Payment-type keyboards render as inline keyboards: full
// invoice flows are out of scope, but their buttons still need to
// dispatch callback connections like any other inline button.
func toReplyMarkup(keyboard media.Keyboard) any {
	spec, ok := keyboard.(*handlers.KeyboardSpec)
	if !ok || spec == nil {
		return nil
	}

	if spec.Type == "default" {
		rows := make([][]tgbotapi.KeyboardButton, len(spec.Rows))
		for i, row := range spec.Rows {
			btns := make([]tgbotapi.KeyboardButton, len(row))
			for j, b := range row {
				btns[j] = tgbotapi.NewKeyboardButton(b.Text)
			}
			rows[i] = btns
		}
		markup := tgbotapi.NewReplyKeyboard(rows...)
		return markup
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, len(spec.Rows))
	for i, row := range spec.Rows {
		btns := make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, b := range row {
			if b.URL != nil {
				btns[j] = tgbotapi.NewInlineKeyboardButtonURL(b.Text, *b.URL)
			} else {
				btns[j] = tgbotapi.NewInlineKeyboardButtonData(b.Text, b.CallbackData)
			}
		}
		rows[i] = btns
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return markup
}
