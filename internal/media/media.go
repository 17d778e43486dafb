// Package media implements the Media Planner: given ordered lists of
// photo/document/video/audio attachments plus optional text and
// keyboard, it decides how to pack them into Telegram-legal send
// calls — singleton sends for short lists, send_media_group batches
// (capped at MaxMediaLength) for longer ones, and a trailing text
// message when nothing else could carry the caption.
package media

import "context"

// Type is one of the four media kinds, in the fixed declaration order
// the planner walks them.
type Type string

const (
	TypePhoto    Type = "photo"
	TypeDocument Type = "document"
	TypeVideo    Type = "video"
	TypeAudio    Type = "audio"
)

// Order is the fixed walk order for the four media types.
var Order = []Type{TypePhoto, TypeDocument, TypeVideo, TypeAudio}

// Platform batching limits (Telegram's send_media_group constraints).
const (
	MinMediaLength = 2
	MaxMediaLength = 10
)

// Item is one opaque prepared attachment (e.g. a platform SDK's
// InputMediaPhoto); the planner never inspects it, only counts and
// forwards it.
type Item any

// Keyboard is an opaque reply/inline keyboard markup, forwarded
// unexamined to whichever send call ends up carrying it.
type Keyboard any

// Batch groups prepared items by Type.
type Batch map[Type][]Item

// MessageRef identifies one message the Sender produced.
type MessageRef struct {
	ID int
}

// Sender performs the actual platform calls. Implementations wrap the
// platform SDK's send_photo/send_document/.../send_media_group/
// send_message family.
type Sender interface {
	SendSingle(ctx context.Context, chatID int64, replyTo *int, t Type, item Item, caption string, keyboard Keyboard) (MessageRef, error)
	SendMediaGroup(ctx context.Context, chatID int64, replyTo *int, t Type, items []Item) ([]MessageRef, error)
	SendMessage(ctx context.Context, chatID int64, replyTo *int, text string, keyboard Keyboard) (MessageRef, error)
}

// Send executes the batching policy and returns every message the
// Sender produced, in send order, so the caller can record them as
// last_bot_message_ids.
func Send(ctx context.Context, sender Sender, chatID int64, replyTo *int, batch Batch, text string, keyboard Keyboard) ([]MessageRef, error) {
	if !hasAnyMedia(batch) {
		if text == "" && keyboard == nil {
			return nil, nil
		}
		msg, err := sender.SendMessage(ctx, chatID, replyTo, text, keyboard)
		if err != nil {
			return nil, err
		}
		return []MessageRef{msg}, nil
	}

	var sent []MessageRef
	textAttached := false

	for i, t := range Order {
		files := batch[t]
		if len(files) == 0 {
			continue
		}

		isLastNonEmpty := true
		for _, other := range Order[i+1:] {
			if len(batch[other]) > 0 {
				isLastNonEmpty = false
				break
			}
		}

		if len(files) < MinMediaLength {
			caption := ""
			var kb Keyboard
			if text != "" && isLastNonEmpty && !textAttached {
				caption = text
				kb = keyboard
				textAttached = true
			}
			msg, err := sender.SendSingle(ctx, chatID, replyTo, t, files[0], caption, kb)
			if err != nil {
				return sent, err
			}
			sent = append(sent, msg)
			continue
		}

		for start := 0; start < len(files); start += MaxMediaLength {
			end := start + MaxMediaLength
			if end > len(files) {
				end = len(files)
			}
			msgs, err := sender.SendMediaGroup(ctx, chatID, replyTo, t, files[start:end])
			if err != nil {
				return sent, err
			}
			sent = append(sent, msgs...)
		}
	}

	if text != "" && !textAttached {
		msg, err := sender.SendMessage(ctx, chatID, replyTo, text, keyboard)
		if err != nil {
			return sent, err
		}
		sent = append(sent, msg)
	}

	return sent, nil
}

func hasAnyMedia(batch Batch) bool {
	for _, t := range Order {
		if len(batch[t]) > 0 {
			return true
		}
	}
	return false
}
