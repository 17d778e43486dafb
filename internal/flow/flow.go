// Package flow defines the data model for the Designer Service's flow
// graph: bots, triggers, messages, conditions, api requests, database
// operations, and the connections between them.
//
// Every value in this package is an immutable snapshot for the
// lifetime of one traversal: the Connection Walker fetches objects by
// id and never mutates them.
package flow

// NodeKind is the tagged sum of flow node kinds a Connection may
// target. It replaces the source system's dynamic dispatch on an
// object-type enum with a typed discriminator.
type NodeKind string

const (
	KindTrigger            NodeKind = "trigger"
	KindMessage            NodeKind = "message"
	KindCondition          NodeKind = "condition"
	KindAPIRequest         NodeKind = "api_request"
	KindDatabaseOperation  NodeKind = "database_operation"
)

// Bot is the Designer Service's record of one hosted bot.
type Bot struct {
	ID        int64 `json:"id"`
	IsPrivate bool  `json:"is_private"`
}

// User is a Telegram-platform user as known to the Designer Service.
type User struct {
	TelegramID int64  `json:"telegram_id"`
	FullName   string `json:"full_name"`
	IsAllowed  bool   `json:"is_allowed"`
	IsBlocked  bool   `json:"is_blocked"`
}

// IsValid implements the §4.11 user validity rule:
// !is_blocked && (!bot.is_private || user.is_allowed).
func IsValid(bot Bot, user User) bool {
	if user.IsBlocked {
		return false
	}
	return !bot.IsPrivate || user.IsAllowed
}

// Connection is a directed edge between two flow nodes.
type Connection struct {
	ID               int64    `json:"id"`
	SourceObjectType NodeKind `json:"source_object_type"`
	SourceObjectID   int64    `json:"source_object_id"`
	TargetObjectType NodeKind `json:"target_object_type"`
	TargetObjectID   int64    `json:"target_object_id"`
}

// Command matches slash-prefixed input, e.g. "/start payload".
type Command struct {
	Command     string  `json:"command"`
	Payload     *string `json:"payload,omitempty"`
	Description *string `json:"description,omitempty"`
}

// TriggerMessage matches literal text, or any text when Text is nil.
type TriggerMessage struct {
	Text *string `json:"text,omitempty"`
}

// Trigger is the entry node kind: it carries either a Command match,
// a text match, or both, and fans out to SourceConnections.
type Trigger struct {
	ID                int64           `json:"id"`
	Command           *Command        `json:"command,omitempty"`
	Message           *TriggerMessage `json:"message,omitempty"`
	SourceConnections []Connection    `json:"source_connections"`
}

// MessageSettings controls how MessageHandler composes its reply.
type MessageSettings struct {
	ReplyToUserMessage bool `json:"reply_to_user_message"`
	DeleteUserMessage  bool `json:"delete_user_message"`
	SendAsNewMessage   bool `json:"send_as_new_message"`
}

// MediaFile is one image/document/video/audio attachment, ordered by
// Position within its list.
type MediaFile struct {
	Position int    `json:"position"`
	URL      string `json:"url,omitempty"`
	FromURL  string `json:"from_url,omitempty"`
}

// KeyboardType selects the rendering of a Keyboard.
type KeyboardType string

const (
	KeyboardDefault KeyboardType = "default"
	KeyboardInline  KeyboardType = "inline"
	KeyboardPayment KeyboardType = "payment"
)

// KeyboardButton is one button in a Keyboard, laid out by Row then
// Position within the row.
type KeyboardButton struct {
	ID                int64        `json:"id"`
	Row               int          `json:"row"`
	Position          int          `json:"position"`
	Text              string       `json:"text"`
	URL               *string      `json:"url,omitempty"`
	SourceConnections []Connection `json:"source_connections"`
}

// Keyboard is an optional reply/inline keyboard attached to a Message.
type Keyboard struct {
	Type    KeyboardType     `json:"type"`
	Buttons []KeyboardButton `json:"buttons"`
}

// Message is the outbound reply node kind.
type Message struct {
	ID                int64           `json:"id"`
	Text              string          `json:"text"`
	Settings          MessageSettings `json:"settings"`
	Images            []MediaFile     `json:"images"`
	Documents         []MediaFile     `json:"documents"`
	Keyboard          *Keyboard       `json:"keyboard,omitempty"`
	SourceConnections []Connection    `json:"source_connections"`
}

// ConditionOperator is one of the six comparison operators a
// ConditionPart may use.
type ConditionOperator string

const (
	OpEqual              ConditionOperator = "=="
	OpNotEqual           ConditionOperator = "!="
	OpGreaterThan        ConditionOperator = ">"
	OpGreaterThanOrEqual ConditionOperator = ">="
	OpLessThan           ConditionOperator = "<"
	OpLessThanOrEqual    ConditionOperator = "<="
)

// ConditionCombinator joins one ConditionPart's result to the next.
type ConditionCombinator string

const (
	CombinatorAnd ConditionCombinator = "&&"
	CombinatorOr  ConditionCombinator = "||"
)

// ConditionPart is one comparison in a Condition's left-to-right fold.
// NextPartOperator on part N selects how part N+1's result is folded
// into the accumulator carried from parts up to N; the last part's
// NextPartOperator is unused, since no part follows it.
type ConditionPart struct {
	FirstValue       string               `json:"first_value"`
	Operator         ConditionOperator    `json:"operator"`
	SecondValue      string               `json:"second_value"`
	NextPartOperator *ConditionCombinator `json:"next_part_operator,omitempty"`
}

// Condition is the branching node kind.
type Condition struct {
	ID                int64           `json:"id"`
	Parts             []ConditionPart `json:"parts"`
	SourceConnections []Connection    `json:"source_connections"`
}

// APIRequest is the outbound-HTTP node kind.
type APIRequest struct {
	ID                int64             `json:"id"`
	URL               string            `json:"url"`
	Method            string            `json:"method"`
	Headers           map[string]string `json:"headers,omitempty"`
	Body              any               `json:"body,omitempty"`
	SourceConnections []Connection      `json:"source_connections"`
}

// CreateOperation inserts one new database record with Data expanded
// through the variable resolver before being sent to the Designer
// Service.
type CreateOperation struct {
	Data map[string]any `json:"data"`
}

// UpdateOperation replaces or merges database records matching
// LookupFieldName == LookupFieldValue.
type UpdateOperation struct {
	Overwrite         bool           `json:"overwrite"`
	LookupFieldName   string         `json:"lookup_field_name"`
	LookupFieldValue  string         `json:"lookup_field_value"`
	NewData           map[string]any `json:"new_data"`
	CreateIfNotFound  bool           `json:"create_if_not_found"`
}

// DatabaseOperation is the database-mutation node kind. Exactly one of
// Create/Update is set; neither set means the node is a no-op.
type DatabaseOperation struct {
	ID                int64            `json:"id"`
	Create            *CreateOperation `json:"create_operation,omitempty"`
	Update            *UpdateOperation `json:"update_operation,omitempty"`
	SourceConnections []Connection     `json:"source_connections"`
}

// BackgroundTaskInterval is one of the five interval lengths (days)
// the Designer Service allows for a BackgroundTask.
type BackgroundTaskInterval int

const (
	Interval1Day   BackgroundTaskInterval = 1
	Interval3Days  BackgroundTaskInterval = 3
	Interval7Days  BackgroundTaskInterval = 7
	Interval14Days BackgroundTaskInterval = 14
	Interval28Days BackgroundTaskInterval = 28
)

// BackgroundTask is a scheduled synthetic-update source.
type BackgroundTask struct {
	ID                int64                  `json:"id"`
	Interval          BackgroundTaskInterval `json:"interval"`
	SourceConnections []Connection           `json:"source_connections"`
}

// Variable is a designer-authored named value; its rendered form is
// HTML, passed through the sanitizer before substitution.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DatabaseRecord is one free-form JSON row stored by the Designer
// Service on behalf of a bot's flow.
type DatabaseRecord struct {
	ID   int64          `json:"id"`
	Data map[string]any `json:"data"`
}
