// Package chat holds the transport-neutral types exchanged between the bot
// and a chat transport.
package chat

import (
	"context"
	"regexp"
)

// UpdateKind classifies an inbound event.
type UpdateKind int

// Update kinds.
const (
	UpdateText UpdateKind = iota + 1
	UpdateCommand
	UpdateCallback
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateText:
		return "text"
	case UpdateCommand:
		return "command"
	case UpdateCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Update is one inbound event from a user.
type Update struct {
	Kind      UpdateKind
	UserID    int64
	ChatID    int64
	MessageID int

	// Text is the raw message text (UpdateText, UpdateCommand).
	Text string

	// Command is the command name without slash or bot suffix, Args the raw
	// text after it (UpdateCommand).
	Command string
	Args    string

	// CallbackID and Action are set for UpdateCallback. Action is nil when
	// the payload could not be parsed.
	CallbackID string
	Action     *Action
}

// Button is one menu entry.
type Button struct {
	Label  string
	Action Action
}

// Message is an outbound message. Code, when set, is rendered as a code
// block after Text.
type Message struct {
	Text     string
	Code     string
	Keyboard [][]Button
}

// Row is a convenience for building single-row keyboards.
func Row(buttons ...Button) []Button { return buttons }

// Sender delivers outbound messages to the chat transport.
type Sender interface {
	// Send posts a new message and returns its message id.
	Send(ctx context.Context, chatID int64, msg Message) (int, error)
	// Edit replaces the text and menu of an existing message.
	Edit(ctx context.Context, chatID int64, messageID int, msg Message) error
	// AnswerCallback acknowledges a menu selection.
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

var commandRe = regexp.MustCompile(`^/[A-Za-z0-9_]+(@[A-Za-z0-9_]+)?(\s|$)`)

// IsCommand reports whether text is a slash-style command.
func IsCommand(text string) bool {
	return commandRe.MatchString(text)
}
