// Package messenger holds transport-neutral chat types so domain code never
// imports the Telegram client directly.
package messenger

import (
	"context"
	"strings"
)

type EventKind string

const (
	KindText     EventKind = "text"
	KindCommand  EventKind = "command"
	KindCallback EventKind = "callback"
	KindPhoto    EventKind = "photo"
	KindDocument EventKind = "document"
	KindWebApp   EventKind = "web_app"
	KindOther    EventKind = "other"
)

// Event is one inbound user action.
type Event struct {
	Kind      EventKind
	UserID    int64
	ChatID    int64
	MessageID int
	Username  string
	FullName  string

	// Text carries the message text, or the caption for attachments.
	Text string

	// Command is set for KindCommand, without the leading slash and bot mention.
	Command string

	CallbackID   string
	CallbackData string

	// FileID is the largest photo size or the document id.
	FileID   string
	FileName string
	MimeType string

	WebAppData string
}

// IsAttachment reports whether the event carries a file.
func (e Event) IsAttachment() bool {
	return e.Kind == KindPhoto || e.Kind == KindDocument
}

// TrimmedText returns the message text without surrounding whitespace.
func (e Event) TrimmedText() string {
	return strings.TrimSpace(e.Text)
}

// Button is a keyboard button. Exactly one of Data, URL and WebAppURL is used
// for inline keyboards; reply keyboards use Text and optionally WebAppURL.
type Button struct {
	Text      string
	Data      string
	URL       string
	WebAppURL string
}

// Keyboard describes reply markup.
type Keyboard struct {
	Rows   [][]Button
	Inline bool
	Remove bool
}

// Row builds a keyboard row.
func Row(buttons ...Button) []Button { return buttons }

// Reply builds a persistent reply keyboard.
func Reply(rows ...[]Button) *Keyboard { return &Keyboard{Rows: rows} }

// Inline builds an inline keyboard.
func Inline(rows ...[]Button) *Keyboard { return &Keyboard{Rows: rows, Inline: true} }

// RemoveKeyboard hides any reply keyboard.
func RemoveKeyboard() *Keyboard { return &Keyboard{Remove: true} }

// Message is one outbound text message. Text is HTML.
type Message struct {
	ChatID   int64
	Text     string
	Keyboard *Keyboard
}

type FileKind string

const (
	FilePhoto    FileKind = "photo"
	FileDocument FileKind = "document"
)

// Sender delivers messages to users.
type Sender interface {
	Send(ctx context.Context, msg Message) (messageID int, err error)
	SendFile(ctx context.Context, chatID int64, kind FileKind, fileID, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}
