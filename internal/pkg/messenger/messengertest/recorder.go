// Package messengertest provides an in-memory messenger.Sender for tests.
package messengertest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aislide/aislide-bot/internal/pkg/messenger"
)

// SentFile records a SendFile call.
type SentFile struct {
	ChatID  int64
	Kind    messenger.FileKind
	FileID  string
	Caption string
}

// Recorder captures everything sent through it.
type Recorder struct {
	mu        sync.Mutex
	nextID    int
	Messages  []messenger.Message
	Files     []SentFile
	Callbacks []string
	Deleted   []int

	// FailChats makes Send fail for the listed chat ids.
	FailChats map[int64]bool
	// FailPhotos makes SendFile fail for photos, so callers can fall back to documents.
	FailPhotos bool
}

func New() *Recorder {
	return &Recorder{FailChats: map[int64]bool{}}
}

var ErrSend = errors.New("send failed")

func (r *Recorder) Send(_ context.Context, msg messenger.Message) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailChats[msg.ChatID] {
		return 0, ErrSend
	}
	r.nextID++
	r.Messages = append(r.Messages, msg)
	return r.nextID, nil
}

func (r *Recorder) SendFile(_ context.Context, chatID int64, kind messenger.FileKind, fileID, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailChats[chatID] || (r.FailPhotos && kind == messenger.FilePhoto) {
		return ErrSend
	}
	r.Files = append(r.Files, SentFile{ChatID: chatID, Kind: kind, FileID: fileID, Caption: caption})
	return nil
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Callbacks = append(r.Callbacks, callbackID+":"+text)
	return nil
}

func (r *Recorder) Delete(_ context.Context, _ int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deleted = append(r.Deleted, messageID)
	return nil
}

// Last returns the last message sent to chatID.
func (r *Recorder) Last(chatID int64) (messenger.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].ChatID == chatID {
			return r.Messages[i], true
		}
	}
	return messenger.Message{}, false
}

// To returns every message sent to chatID.
func (r *Recorder) To(chatID int64) []messenger.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []messenger.Message
	for _, m := range r.Messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// Contains reports whether any message to chatID contains substr.
func (r *Recorder) Contains(chatID int64, substr string) bool {
	for _, m := range r.To(chatID) {
		if strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

// Reset clears recorded traffic.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = nil
	r.Files = nil
	r.Callbacks = nil
	r.Deleted = nil
}
