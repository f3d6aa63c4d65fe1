package telegram

import (
	"testing"

	"github.com/go-telegram/bot/models"

	"github.com/aislide/aislide-bot/internal/pkg/messenger"
)

func TestToEventMessages(t *testing.T) {
	from := &models.User{ID: 42, FirstName: "Ali", LastName: "Valiyev", Username: "ali"}
	chat := models.Chat{ID: 42}

	tests := []struct {
		name  string
		msg   *models.Message
		kind  messenger.EventKind
		check func(t *testing.T, ev messenger.Event)
	}{
		{
			name: "text",
			msg:  &models.Message{ID: 1, From: from, Chat: chat, Text: "💰 Balansim"},
			kind: messenger.KindText,
			check: func(t *testing.T, ev messenger.Event) {
				if ev.Text != "💰 Balansim" {
					t.Fatalf("unexpected text %q", ev.Text)
				}
			},
		},
		{
			name: "command with mention",
			msg:  &models.Message{ID: 2, From: from, Chat: chat, Text: "/Start@aislide_bot ref"},
			kind: messenger.KindCommand,
			check: func(t *testing.T, ev messenger.Event) {
				if ev.Command != "start" {
					t.Fatalf("expected start, got %q", ev.Command)
				}
			},
		},
		{
			name: "photo takes largest size",
			msg: &models.Message{ID: 3, From: from, Chat: chat, Caption: "chek", Photo: []models.PhotoSize{
				{FileID: "small"}, {FileID: "large"},
			}},
			kind: messenger.KindPhoto,
			check: func(t *testing.T, ev messenger.Event) {
				if ev.FileID != "large" || ev.Text != "chek" {
					t.Fatalf("unexpected photo event %+v", ev)
				}
			},
		},
		{
			name: "document",
			msg:  &models.Message{ID: 4, From: from, Chat: chat, Document: &models.Document{FileID: "doc", FileName: "chek.pdf", MimeType: "application/pdf"}},
			kind: messenger.KindDocument,
			check: func(t *testing.T, ev messenger.Event) {
				if ev.FileID != "doc" || ev.FileName != "chek.pdf" {
					t.Fatalf("unexpected document event %+v", ev)
				}
			},
		},
		{
			name: "web app data",
			msg:  &models.Message{ID: 5, From: from, Chat: chat, WebAppData: &models.WebAppData{Data: `{"topic":"x"}`}},
			kind: messenger.KindWebApp,
			check: func(t *testing.T, ev messenger.Event) {
				if ev.WebAppData != `{"topic":"x"}` {
					t.Fatalf("unexpected payload %q", ev.WebAppData)
				}
			},
		},
		{
			name: "sticker",
			msg:  &models.Message{ID: 6, From: from, Chat: chat},
			kind: messenger.KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ToEvent(&models.Update{Message: tt.msg})
			if !ok {
				t.Fatal("expected event")
			}
			if ev.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, ev.Kind)
			}
			if ev.UserID != 42 || ev.FullName != "Ali Valiyev" {
				t.Fatalf("unexpected user fields %+v", ev)
			}
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestToEventCallback(t *testing.T) {
	ev, ok := ToEvent(&models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   "cb1",
		From: models.User{ID: 7},
		Data: "approve_trans:15",
		Message: models.MaybeInaccessibleMessage{
			Message: &models.Message{ID: 99, Chat: models.Chat{ID: 7}},
		},
	}})
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Kind != messenger.KindCallback || ev.CallbackData != "approve_trans:15" || ev.MessageID != 99 {
		t.Fatalf("unexpected callback event %+v", ev)
	}
}

func TestToEventSkipsUpdatesWithoutUser(t *testing.T) {
	if _, ok := ToEvent(&models.Update{ChannelPost: &models.Message{Text: "post"}}); ok {
		t.Fatal("channel posts must be skipped")
	}
	if _, ok := ToEvent(nil); ok {
		t.Fatal("nil update must be skipped")
	}
}

func TestIsMember(t *testing.T) {
	tests := []struct {
		member *models.ChatMember
		want   bool
	}{
		{&models.ChatMember{Type: models.ChatMemberTypeMember}, true},
		{&models.ChatMember{Type: models.ChatMemberTypeOwner}, true},
		{&models.ChatMember{Type: models.ChatMemberTypeAdministrator}, true},
		{&models.ChatMember{Type: models.ChatMemberTypeLeft}, false},
		{&models.ChatMember{Type: models.ChatMemberTypeBanned}, false},
		{&models.ChatMember{Type: models.ChatMemberTypeRestricted, Restricted: &models.ChatMemberRestricted{IsMember: true}}, true},
		{&models.ChatMember{Type: models.ChatMemberTypeRestricted, Restricted: &models.ChatMemberRestricted{}}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := isMember(tt.member); got != tt.want {
			t.Errorf("isMember(%+v) = %v, want %v", tt.member, got, tt.want)
		}
	}
}

func TestToMarkup(t *testing.T) {
	inline := toMarkup(messenger.Inline(messenger.Row(
		messenger.Button{Text: "join", URL: "https://t.me/x"},
		messenger.Button{Text: "check", Data: "check_subs"},
	)))
	kb, ok := inline.(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline markup, got %T", inline)
	}
	if kb.InlineKeyboard[0][0].URL != "https://t.me/x" || kb.InlineKeyboard[0][1].CallbackData != "check_subs" {
		t.Fatalf("unexpected inline keyboard %+v", kb.InlineKeyboard)
	}

	reply := toMarkup(messenger.Reply(messenger.Row(messenger.Button{Text: "form", WebAppURL: "https://app"})))
	rk, ok := reply.(*models.ReplyKeyboardMarkup)
	if !ok || rk.Keyboard[0][0].WebApp == nil || rk.Keyboard[0][0].WebApp.URL != "https://app" {
		t.Fatalf("unexpected reply markup %T %+v", reply, reply)
	}

	if toMarkup(nil) != nil {
		t.Fatal("nil keyboard must produce no markup")
	}
}
