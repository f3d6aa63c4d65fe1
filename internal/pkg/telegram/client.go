// Package telegram adapts the Telegram Bot API to the messenger types.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"

	"github.com/aislide/aislide-bot/internal/pkg/messenger"
)

// EventHandler receives every converted inbound event.
type EventHandler func(ctx context.Context, ev messenger.Event)

// Client implements messenger.Sender, the membership oracle and file downloads.
type Client struct {
	api      *bot.Bot
	handler  atomic.Pointer[EventHandler]
	download *http.Client
}

// Config for the Telegram client
type Config struct {
	Token         string
	WebhookSecret string
}

// New creates the Bot API client. Updates are dropped until OnEvent is called.
func New(cfg Config) (*Client, error) {
	c := &Client{download: &http.Client{Timeout: 30 * time.Second}}

	opts := []bot.Option{
		bot.WithDefaultHandler(c.dispatch),
	}
	if cfg.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
	}

	api, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	c.api = api
	return c, nil
}

// OnEvent installs the inbound handler.
func (c *Client) OnEvent(h EventHandler) {
	c.handler.Store(&h)
}

func (c *Client) dispatch(ctx context.Context, _ *bot.Bot, update *models.Update) {
	h := c.handler.Load()
	if h == nil {
		return
	}
	ev, ok := ToEvent(update)
	if !ok {
		return
	}
	(*h)(ctx, ev)
}

// StartPolling runs long polling until ctx is cancelled.
func (c *Client) StartPolling(ctx context.Context) {
	if _, err := c.api.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		log.Warn().Err(err).Msg("Failed to delete webhook before polling")
	}
	log.Info().Msg("Telegram long polling started")
	c.api.Start(ctx)
}

// StartWebhook registers url with Telegram and processes pushed updates until ctx is cancelled.
func (c *Client) StartWebhook(ctx context.Context, url, secret string) error {
	if _, err := c.api.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:         url,
		SecretToken: secret,
	}); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	log.Info().Str("url", url).Msg("Telegram webhook registered")
	c.api.StartWebhook(ctx)
	return nil
}

// WebhookHandler accepts update pushes from Telegram.
func (c *Client) WebhookHandler() http.HandlerFunc {
	return c.api.WebhookHandler()
}

func (c *Client) Send(ctx context.Context, msg messenger.Message) (int, error) {
	params := &bot.SendMessageParams{
		ChatID:    msg.ChatID,
		Text:      msg.Text,
		ParseMode: models.ParseModeHTML,
	}
	if markup := toMarkup(msg.Keyboard); markup != nil {
		params.ReplyMarkup = markup
	}
	sent, err := c.api.SendMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return sent.ID, nil
}

func (c *Client) SendFile(ctx context.Context, chatID int64, kind messenger.FileKind, fileID, caption string) error {
	file := &models.InputFileString{Data: fileID}
	var err error
	switch kind {
	case messenger.FilePhoto:
		_, err = c.api.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:    chatID,
			Photo:     file,
			Caption:   caption,
			ParseMode: models.ParseModeHTML,
		})
	default:
		_, err = c.api.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:    chatID,
			Document:  file,
			Caption:   caption,
			ParseMode: models.ParseModeHTML,
		})
	}
	return err
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	return err
}

func (c *Client) Delete(ctx context.Context, chatID int64, messageID int) error {
	_, err := c.api.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	return err
}

// IsMember asks Telegram whether userID belongs to the channel. chatRef is a
// numeric chat id or an @username.
func (c *Client) IsMember(ctx context.Context, chatRef string, userID int64) (bool, error) {
	member, err := c.api.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: chatRef,
		UserID: userID,
	})
	if err != nil {
		return false, err
	}
	return isMember(member), nil
}

func isMember(m *models.ChatMember) bool {
	if m == nil {
		return false
	}
	switch m.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true
	case models.ChatMemberTypeRestricted:
		return m.Restricted != nil && m.Restricted.IsMember
	default:
		return false
	}
}

// Download opens a Telegram file by id. The caller closes the body.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	file, err := c.api.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api.FileDownloadLink(file), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return resp.Body, file.FilePath, nil
}

func toMarkup(kb *messenger.Keyboard) models.ReplyMarkup {
	if kb == nil {
		return nil
	}
	if kb.Remove {
		return &models.ReplyKeyboardRemove{RemoveKeyboard: true}
	}
	if kb.Inline {
		rows := make([][]models.InlineKeyboardButton, 0, len(kb.Rows))
		for _, row := range kb.Rows {
			out := make([]models.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				btn := models.InlineKeyboardButton{Text: b.Text}
				switch {
				case b.WebAppURL != "":
					btn.WebApp = &models.WebAppInfo{URL: b.WebAppURL}
				case b.URL != "":
					btn.URL = b.URL
				default:
					btn.CallbackData = b.Data
				}
				out = append(out, btn)
			}
			rows = append(rows, out)
		}
		return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
	}

	rows := make([][]models.KeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		out := make([]models.KeyboardButton, 0, len(row))
		for _, b := range row {
			btn := models.KeyboardButton{Text: b.Text}
			if b.WebAppURL != "" {
				btn.WebApp = &models.WebAppInfo{URL: b.WebAppURL}
			}
			out = append(out, btn)
		}
		rows = append(rows, out)
	}
	return &models.ReplyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true}
}

// ToEvent converts an update. Updates without a user (channel posts, polls) are skipped.
func ToEvent(update *models.Update) (messenger.Event, bool) {
	switch {
	case update == nil:
		return messenger.Event{}, false
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		ev := messenger.Event{
			Kind:         messenger.KindCallback,
			UserID:       cq.From.ID,
			ChatID:       cq.From.ID,
			Username:     cq.From.Username,
			FullName:     fullName(&cq.From),
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}
		if m := cq.Message.Message; m != nil {
			ev.ChatID = m.Chat.ID
			ev.MessageID = m.ID
		} else if im := cq.Message.InaccessibleMessage; im != nil {
			ev.ChatID = im.Chat.ID
			ev.MessageID = im.MessageID
		}
		return ev, true
	case update.Message != nil && update.Message.From != nil:
		return messageEvent(update.Message), true
	default:
		return messenger.Event{}, false
	}
}

func messageEvent(m *models.Message) messenger.Event {
	ev := messenger.Event{
		Kind:      messenger.KindOther,
		UserID:    m.From.ID,
		ChatID:    m.Chat.ID,
		MessageID: m.ID,
		Username:  m.From.Username,
		FullName:  fullName(m.From),
	}

	switch {
	case m.WebAppData != nil:
		ev.Kind = messenger.KindWebApp
		ev.WebAppData = m.WebAppData.Data
	case len(m.Photo) > 0:
		ev.Kind = messenger.KindPhoto
		ev.FileID = m.Photo[len(m.Photo)-1].FileID
		ev.Text = m.Caption
	case m.Document != nil:
		ev.Kind = messenger.KindDocument
		ev.FileID = m.Document.FileID
		ev.FileName = m.Document.FileName
		ev.MimeType = m.Document.MimeType
		ev.Text = m.Caption
	case strings.HasPrefix(m.Text, "/"):
		ev.Kind = messenger.KindCommand
		ev.Text = m.Text
		ev.Command = parseCommand(m.Text)
	case m.Text != "":
		ev.Kind = messenger.KindText
		ev.Text = m.Text
	}
	return ev
}

// parseCommand turns "/start@aislide_bot payload" into "start".
func parseCommand(text string) string {
	cmd := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

func fullName(u *models.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
