package subscription

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/aislide/aislide-bot/internal/pkg/messenger"
	"github.com/aislide/aislide-bot/internal/pkg/metrics"
)

// CallbackRecheck is the data of the "check again" button.
const CallbackRecheck = "check_subs"

const defaultCheckTimeout = 3 * time.Second

// Oracle answers whether a user belongs to a channel.
type Oracle interface {
	IsMember(ctx context.Context, chatRef string, userID int64) (bool, error)
}

// ChannelSource lists the channels currently required.
type ChannelSource interface {
	ListActive(ctx context.Context) ([]Channel, error)
}

type GateConfig struct {
	AdminIDs         []int64
	AllowedCommands  []string
	AllowedCallbacks []string
	CheckTimeout     time.Duration
}

// Gate blocks every event until the user has joined all required channels.
// Any oracle failure counts as not subscribed.
type Gate struct {
	channels ChannelSource
	oracle   Oracle
	admins   map[int64]struct{}
	commands []string
	prefixes []string
	timeout  time.Duration
}

func NewGate(channels ChannelSource, oracle Oracle, cfg GateConfig) *Gate {
	g := &Gate{
		channels: channels,
		oracle:   oracle,
		admins:   make(map[int64]struct{}, len(cfg.AdminIDs)),
		commands: cfg.AllowedCommands,
		prefixes: cfg.AllowedCallbacks,
		timeout:  cfg.CheckTimeout,
	}
	if g.timeout <= 0 {
		g.timeout = defaultCheckTimeout
	}
	for _, id := range cfg.AdminIDs {
		g.admins[id] = struct{}{}
	}
	return g
}

// Check decides whether ev may reach the conversation controller.
func (g *Gate) Check(ctx context.Context, ev messenger.Event) Decision {
	if reason, ok := g.bypass(ev); ok {
		metrics.RecordGate("bypass")
		return Decision{Allowed: true, Reason: reason}
	}
	d := g.Evaluate(ctx, ev.UserID)
	switch {
	case d.Allowed:
		metrics.RecordGate("pass")
	case d.Reason == ReasonError:
		metrics.RecordGate("error")
	default:
		metrics.RecordGate("blocked")
	}
	return d
}

func (g *Gate) bypass(ev messenger.Event) (Reason, bool) {
	if _, ok := g.admins[ev.UserID]; ok {
		return ReasonAdmin, true
	}
	if ev.Kind == messenger.KindCommand || ev.Kind == messenger.KindText {
		for _, cmd := range g.commands {
			if cmd != "" && strings.HasPrefix(ev.Text, cmd) {
				return ReasonAllowed, true
			}
		}
	}
	if ev.Kind == messenger.KindCallback {
		for _, p := range g.prefixes {
			if p != "" && strings.HasPrefix(ev.CallbackData, p) {
				return ReasonAllowed, true
			}
		}
	}
	return "", false
}

// Evaluate checks every required channel concurrently and waits for all answers.
func (g *Gate) Evaluate(ctx context.Context, userID int64) Decision {
	channels, err := g.channels.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to load required channels")
		return Decision{Reason: ReasonError}
	}
	if len(channels) == 0 {
		return Decision{Allowed: true, Reason: ReasonNoChannels}
	}

	joined := make([]bool, len(channels))
	var eg errgroup.Group
	for i, ch := range channels {
		i, ch := i, ch
		eg.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()

			ok, err := g.oracle.IsMember(checkCtx, ch.ChatRef, userID)
			if err != nil {
				log.Warn().Err(err).Int64("user_id", userID).Str("channel", ch.ChatRef).Msg("membership check failed")
				return nil
			}
			joined[i] = ok
			return nil
		})
	}
	_ = eg.Wait()

	var missing []Channel
	for i, ok := range joined {
		if !ok {
			missing = append(missing, channels[i])
		}
	}
	if len(missing) > 0 {
		return Decision{Reason: ReasonMissing, Missing: missing}
	}
	return Decision{Allowed: true, Reason: ReasonSubscribed}
}

const (
	promptText      = "⚠️ <b>Botdan foydalanish uchun quyidagi kanallarga obuna bo'ling:</b>"
	unavailableText = "⚠️ <b>Obunani tekshirib bo'lmadi.</b>\n\nBirozdan so'ng qayta urinib ko'ring."
	notYetText      = "❌ Siz hali barcha kanallarga obuna bo'lmadingiz!"
	confirmedText   = "✅ Obuna tasdiqlandi!"
)

// Prompt renders the join prompt for a blocked decision.
func Prompt(chatID int64, d Decision) messenger.Message {
	text := promptText
	if d.Reason == ReasonError {
		text = unavailableText
	}
	rows := make([][]messenger.Button, 0, len(d.Missing)+1)
	for _, ch := range d.Missing {
		title := ch.Title
		if title == "" {
			title = ch.ChatRef
		}
		url := joinURL(ch)
		if url == "" {
			// Private channel without an invite link: name it, no button.
			text += "\n• " + title
			continue
		}
		rows = append(rows, messenger.Row(messenger.Button{Text: "➕ " + title, URL: url}))
	}
	rows = append(rows, messenger.Row(messenger.Button{Text: "✅ Obunani tekshirish", Data: CallbackRecheck}))
	return messenger.Message{ChatID: chatID, Text: text, Keyboard: messenger.Inline(rows...)}
}

func joinURL(ch Channel) string {
	if ch.InviteLink != "" {
		return ch.InviteLink
	}
	if strings.HasPrefix(ch.ChatRef, "@") {
		return "https://t.me/" + strings.TrimPrefix(ch.ChatRef, "@")
	}
	return ""
}

// Block tells the user why the event was stopped. A blocked callback is
// answered so the client stops its spinner.
func (g *Gate) Block(ctx context.Context, sender messenger.Sender, ev messenger.Event, d Decision) {
	if ev.Kind == messenger.KindCallback {
		if err := sender.AnswerCallback(ctx, ev.CallbackID, ""); err != nil {
			log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("failed to answer callback")
		}
	}
	if _, err := sender.Send(ctx, Prompt(ev.ChatID, d)); err != nil {
		log.Error().Err(err).Int64("user_id", ev.UserID).Msg("failed to send subscription prompt")
	}
}

// Recheck handles the "check again" button. It reports whether the user may
// continue; on success the prompt message is removed.
func (g *Gate) Recheck(ctx context.Context, sender messenger.Sender, ev messenger.Event) bool {
	d := g.Evaluate(ctx, ev.UserID)
	if !d.Allowed {
		metrics.RecordGate("blocked")
		if err := sender.AnswerCallback(ctx, ev.CallbackID, notYetText); err != nil {
			log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("failed to answer callback")
		}
		return false
	}

	metrics.RecordGate("pass")
	if err := sender.AnswerCallback(ctx, ev.CallbackID, confirmedText); err != nil {
		log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("failed to answer callback")
	}
	if ev.MessageID != 0 {
		if err := sender.Delete(ctx, ev.ChatID, ev.MessageID); err != nil {
			log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("failed to delete subscription prompt")
		}
	}
	return true
}
