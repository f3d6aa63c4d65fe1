package admin

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/aislide/aislide-bot/internal/domain/ledger"
	"github.com/aislide/aislide-bot/internal/pkg/messenger"
	"github.com/aislide/aislide-bot/internal/pkg/money"
)

// Resolver applies admin decisions to the ledger.
type Resolver interface {
	SetTransactionStatus(ctx context.Context, id int64, status ledger.Status) (*ledger.Resolution, error)
}

// Publisher receives events for the admin live feed.
type Publisher interface {
	Publish(event Event)
}

// Relay forwards pending deposits to the admins and carries their decisions
// back to the ledger and the depositing user.
type Relay struct {
	sender  messenger.Sender
	ledger  Resolver
	feed    Publisher
	admins  []int64
	support string
}

// NewRelay creates the relay. feed may be nil.
func NewRelay(sender messenger.Sender, resolver Resolver, feed Publisher, adminIDs []int64, support string) *Relay {
	return &Relay{sender: sender, ledger: resolver, feed: feed, admins: adminIDs, support: support}
}

// IsAdmin reports whether userID is on the admin allow-list.
func (r *Relay) IsAdmin(userID int64) bool {
	for _, id := range r.admins {
		if id == userID {
			return true
		}
	}
	return false
}

// NotifyPendingDeposit alerts every admin. A failing admin chat does not stop
// delivery to the others.
func (r *Relay) NotifyPendingDeposit(ctx context.Context, d PendingDeposit) {
	if len(r.admins) == 0 {
		log.Warn().Int64("tx_id", d.TransactionID).Msg("No admins configured, deposit left pending")
	}

	msg := messenger.Message{
		Text: pendingText(d),
		Keyboard: messenger.Inline(messenger.Row(
			messenger.Button{Text: "✅ Tasdiqlash", Data: CallbackApprove + strconv.FormatInt(d.TransactionID, 10)},
			messenger.Button{Text: "❌ Rad etish", Data: CallbackReject + strconv.FormatInt(d.TransactionID, 10)},
		)),
	}

	delivered := 0
	for _, adminID := range r.admins {
		msg.ChatID = adminID
		if _, err := r.sender.Send(ctx, msg); err != nil {
			log.Error().Err(err).Int64("admin_id", adminID).Int64("tx_id", d.TransactionID).Msg("Failed to notify admin")
			continue
		}
		if err := r.sendReceipt(ctx, adminID, d); err != nil {
			log.Error().Err(err).Int64("admin_id", adminID).Int64("tx_id", d.TransactionID).Msg("Failed to forward receipt")
		}
		delivered++
	}

	log.Info().Int64("tx_id", d.TransactionID).Int64("user_id", d.UserID).
		Str("amount", d.Amount.String()).Int("admins", delivered).Msg("Pending deposit relayed")

	r.publish(Event{Type: EventDepositPending, Data: d})
}

// sendReceipt forwards the receipt, retrying a photo as a document.
func (r *Relay) sendReceipt(ctx context.Context, adminID int64, d PendingDeposit) error {
	if d.FileID == "" {
		return nil
	}
	kind := d.FileKind
	if kind == "" {
		kind = messenger.FilePhoto
	}
	err := r.sender.SendFile(ctx, adminID, kind, d.FileID, "")
	if err != nil && kind == messenger.FilePhoto {
		err = r.sender.SendFile(ctx, adminID, messenger.FileDocument, d.FileID, "")
	}
	return err
}

// Resolve applies decision to transaction txID and tells the user. When the
// transaction was already decided ErrAlreadyResolved is returned together
// with its current state, and the user is not notified again.
func (r *Relay) Resolve(ctx context.Context, adminID, txID int64, decision Decision) (*ledger.Resolution, error) {
	var status ledger.Status
	switch decision {
	case DecisionApprove:
		status = ledger.StatusApproved
	case DecisionReject:
		status = ledger.StatusRejected
	default:
		return nil, ErrInvalidDecision
	}

	res, err := r.ledger.SetTransactionStatus(ctx, txID, status)
	if errors.Is(err, ledger.ErrAlreadyResolved) {
		log.Warn().Int64("admin_id", adminID).Int64("tx_id", txID).Msg("Transaction already resolved")
		return res, err
	}
	if err != nil {
		return nil, err
	}

	tx := res.Transaction
	log.Info().Int64("admin_id", adminID).Int64("tx_id", txID).Int64("user_id", tx.UserID).
		Str("status", string(tx.Status)).Str("amount", tx.Amount.String()).Msg("Deposit resolved")

	if _, err := r.sender.Send(ctx, messenger.Message{ChatID: tx.UserID, Text: r.userText(res)}); err != nil {
		log.Error().Err(err).Int64("user_id", tx.UserID).Int64("tx_id", txID).Msg("Failed to notify user about deposit decision")
	}

	r.publish(Event{Type: EventDepositResolved, Data: ResolvedDeposit{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Status:        string(tx.Status),
		Amount:        tx.Amount,
		Balance:       res.Balance,
		ResolvedBy:    adminID,
	}})
	return res, nil
}

// ParseCallback decodes approve_trans:<id> and reject_trans:<id>.
func ParseCallback(data string) (Decision, int64, error) {
	var decision Decision
	var raw string
	switch {
	case strings.HasPrefix(data, CallbackApprove):
		decision, raw = DecisionApprove, strings.TrimPrefix(data, CallbackApprove)
	case strings.HasPrefix(data, CallbackReject):
		decision, raw = DecisionReject, strings.TrimPrefix(data, CallbackReject)
	default:
		return "", 0, ErrInvalidCallback
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidCallback, data)
	}
	return decision, id, nil
}

// IsDecisionCallback reports whether data belongs to the approve/reject pair.
func IsDecisionCallback(data string) bool {
	return strings.HasPrefix(data, CallbackApprove) || strings.HasPrefix(data, CallbackReject)
}

// HandleCallback processes an approve/reject button press from an admin chat.
func (r *Relay) HandleCallback(ctx context.Context, ev messenger.Event) {
	answer := func(text string) {
		if err := r.sender.AnswerCallback(ctx, ev.CallbackID, text); err != nil {
			log.Warn().Err(err).Int64("admin_id", ev.UserID).Msg("Failed to answer callback")
		}
	}

	if !r.IsAdmin(ev.UserID) {
		log.Warn().Int64("user_id", ev.UserID).Str("data", ev.CallbackData).Msg("Decision callback from non-admin")
		answer("⛔ Ruxsat yo'q")
		return
	}

	decision, txID, err := ParseCallback(ev.CallbackData)
	if err != nil {
		answer("❌ Noto'g'ri so'rov")
		return
	}

	res, err := r.Resolve(ctx, ev.UserID, txID, decision)
	switch {
	case errors.Is(err, ledger.ErrAlreadyResolved):
		answer("⚠️ Allaqachon ko'rib chiqilgan")
		if res != nil {
			r.tellAdmin(ctx, ev.ChatID, fmt.Sprintf("⚠️ Tranzaksiya #%d allaqachon ko'rib chiqilgan: %s", txID, res.Transaction.Status))
		}
	case errors.Is(err, ledger.ErrTransactionNotFound):
		answer("❌ Tranzaksiya topilmadi")
	case err != nil:
		log.Error().Err(err).Int64("admin_id", ev.UserID).Int64("tx_id", txID).Msg("Failed to resolve deposit")
		answer("❌ Xatolik yuz berdi")
	case decision == DecisionApprove:
		answer("✅ Tasdiqlandi")
		r.tellAdmin(ctx, ev.ChatID, fmt.Sprintf("✅ Tranzaksiya #%d tasdiqlandi\n👤 User: <code>%d</code>\n💰 Summa: %s so'm\n💳 Yangi balans: %s so'm",
			txID, res.Transaction.UserID, money.Format(res.Transaction.Amount), money.Format(res.Balance)))
	default:
		answer("❌ Rad etildi")
		r.tellAdmin(ctx, ev.ChatID, fmt.Sprintf("❌ Tranzaksiya #%d rad etildi\n👤 User: <code>%d</code>",
			txID, res.Transaction.UserID))
	}
}

func (r *Relay) tellAdmin(ctx context.Context, chatID int64, text string) {
	if _, err := r.sender.Send(ctx, messenger.Message{ChatID: chatID, Text: text}); err != nil {
		log.Warn().Err(err).Int64("admin_id", chatID).Msg("Failed to message admin")
	}
}

func (r *Relay) publish(event Event) {
	if r.feed != nil {
		r.feed.Publish(event)
	}
}

func pendingText(d PendingDeposit) string {
	name := d.FullName
	if name == "" {
		name = d.Username
	}
	return fmt.Sprintf("🔔 <b>YANGI TRANZAKSIYA</b>\n\n"+
		"👤 <b>User:</b> %s\n"+
		"🆔 <b>User ID:</b> <code>%d</code>\n"+
		"💰 <b>Summa:</b> %s so'm\n"+
		"🆔 <b>Tranzaksiya ID:</b> %d\n\n"+
		"📸 Chek quyida 👇",
		html.EscapeString(name), d.UserID, money.Format(d.Amount), d.TransactionID)
}

func (r *Relay) userText(res *ledger.Resolution) string {
	tx := res.Transaction
	if tx.Status == ledger.StatusApproved {
		return fmt.Sprintf("✅ <b>To'lovingiz tasdiqlandi!</b>\n\n"+
			"💰 Qo'shildi: %s so'm\n💳 Yangi balans: %s so'm\n\nXizmatlardan foydalanishingiz mumkin! 🎉",
			money.Format(res.Credited), money.Format(res.Balance))
	}
	return fmt.Sprintf("❌ <b>To'lovingiz rad etildi!</b>\n\n"+
		"💰 Summa: %s so'm\n🆔 Tranzaksiya ID: %d\n\nSavollar bo'lsa: %s",
		money.Format(tx.Amount), tx.ID, r.support)
}
