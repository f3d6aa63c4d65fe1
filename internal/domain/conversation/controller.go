package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aislide/aislide-bot/internal/domain/account"
	"github.com/aislide/aislide-bot/internal/domain/admin"
	"github.com/aislide/aislide-bot/internal/domain/ledger"
	"github.com/aislide/aislide-bot/internal/domain/pricing"
	"github.com/aislide/aislide-bot/internal/domain/subscription"
	"github.com/aislide/aislide-bot/internal/domain/task"
	"github.com/aislide/aislide-bot/internal/domain/theme"
	"github.com/aislide/aislide-bot/internal/pkg/locker"
	"github.com/aislide/aislide-bot/internal/pkg/logger"
	"github.com/aislide/aislide-bot/internal/pkg/messenger"
	"github.com/aislide/aislide-bot/internal/pkg/money"
)

const (
	defaultLockTimeout = 5 * time.Second
	balanceHistorySize = 5
)

// Ledger is the part of the ledger the conversation touches.
type Ledger interface {
	GetAccount(ctx context.Context, userID int64) (*ledger.Account, error)
	ConsumeFreeQuota(ctx context.Context, userID int64) (int, error)
	Debit(ctx context.Context, userID int64, amount decimal.Decimal, reference, description string) (decimal.Decimal, error)
	RecordTransaction(ctx context.Context, userID int64, txType ledger.TransactionType, amount decimal.Decimal, description string, receiptFileID string) (int64, error)
	Stats(ctx context.Context, userID int64) (*ledger.Stats, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]ledger.Transaction, error)
}

type Prices interface {
	GetPrice(ctx context.Context, key string) decimal.Decimal
	Quote(ctx context.Context, key string, units int) decimal.Decimal
	ListActive(ctx context.Context) ([]pricing.PriceEntry, error)
}

// Admitter persists a charged request for the generation worker.
type Admitter interface {
	CreateTask(ctx context.Context, req task.Request) (uuid.UUID, error)
}

type Registrar interface {
	Register(ctx context.Context, p account.Profile) (*account.User, error)
}

type DepositRelay interface {
	NotifyPendingDeposit(ctx context.Context, d admin.PendingDeposit)
}

type Archiver interface {
	Archive(ctx context.Context, d admin.PendingDeposit) error
}

// Deps are the collaborators of the controller. Archiver is optional.
type Deps struct {
	Accounts Registrar
	Ledger   Ledger
	Prices   Prices
	Tasks    Admitter
	Relay    DepositRelay
	Archiver Archiver
	Store    Store
	Locker   locker.Locker
	Sender   messenger.Sender
	Themes   *theme.Registry
}

type Config struct {
	WebAppURL        string
	CourseWorkAppURL string
	SupportContact   string
	DepositMin       decimal.Decimal
	DepositMax       decimal.Decimal
	CardNumber       string
	CardHolder       string
	Limits           pricing.Limits
	LockTimeout      time.Duration
}

// Controller is the per-user conversation state machine.
type Controller struct {
	Deps
	cfg Config

	background sync.WaitGroup
}

func NewController(deps Deps, cfg Config) *Controller {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if deps.Themes == nil {
		deps.Themes = theme.NewRegistry()
	}
	return &Controller{Deps: deps, cfg: cfg}
}

// Wait blocks until background receipt archiving has finished or ctx ends.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// chargeResult describes what a submission cost.
type chargeResult struct {
	free           bool
	amount         decimal.Decimal
	balance        decimal.Decimal
	remainingQuota int
}

// submission is a fully priced request ready to be charged and admitted.
type submission struct {
	kind        task.Kind
	size        int
	price       decimal.Decimal
	payload     TaskPayload
	description string
}

func userLockKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// Handle processes one inbound event for its user. Events of the same user
// are serialized; the state is loaded before and saved after dispatch.
func (c *Controller) Handle(ctx context.Context, ev messenger.Event) error {
	l := logger.FromContext(ctx)

	lockCtx, cancel := context.WithTimeout(ctx, c.cfg.LockTimeout)
	unlock, err := c.Locker.Lock(lockCtx, userLockKey(ev.UserID))
	cancel()
	if err != nil {
		if errors.Is(err, locker.ErrNotAcquired) {
			l.Warn().Int64("user_id", ev.UserID).Msg("User busy, event dropped")
			c.reply(ctx, ev.ChatID, textBusy, nil)
			return nil
		}
		c.reply(ctx, ev.ChatID, textGenericError, mainMenu())
		return fmt.Errorf("lock user %d: %w", ev.UserID, err)
	}
	defer unlock()

	st, err := c.Store.Load(ctx, ev.UserID)
	if err != nil {
		l.Warn().Err(err).Int64("user_id", ev.UserID).Msg("Unreadable conversation state, resetting")
		if errors.Is(err, ErrCorruptState) {
			_ = c.Store.Clear(ctx, ev.UserID)
		}
		st = Idle{}
	}

	next, err := c.dispatch(ctx, ev, st)
	if err != nil {
		l.Error().Err(err).Int64("user_id", ev.UserID).Str("state", string(st.Kind())).Msg("Conversation step failed")
		if errors.Is(err, ledger.ErrUserNotFound) {
			c.reply(ctx, ev.ChatID, textDataNotFound, mainMenu())
		} else {
			c.reply(ctx, ev.ChatID, textGenericError, mainMenu())
		}
		next = Idle{}
	}
	if next == nil {
		return err
	}

	if serr := c.Store.Save(ctx, ev.UserID, next); serr != nil {
		l.Error().Err(serr).Int64("user_id", ev.UserID).Str("state", string(next.Kind())).Msg("Failed to save conversation state")
		return errors.Join(err, serr)
	}
	return err
}

// dispatch returns the next state, or nil to keep the current one.
func (c *Controller) dispatch(ctx context.Context, ev messenger.Event, st State) (State, error) {
	switch {
	case ev.Kind == messenger.KindCommand && ev.Command == "start":
		return c.start(ctx, ev)
	case ev.Kind == messenger.KindCallback && ev.CallbackData == subscription.CallbackRecheck:
		return c.start(ctx, ev)
	case ev.Kind == messenger.KindCommand && ev.Command == "help":
		c.reply(ctx, ev.ChatID, helpText(c.cfg.SupportContact), mainMenu())
		return nil, nil
	case ev.Kind == messenger.KindCallback:
		if err := c.Sender.AnswerCallback(ctx, ev.CallbackID, ""); err != nil {
			logger.FromContext(ctx).Warn().Err(err).Int64("user_id", ev.UserID).Msg("Failed to answer callback")
		}
		return nil, nil
	}

	if ev.Kind == messenger.KindText {
		switch ev.TrimmedText() {
		case BtnCancel, BtnDecline:
			if st.Kind() == KindIdle {
				c.reply(ctx, ev.ChatID, textCancelled, mainMenu())
			} else {
				c.reply(ctx, ev.ChatID, textFlowCancelled, mainMenu())
			}
			return Idle{}, nil
		case BtnPitchDeck:
			return c.startPitch(ctx, ev)
		case BtnPresentation:
			c.reply(ctx, ev.ChatID, textPresentationTap, webAppKeyboard(btnOpenPresentation, c.cfg.WebAppURL))
			return Idle{}, nil
		case BtnCourseWork:
			c.reply(ctx, ev.ChatID, textCourseWorkTap, webAppKeyboard(btnOpenCourseWork, c.cfg.CourseWorkAppURL))
			return Idle{}, nil
		case BtnTopUp:
			c.reply(ctx, ev.ChatID, topUpText(c.cfg.DepositMin, c.cfg.DepositMax), cancelKeyboard())
			return AwaitingDepositAmount{}, nil
		case BtnBalance:
			return nil, c.showBalance(ctx, ev)
		case BtnPrices:
			return nil, c.showPrices(ctx, ev)
		case BtnHelp:
			c.reply(ctx, ev.ChatID, helpText(c.cfg.SupportContact), mainMenu())
			return nil, nil
		}
	}

	if ev.Kind == messenger.KindWebApp {
		if st.Kind() != KindIdle {
			c.reply(ctx, ev.ChatID, textFinishFlowFirst, nil)
			return nil, nil
		}
		return c.webForm(ctx, ev)
	}

	switch s := st.(type) {
	case CollectingPitchAnswers:
		return c.collectAnswer(ctx, ev, s)
	case ConfirmingCreation:
		return c.confirm(ctx, ev, s)
	case AwaitingDepositAmount:
		return c.depositAmount(ctx, ev)
	case AwaitingReceipt:
		return c.receipt(ctx, ev, s)
	}

	c.reply(ctx, ev.ChatID, textChooseButton, mainMenu())
	return nil, nil
}

func (c *Controller) start(ctx context.Context, ev messenger.Event) (State, error) {
	user, err := c.Accounts.Register(ctx, account.Profile{ID: ev.UserID, Username: ev.Username, FullName: ev.FullName})
	if err != nil {
		return nil, err
	}

	acc := &ledger.Account{
		UserID:    user.ID,
		Balance:   user.Balance,
		FreeQuota: user.FreeQuotaRemaining,
		CreatedAt: user.CreatedAt,
	}
	c.reply(ctx, ev.ChatID, welcomeText(firstName(ev), acc), mainMenu())
	return Idle{}, nil
}

func firstName(ev messenger.Event) string {
	if fields := strings.Fields(ev.FullName); len(fields) > 0 {
		return fields[0]
	}
	if ev.Username != "" {
		return ev.Username
	}
	return "do'st"
}

func (c *Controller) showBalance(ctx context.Context, ev messenger.Event) error {
	stats, err := c.Ledger.Stats(ctx, ev.UserID)
	if err != nil {
		return err
	}
	txs, err := c.Ledger.ListTransactions(ctx, ev.UserID, balanceHistorySize)
	if err != nil {
		return err
	}
	c.reply(ctx, ev.ChatID, balanceText(stats, txs), mainMenu())
	return nil
}

func (c *Controller) showPrices(ctx context.Context, ev messenger.Event) error {
	entries, err := c.Prices.ListActive(ctx)
	if err != nil {
		return err
	}
	quota := 0
	if acc, err := c.Ledger.GetAccount(ctx, ev.UserID); err == nil {
		quota = acc.FreeQuota
	}
	c.reply(ctx, ev.ChatID, pricesText(entries, quota), mainMenu())
	return nil
}

func (c *Controller) startPitch(ctx context.Context, ev messenger.Event) (State, error) {
	acc, err := c.Ledger.GetAccount(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	price := c.Prices.GetPrice(ctx, pricing.KeyPitchDeck)

	if acc.FreeQuota == 0 && acc.Balance.LessThan(price) {
		c.reply(ctx, ev.ChatID, shortfallText(price, acc.Balance), mainMenu())
		return Idle{}, nil
	}

	c.reply(ctx, ev.ChatID, pitchQuoteText(price, acc), confirmKeyboard())
	return ConfirmingCreation{ServiceType: task.KindPitchDeck, QuotedPrice: price}, nil
}

func (c *Controller) collectAnswer(ctx context.Context, ev messenger.Event, s CollectingPitchAnswers) (State, error) {
	if s.QuestionIndex < 0 || s.QuestionIndex >= len(Questions) || len(s.Answers) != s.QuestionIndex {
		logger.FromContext(ctx).Warn().Int64("user_id", ev.UserID).Int("question", s.QuestionIndex).
			Int("answers", len(s.Answers)).Msg("Inconsistent pitch state, resetting")
		c.reply(ctx, ev.ChatID, textDataNotFound, mainMenu())
		return Idle{}, nil
	}

	text := ev.TrimmedText()
	if ev.Kind != messenger.KindText || text == "" {
		c.reply(ctx, ev.ChatID, textAnswerRequired+Questions[s.QuestionIndex], cancelKeyboard())
		return nil, nil
	}

	answers := make([]string, 0, len(s.Answers)+1)
	answers = append(answers, s.Answers...)
	answers = append(answers, text)

	if next := s.QuestionIndex + 1; next < len(Questions) {
		c.reply(ctx, ev.ChatID, questionText(next), cancelKeyboard())
		return CollectingPitchAnswers{QuestionIndex: next, Answers: answers}, nil
	}

	acc, err := c.Ledger.GetAccount(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	price := c.Prices.GetPrice(ctx, pricing.KeyPitchDeck)
	c.reply(ctx, ev.ChatID, pitchSummaryText(len(answers), price, acc), confirmKeyboard())
	return ConfirmingCreation{ServiceType: task.KindPitchDeck, QuotedPrice: price, Answers: answers}, nil
}

func (c *Controller) confirm(ctx context.Context, ev messenger.Event, s ConfirmingCreation) (State, error) {
	if ev.Kind != messenger.KindText || ev.TrimmedText() != BtnConfirm {
		c.reply(ctx, ev.ChatID, textConfirmOrDecline, confirmKeyboard())
		return nil, nil
	}

	if !s.HasAnswers() {
		c.reply(ctx, ev.ChatID, pitchIntroText(), cancelKeyboard())
		return CollectingPitchAnswers{QuestionIndex: 0}, nil
	}

	sub := submission{
		kind:        s.ServiceType,
		size:        PitchDeckSlides,
		price:       s.QuotedPrice,
		payload:     pitchPayload(s.Answers),
		description: fmt.Sprintf("Pitch Deck (%d slayd)", PitchDeckSlides),
	}
	res, ok, err := c.submit(ctx, ev, sub)
	if err != nil {
		return nil, err
	}
	if ok {
		c.reply(ctx, ev.ChatID, pitchStartedText(res), mainMenu())
	}
	return Idle{}, nil
}

func pitchPayload(answers []string) TaskPayload {
	p := TaskPayload{
		Kind:      task.KindPitchDeck,
		Size:      PitchDeckSlides,
		ThemeKey:  theme.DefaultKey,
		Language:  defaultLanguage,
		Questions: Questions,
		Answers:   answers,
	}
	if len(answers) > 1 {
		p.Topic = answers[1]
	}
	if len(answers) > 2 {
		p.Details = answers[2]
	}
	return p
}

func (c *Controller) webForm(ctx context.Context, ev messenger.Event) (State, error) {
	req, err := ParseWebForm(ev.WebAppData, c.Themes, c.cfg.Limits)
	if err != nil {
		var perr *PayloadError
		if errors.As(err, &perr) {
			logger.FromContext(ctx).Info().Int64("user_id", ev.UserID).Str("error", perr.Error()).Msg("Web form payload rejected")
			c.reply(ctx, ev.ChatID, payloadErrorText(perr), mainMenu())
			return Idle{}, nil
		}
		return nil, err
	}

	key, units := req.PriceKey()
	sub := submission{
		kind:        req.Kind,
		size:        req.UnitCount,
		price:       c.Prices.Quote(ctx, key, units),
		payload:     req.Payload(),
		description: describe(req),
	}
	res, ok, err := c.submit(ctx, ev, sub)
	if err != nil {
		return nil, err
	}
	if ok {
		themeName := ""
		if req.ThemeKey != "" {
			themeName = c.Themes.Name(req.ThemeKey)
		}
		c.reply(ctx, ev.ChatID, webFormStartedText(req, themeName, res), mainMenu())
	}
	return Idle{}, nil
}

func describe(req *WebFormRequest) string {
	switch req.Kind {
	case task.KindCourseWork:
		return fmt.Sprintf("Mustaqil ish (%d sahifa)", req.UnitCount)
	case task.KindPitchDeck:
		return fmt.Sprintf("Pitch Deck (%d slayd)", req.UnitCount)
	}
	return fmt.Sprintf("Prezentatsiya (%d slayd)", req.UnitCount)
}

// submit charges for sub and admits the task. ok is false when the user was
// already told why nothing was started; err is only returned for failures
// before any charge was committed.
func (c *Controller) submit(ctx context.Context, ev messenger.Event, sub submission) (chargeResult, bool, error) {
	l := logger.FromContext(ctx)
	taskUUID := task.NewTaskUUID()

	res, err := c.charge(ctx, ev.UserID, sub.price, taskUUID, sub.description)
	if err != nil {
		var ife *ledger.InsufficientFundsError
		if errors.As(err, &ife) {
			l.Info().Int64("user_id", ev.UserID).Str("required", ife.Required.String()).
				Str("available", ife.Available.String()).Str("kind", string(sub.kind)).Msg("Insufficient funds")
			c.reply(ctx, ev.ChatID, shortfallText(ife.Required, ife.Available), mainMenu())
			return chargeResult{}, false, nil
		}
		return chargeResult{}, false, err
	}

	_, err = c.Tasks.CreateTask(ctx, task.Request{
		TaskUUID:      taskUUID,
		UserID:        ev.UserID,
		Kind:          sub.kind,
		Size:          sub.size,
		Payload:       sub.payload,
		AmountCharged: res.amount,
	})
	if err == nil {
		return res, true, nil
	}

	l.Error().Err(err).Int64("user_id", ev.UserID).Str("task_uuid", taskUUID.String()).
		Str("kind", string(sub.kind)).Str("amount", res.amount.String()).Bool("free", res.free).
		Msg("Task admission failed after charge")

	var admErr *task.AdmissionError
	switch {
	case !res.amount.IsPositive():
		c.reply(ctx, ev.ChatID, textTaskFailed, mainMenu())
	case errors.As(err, &admErr) && admErr.Compensated:
		c.reply(ctx, ev.ChatID, fmt.Sprintf(textTaskRefunded, money.Format(res.amount)), mainMenu())
	default:
		c.reply(ctx, ev.ChatID, fmt.Sprintf(textTaskNotRefunded, c.cfg.SupportContact), mainMenu())
	}
	return res, false, nil
}

// charge takes one free generation if the user has any, otherwise debits
// price with the task uuid as reference. A zero price is never charged.
func (c *Controller) charge(ctx context.Context, userID int64, price decimal.Decimal, taskUUID uuid.UUID, description string) (chargeResult, error) {
	if !price.IsPositive() {
		acc, err := c.Ledger.GetAccount(ctx, userID)
		if err != nil {
			return chargeResult{}, err
		}
		return chargeResult{free: true, balance: acc.Balance, remainingQuota: acc.FreeQuota}, nil
	}

	remaining, err := c.Ledger.ConsumeFreeQuota(ctx, userID)
	if err == nil {
		return chargeResult{free: true, remainingQuota: remaining}, nil
	}
	if !errors.Is(err, ledger.ErrQuotaExhausted) {
		return chargeResult{}, err
	}

	balance, err := c.Ledger.Debit(ctx, userID, price, taskUUID.String(), description)
	if err != nil {
		return chargeResult{}, err
	}
	return chargeResult{amount: price, balance: balance}, nil
}

func (c *Controller) depositAmount(ctx context.Context, ev messenger.Event) (State, error) {
	amount, err := ParseDepositAmount(ev.TrimmedText(), c.cfg.DepositMin, c.cfg.DepositMax)
	switch {
	case errors.Is(err, ErrAmountTooSmall):
		c.reply(ctx, ev.ChatID, fmt.Sprintf(textAmountMin, money.Format(c.cfg.DepositMin)), cancelKeyboard())
		return nil, nil
	case errors.Is(err, ErrAmountTooLarge):
		c.reply(ctx, ev.ChatID, fmt.Sprintf(textAmountMax, money.Format(c.cfg.DepositMax)), cancelKeyboard())
		return nil, nil
	case err != nil:
		c.reply(ctx, ev.ChatID, textAmountInvalid, cancelKeyboard())
		return nil, nil
	}

	c.reply(ctx, ev.ChatID, paymentDetailsText(amount, c.cfg.CardNumber, c.cfg.CardHolder), cancelKeyboard())
	return AwaitingReceipt{Amount: amount}, nil
}

func (c *Controller) receipt(ctx context.Context, ev messenger.Event, s AwaitingReceipt) (State, error) {
	if !ev.IsAttachment() || ev.FileID == "" {
		c.reply(ctx, ev.ChatID, textReceiptRequired, cancelKeyboard())
		return nil, nil
	}

	l := logger.FromContext(ctx)
	description := fmt.Sprintf("Balans to'ldirish: %s so'm", money.Format(s.Amount))
	txID, err := c.Ledger.RecordTransaction(ctx, ev.UserID, ledger.TypeDeposit, s.Amount, description, ev.FileID)
	if err != nil {
		l.Error().Err(err).Int64("user_id", ev.UserID).Str("amount", s.Amount.String()).Msg("Failed to record deposit")
		c.reply(ctx, ev.ChatID, textReceiptFailed, mainMenu())
		return Idle{}, nil
	}

	c.reply(ctx, ev.ChatID, receiptAcceptedText(s.Amount, txID), mainMenu())

	kind := messenger.FileDocument
	if ev.Kind == messenger.KindPhoto {
		kind = messenger.FilePhoto
	}
	d := admin.PendingDeposit{
		TransactionID: txID,
		UserID:        ev.UserID,
		Username:      ev.Username,
		FullName:      ev.FullName,
		Amount:        s.Amount,
		FileID:        ev.FileID,
		FileKind:      kind,
		CreatedAt:     time.Now(),
	}
	c.Relay.NotifyPendingDeposit(ctx, d)

	if c.Archiver != nil {
		actx := context.WithoutCancel(ctx)
		c.background.Add(1)
		go func() {
			defer c.background.Done()
			if err := c.Archiver.Archive(actx, d); err != nil {
				logger.FromContext(actx).Error().Err(err).Int64("transaction_id", txID).Msg("Failed to archive receipt")
			}
		}()
	}
	return Idle{}, nil
}

func (c *Controller) reply(ctx context.Context, chatID int64, text string, kb *messenger.Keyboard) {
	if _, err := c.Sender.Send(ctx, messenger.Message{ChatID: chatID, Text: text, Keyboard: kb}); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}
