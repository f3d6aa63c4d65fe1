package ledger

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/aislide/aislide-bot/internal/pkg/metrics"
)

const defaultListLimit = 5

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	acc, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func (s *Service) GetFreeQuota(ctx context.Context, userID int64) (int, error) {
	acc, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acc.FreeQuota, nil
}

// GetAccount returns balance and free quota in one read.
func (s *Service) GetAccount(ctx context.Context, userID int64) (*Account, error) {
	return s.repo.GetAccount(ctx, userID)
}

// ConsumeFreeQuota uses one free generation. ErrQuotaExhausted means the caller
// should fall through to the paid path.
func (s *Service) ConsumeFreeQuota(ctx context.Context, userID int64) (int, error) {
	remaining, err := s.repo.ConsumeFreeQuota(ctx, userID)
	if errors.Is(err, ErrQuotaExhausted) {
		metrics.RecordLedger("consume_quota", nil)
		return 0, err
	}
	metrics.RecordLedger("consume_quota", err)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Str("op", "consume_quota").Msg("ledger operation failed")
		return 0, err
	}
	log.Info().Int64("user_id", userID).Str("op", "consume_quota").Int("remaining", remaining).Msg("free quota consumed")
	return remaining, nil
}

// Debit charges amount. reference should identify the purchase so that a
// retried charge is rejected with ErrDuplicateReference instead of applied twice.
func (s *Service) Debit(ctx context.Context, userID int64, amount decimal.Decimal, reference, description string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	balance, err := s.repo.Debit(ctx, userID, amount, reference, description)
	if errors.Is(err, ErrInsufficientFunds) {
		metrics.RecordLedger("debit", nil)
		return decimal.Zero, err
	}
	metrics.RecordLedger("debit", err)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Str("op", "debit").
			Str("amount", amount.String()).Str("reference", reference).Msg("ledger operation failed")
		return decimal.Zero, err
	}
	log.Info().Int64("user_id", userID).Str("op", "debit").Str("amount", amount.String()).
		Str("reference", reference).Str("balance", balance.String()).Msg("balance debited")
	return balance, nil
}

// Credit adds amount to the balance with an approved deposit entry.
func (s *Service) Credit(ctx context.Context, userID int64, amount decimal.Decimal, reference, description string) (decimal.Decimal, error) {
	return s.credit(ctx, "credit", userID, TypeDeposit, amount, reference, description)
}

// Refund returns a previous charge. It is applied at most once per reference:
// a repeated call reports applied=false and changes nothing.
func (s *Service) Refund(ctx context.Context, userID int64, amount decimal.Decimal, reference, description string) (applied bool, balance decimal.Decimal, err error) {
	if reference == "" {
		return false, decimal.Zero, ErrMissingReference
	}
	balance, err = s.credit(ctx, "refund", userID, TypeRefund, amount, reference, description)
	if errors.Is(err, ErrDuplicateReference) {
		log.Warn().Int64("user_id", userID).Str("op", "refund").Str("amount", amount.String()).
			Str("reference", reference).Msg("refund already applied")
		balance, err = s.GetBalance(ctx, userID)
		return false, balance, err
	}
	if err != nil {
		return false, decimal.Zero, err
	}
	return true, balance, nil
}

func (s *Service) credit(ctx context.Context, op string, userID int64, txType TransactionType, amount decimal.Decimal, reference, description string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	balance, err := s.repo.Credit(ctx, userID, txType, amount, reference, description)
	if errors.Is(err, ErrDuplicateReference) {
		metrics.RecordLedger(op, nil)
		return decimal.Zero, err
	}
	metrics.RecordLedger(op, err)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Str("op", op).
			Str("amount", amount.String()).Str("reference", reference).Msg("ledger operation failed")
		return decimal.Zero, err
	}
	log.Info().Int64("user_id", userID).Str("op", op).Str("amount", amount.String()).
		Str("reference", reference).Str("balance", balance.String()).Msg("balance credited")
	return balance, nil
}

// RecordTransaction appends a log entry without touching the balance.
// Deposits start pending and wait for SetTransactionStatus.
func (s *Service) RecordTransaction(ctx context.Context, userID int64, txType TransactionType, amount decimal.Decimal, description string, receiptFileID string) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	switch txType {
	case TypeDeposit, TypeWithdrawal, TypeRefund:
	default:
		return 0, ErrInvalidType
	}

	t := &Transaction{
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		Status:        StatusPending,
		ReceiptFileID: nullable(receiptFileID),
		Description:   description,
	}
	id, err := s.repo.InsertTransaction(ctx, t)
	metrics.RecordLedger("record", err)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Str("op", "record").Str("type", string(txType)).
			Str("amount", amount.String()).Msg("ledger operation failed")
		return 0, err
	}
	log.Info().Int64("user_id", userID).Str("op", "record").Int64("transaction_id", id).
		Str("type", string(txType)).Str("amount", amount.String()).Msg("transaction recorded")
	return id, nil
}

// SetTransactionStatus settles a pending transaction. Approving a deposit
// credits the user once. ErrAlreadyResolved is returned together with the
// current state of the transaction.
func (s *Service) SetTransactionStatus(ctx context.Context, id int64, status Status) (*Resolution, error) {
	if status != StatusApproved && status != StatusRejected {
		return nil, ErrInvalidStatus
	}
	res, err := s.repo.Resolve(ctx, id, status)
	if errors.Is(err, ErrAlreadyResolved) {
		metrics.RecordLedger("resolve", nil)
		log.Warn().Int64("transaction_id", id).Str("status", string(res.Transaction.Status)).Msg("transaction already resolved")
		return res, err
	}
	metrics.RecordLedger("resolve", err)
	if err != nil {
		log.Error().Err(err).Int64("transaction_id", id).Str("op", "resolve").Str("status", string(status)).Msg("ledger operation failed")
		return nil, err
	}
	log.Info().Int64("transaction_id", id).Int64("user_id", res.Transaction.UserID).Str("op", "resolve").
		Str("status", string(status)).Str("amount", res.Transaction.Amount.String()).
		Str("credited", res.Credited.String()).Msg("transaction resolved")
	return res, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) Stats(ctx context.Context, userID int64) (*Stats, error) {
	return s.repo.Stats(ctx, userID)
}

// ListTransactions returns the newest entries first.
func (s *Service) ListTransactions(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

// ListPending returns pending deposits, oldest first.
func (s *Service) ListPending(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByStatus(ctx, StatusPending, limit)
}

func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]Transaction, error) {
	switch status {
	case StatusPending, StatusApproved, StatusRejected:
	default:
		return nil, ErrInvalidStatus
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByStatus(ctx, status, limit)
}

func (s *Service) SetArchiveKey(ctx context.Context, id int64, key string) error {
	return s.repo.SetArchiveKey(ctx, id, key)
}
