package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeRefund     TransactionType = "refund"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Transaction is an append-only ledger entry. Only Status, ResolvedAt and
// ReceiptArchiveKey change after insert.
type Transaction struct {
	ID                int64           `db:"id" json:"id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	Type              TransactionType `db:"type" json:"type"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Status            Status          `db:"status" json:"status"`
	ReceiptFileID     *string         `db:"receipt_file_id" json:"receipt_file_id,omitempty"`
	ReceiptArchiveKey *string         `db:"receipt_archive_key" json:"receipt_archive_key,omitempty"`
	Reference         *string         `db:"reference" json:"reference,omitempty"`
	Description       string          `db:"description" json:"description"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt        *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IsPending reports whether the transaction still awaits a decision.
func (t *Transaction) IsPending() bool {
	return t.Status == StatusPending
}

// Account is the ledger view of a user.
type Account struct {
	UserID    int64           `db:"id" json:"user_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	FreeQuota int             `db:"free_quota_remaining" json:"free_quota"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Stats is shown on the balance screen.
type Stats struct {
	Account
	TotalDeposited decimal.Decimal `db:"total_deposited" json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `db:"total_withdrawn" json:"-"`
	TotalRefunded  decimal.Decimal `db:"total_refunded" json:"-"`
}

// TotalSpent is withdrawals net of refunds.
func (s Stats) TotalSpent() decimal.Decimal {
	return s.TotalWithdrawn.Sub(s.TotalRefunded)
}

// Resolution is the outcome of SetTransactionStatus.
type Resolution struct {
	Transaction Transaction
	// Balance is the user balance after the decision.
	Balance decimal.Decimal
	// Credited is the amount added to the balance, zero for rejections.
	Credited decimal.Decimal
}
