package admin

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aislide/aislide-bot/internal/pkg/messenger"
)

// Callback data prefixes of the inline approve/reject pair.
const (
	CallbackApprove = "approve_trans:"
	CallbackReject  = "reject_trans:"
)

// PendingDeposit is a freshly recorded deposit awaiting an admin decision.
type PendingDeposit struct {
	TransactionID int64              `json:"transaction_id"`
	UserID        int64              `json:"user_id"`
	Username      string             `json:"username,omitempty"`
	FullName      string             `json:"full_name,omitempty"`
	Amount        decimal.Decimal    `json:"amount"`
	FileID        string             `json:"-"`
	FileKind      messenger.FileKind `json:"file_kind"`
	CreatedAt     time.Time          `json:"created_at"`
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type EventType string

const (
	EventDepositPending  EventType = "deposit.pending"
	EventDepositResolved EventType = "deposit.resolved"
)

// Event is pushed to connected admin consoles.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// ResolvedDeposit is the payload of deposit.resolved.
type ResolvedDeposit struct {
	TransactionID int64           `json:"transaction_id"`
	UserID        int64           `json:"user_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	ResolvedBy    int64           `json:"resolved_by"`
}
