package task

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindBasicDeck  Kind = "basic_deck"
	KindPitchDeck  Kind = "pitch_deck"
	KindCourseWork Kind = "course_work"
)

// Valid reports whether k is a known task kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBasicDeck, KindPitchDeck, KindCourseWork:
		return true
	}
	return false
}

// StatusPending is the only status this service writes; the worker owns the rest.
const StatusPending = "pending"

// Task is a generation request handed to the worker.
type Task struct {
	ID            int64           `db:"id" json:"id"`
	TaskUUID      uuid.UUID       `db:"task_uuid" json:"task_uuid"`
	UserID        int64           `db:"user_id" json:"user_id"`
	Kind          Kind            `db:"kind" json:"kind"`
	Size          int             `db:"size" json:"size"`
	Payload       types.JSONText  `db:"payload" json:"payload"`
	AmountCharged decimal.Decimal `db:"amount_charged" json:"amount_charged"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Request describes a submission whose charge has already been committed.
type Request struct {
	// TaskUUID is the idempotency key. It should be the reference used for
	// the debit; a zero value gets a fresh uuid.
	TaskUUID      uuid.UUID
	UserID        int64
	Kind          Kind
	Size          int
	Payload       any
	AmountCharged decimal.Decimal
}
