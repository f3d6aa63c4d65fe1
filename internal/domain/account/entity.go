package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a chat user. ID is the Telegram user id.
type User struct {
	ID                 int64           `db:"id" json:"id"`
	Username           string          `db:"username" json:"username"`
	FullName           string          `db:"full_name" json:"full_name"`
	Balance            decimal.Decimal `db:"balance" json:"balance"`
	FreeQuotaRemaining int             `db:"free_quota_remaining" json:"free_quota_remaining"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// Profile is what the transport knows about a user on contact.
type Profile struct {
	ID       int64
	Username string
	FullName string
}
