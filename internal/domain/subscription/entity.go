package subscription

import "time"

// Channel is a chat every user has to join before using the bot.
type Channel struct {
	ID         int64     `db:"id" json:"id"`
	ChatRef    string    `db:"chat_ref" json:"chat_ref"`
	Title      string    `db:"title" json:"title"`
	InviteLink string    `db:"invite_link" json:"invite_link"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Reason explains a gate decision.
type Reason string

const (
	ReasonAdmin      Reason = "admin"
	ReasonAllowed    Reason = "allow_list"
	ReasonNoChannels Reason = "no_channels"
	ReasonSubscribed Reason = "subscribed"
	ReasonMissing    Reason = "missing"
	ReasonError      Reason = "error"
)

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Missing lists channels the user has not joined or that could not be checked.
	Missing []Channel
}
