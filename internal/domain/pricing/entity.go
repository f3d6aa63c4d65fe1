package pricing

import "github.com/shopspring/decimal"

// Service keys known to the bot.
const (
	KeySlideBasic     = "slide_basic"
	KeyPitchDeck      = "pitch_deck"
	KeyCourseWorkPage = "course_work_page"
)

type PriceEntry struct {
	ServiceKey  string          `db:"service_key" json:"service_key"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Currency    string          `db:"currency" json:"currency"`
	Description string          `db:"description" json:"description"`
	IsActive    bool            `db:"is_active" json:"is_active"`
}
