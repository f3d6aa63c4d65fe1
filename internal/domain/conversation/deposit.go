package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var amountNoise = strings.NewReplacer(" ", "", ",", "", "\u00a0", "", "_", "", "'", "")

// plainAmount admits digits with optional fraction only. Exponent forms like
// "1e70000000" would make decimal rescaling unbounded.
var plainAmount = regexp.MustCompile(`^\d{1,15}(\.\d{1,6})?$`)

// ParseDepositAmount reads a top-up amount typed by the user, such as
// "50 000" or "50,000 so'm", and checks it against [min, max].
func ParseDepositAmount(text string, min, max decimal.Decimal) (decimal.Decimal, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	for _, suffix := range []string{"so'm", "som", "sum", "uzs"} {
		s = strings.TrimSuffix(s, suffix)
	}
	s = amountNoise.Replace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	if !plainAmount.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}

	amount, err := decimal.NewFromString(s)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	amount = amount.Round(2)

	if amount.LessThan(min) {
		return decimal.Zero, ErrAmountTooSmall
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return decimal.Zero, ErrAmountTooLarge
	}
	return amount, nil
}
