// Package money formats so'm amounts for chat messages.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Format renders an amount rounded to whole so'm with thousands separators: 10,000.
func Format(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
