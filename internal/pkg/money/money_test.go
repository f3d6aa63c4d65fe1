package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormat(t *testing.T) {
	cases := map[string]string{
		"0":         "0",
		"999":       "999",
		"1000":      "1,000",
		"10000.00":  "10,000",
		"1234567.4": "1,234,567",
		"10000000":  "10,000,000",
		"-5000":     "-5,000",
		"2500.5":    "2,501",
	}
	for in, want := range cases {
		if got := Format(decimal.RequireFromString(in)); got != want {
			t.Errorf("Format(%s) = %q, want %q", in, got, want)
		}
	}
}
