package conversation

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrCorruptState   = errors.New("corrupt conversation state")
	ErrInvalidPayload = errors.New("invalid web form payload")
	ErrInvalidAmount  = errors.New("invalid deposit amount")
	ErrAmountTooSmall = errors.New("deposit amount below minimum")
	ErrAmountTooLarge = errors.New("deposit amount above maximum")
)

// PayloadError lists the web form fields that failed validation.
// It matches ErrInvalidPayload with errors.Is.
type PayloadError struct {
	Fields map[string]string
}

func (e *PayloadError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid web form payload: " + strings.Join(parts, "; ")
}

func (e *PayloadError) Unwrap() error {
	return ErrInvalidPayload
}
