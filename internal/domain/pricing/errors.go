package pricing

import "errors"

var (
	ErrPriceNotFound = errors.New("price not found")
	ErrInternal      = errors.New("internal error")
)
