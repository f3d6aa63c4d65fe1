package subscription

import "errors"

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrInternal        = errors.New("internal error")
)
