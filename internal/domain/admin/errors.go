package admin

import "errors"

var (
	ErrInvalidDecision    = errors.New("invalid decision")
	ErrInvalidCallback    = errors.New("invalid callback data")
	ErrNotAdmin           = errors.New("not an admin")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
