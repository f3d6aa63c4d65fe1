// Package password hashes and checks the admin console password.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used for new hashes.
const DefaultCost = 12

var (
	ErrEmpty    = errors.New("password is empty")
	ErrTooLong  = errors.New("password is longer than 72 bytes")
	ErrMismatch = errors.New("password does not match")
	ErrBadHash  = errors.New("stored password hash is malformed")
)

// Hash returns a bcrypt hash of plain. A cost outside bcrypt's range falls
// back to DefaultCost.
func Hash(plain string, cost int) (string, error) {
	if plain == "" {
		return "", ErrEmpty
	}
	if len(plain) > 72 {
		return "", ErrTooLong
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify compares plain against hash.
func Verify(plain, hash string) error {
	if hash == "" {
		return ErrBadHash
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatch
	default:
		return ErrBadHash
	}
}
