package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := Verify("s3cret", hash); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := Verify("wrong", hash); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestHashRejects(t *testing.T) {
	if _, err := Hash("", bcrypt.MinCost); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := Hash(strings.Repeat("a", 73), bcrypt.MinCost); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func TestVerifyBadHash(t *testing.T) {
	for _, hash := range []string{"", "not-a-bcrypt-hash"} {
		if err := Verify("s3cret", hash); !errors.Is(err, ErrBadHash) {
			t.Errorf("%q: expected ErrBadHash, got %v", hash, err)
		}
	}
}
