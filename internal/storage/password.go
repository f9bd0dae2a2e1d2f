package storage

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// passwordCost is the bcrypt work factor for new hashes. Existing hashes keep
// the cost they were created with.
var passwordCost = bcrypt.DefaultCost

// HashPassword returns a salted bcrypt hash of password. Passwords longer than
// 72 bytes are rejected rather than silently truncated.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword returns ErrInvalidCredentials when candidate does not match
// hashed, and a plain error when hashed is not a bcrypt hash at all.
func VerifyPassword(hashed, candidate string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(candidate))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("verify password: %w", err)
	}
}
