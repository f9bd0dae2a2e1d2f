package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"aims-api/internal/models"
	"aims-api/internal/storage"
)

// Authenticator verifies login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (models.User, error)
}

// UserFinder is the slice of the repository an authenticator needs.
type UserFinder interface {
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
}

// PasswordAuthenticator checks email/password pairs against stored PBKDF2
// hashes. Unknown emails and wrong passwords both yield
// storage.ErrInvalidCredentials.
type PasswordAuthenticator struct {
	Users UserFinder
}

var (
	decoyOnce sync.Once
	decoyHash string
)

// decoy is verified for unknown accounts so the response time does not reveal
// whether an email is registered.
func decoy() string {
	decoyOnce.Do(func() {
		decoyHash, _ = storage.HashPassword("aims-decoy-password")
	})
	return decoyHash
}

func (a PasswordAuthenticator) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	if a.Users == nil {
		return models.User{}, fmt.Errorf("authenticator has no user source")
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return models.User{}, storage.ErrInvalidCredentials
	}
	user, err := a.Users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = storage.VerifyPassword(decoy(), password)
			return models.User{}, storage.ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if user.PasswordHash == "" {
		return models.User{}, storage.ErrInvalidCredentials
	}
	if err := storage.VerifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) {
			return models.User{}, storage.ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("verify password: %w", err)
	}
	return user, nil
}
