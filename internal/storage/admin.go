package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aims-api/internal/models"
)

// EnsureAdmin creates an administrator account for email, or promotes and
// resets the password of the existing account with that address. The boolean
// reports whether a new account was created.
func EnsureAdmin(ctx context.Context, repo Repository, email, name, password string) (models.User, bool, error) {
	if repo == nil {
		return models.User{}, false, fmt.Errorf("repository is required")
	}
	if strings.TrimSpace(email) == "" {
		return models.User{}, false, invalidf("admin email is required")
	}
	if err := checkPassword(password); err != nil {
		return models.User{}, false, err
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}

	existing, err := repo.FindUserByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		user, err := repo.CreateUser(ctx, CreateUserParams{
			Name:     name,
			Email:    email,
			Password: password,
			Role:     models.RoleAdmin,
		})
		if err != nil {
			return models.User{}, false, err
		}
		return user, true, nil
	case err != nil:
		return models.User{}, false, err
	}

	if existing.Role != models.RoleAdmin {
		if _, err := repo.SetUserRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return models.User{}, false, err
		}
	}
	updated, err := repo.SetUserPassword(ctx, existing.ID, password)
	if err != nil {
		return models.User{}, false, err
	}
	return updated, false, nil
}
