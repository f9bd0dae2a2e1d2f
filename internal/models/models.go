package models

import "time"

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

const (
	HelpStatusOpen     = "open"
	HelpStatusResolved = "resolved"
)

// User is an account able to sign in to the portal. PasswordHash is never
// serialised to API clients.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Course is a catalogue entry. Code is unique across the catalogue.
type Course struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Instructor  string    `json:"instructor"`
	Credits     int       `json:"credits"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HelpRequest is a support ticket raised by a user.
type HelpRequest struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Subject    string     `json:"subject"`
	Message    string     `json:"message"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// ValidRole reports whether role is one of the known account roles.
func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleAdmin:
		return true
	default:
		return false
	}
}
