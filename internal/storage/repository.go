package storage

import (
	"context"
	"errors"
	"fmt"

	"aims-api/internal/models"
)

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrClosed             = errors.New("repository closed")
)

// ValidationError reports input rejected before it reached the datastore.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Repository exposes the datastore operations required by the API handlers.
// Implementations are safe for concurrent use.
type Repository interface {
	Driver() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserRole(ctx context.Context, id, role string) (models.User, error)
	SetUserPassword(ctx context.Context, id, password string) (models.User, error)

	CreateCourse(ctx context.Context, params CreateCourseParams) (models.Course, error)
	GetCourse(ctx context.Context, id string) (models.Course, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	DeleteCourse(ctx context.Context, id string) error

	CreateHelpRequest(ctx context.Context, params CreateHelpRequestParams) (models.HelpRequest, error)
	GetHelpRequest(ctx context.Context, id string) (models.HelpRequest, error)
	ListHelpRequests(ctx context.Context, userID string) ([]models.HelpRequest, error)
	ResolveHelpRequest(ctx context.Context, id string) (models.HelpRequest, error)
}

// Stats counts the records held by a repository.
type Stats struct {
	Users        int64 `json:"users"`
	Courses      int64 `json:"courses"`
	HelpRequests int64 `json:"helpRequests"`
}

// Total sums every record count.
func (s Stats) Total() int64 {
	return s.Users + s.Courses + s.HelpRequests
}

type CreateUserParams struct {
	Name     string
	Email    string
	Password string
	Role     string
}

type CreateCourseParams struct {
	Code        string
	Title       string
	Description string
	Instructor  string
	Credits     int
}

type CreateHelpRequestParams struct {
	UserID  string
	Subject string
	Message string
}
