package storage

import (
	"net/mail"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"aims-api/internal/models"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72
	maxCourseCredits  = 60
)

// checkPassword enforces the length bounds bcrypt can hash without
// truncation.
func checkPassword(password string) error {
	switch {
	case len(password) < minPasswordLength:
		return invalidf("password must be at least %d characters", minPasswordLength)
	case len(password) > maxPasswordLength:
		return invalidf("password must be at most %d bytes", maxPasswordLength)
	}
	return nil
}

// NormalizeEmail trims and case-folds an address so lookups are insensitive
// to the casing a user typed.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// NormalizeCourseCode trims and upper-cases a course code.
func NormalizeCourseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newUserRecord(params CreateUserParams, id string, now time.Time) (models.User, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.User{}, invalidf("name is required")
	}
	email := NormalizeEmail(params.Email)
	if email == "" {
		return models.User{}, invalidf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, invalidf("invalid email %q", params.Email)
	}
	role := strings.ToLower(strings.TrimSpace(params.Role))
	if role == "" {
		role = models.RoleStudent
	}
	if !models.ValidRole(role) {
		return models.User{}, invalidf("unsupported role %q", params.Role)
	}
	user := models.User{
		ID:        id,
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now.UTC(),
	}
	if params.Password != "" {
		if err := checkPassword(params.Password); err != nil {
			return models.User{}, err
		}
		hashed, err := HashPassword(params.Password)
		if err != nil {
			return models.User{}, err
		}
		user.PasswordHash = hashed
	}
	return user, nil
}

func newCourseRecord(params CreateCourseParams, id string, now time.Time) (models.Course, error) {
	code := NormalizeCourseCode(params.Code)
	if code == "" {
		return models.Course{}, invalidf("course code is required")
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Course{}, invalidf("course title is required")
	}
	if params.Credits < 0 || params.Credits > maxCourseCredits {
		return models.Course{}, invalidf("credits must be between 0 and %d", maxCourseCredits)
	}
	return models.Course{
		ID:          id,
		Code:        code,
		Title:       title,
		Description: strings.TrimSpace(params.Description),
		Instructor:  strings.TrimSpace(params.Instructor),
		Credits:     params.Credits,
		CreatedAt:   now.UTC(),
	}, nil
}

func newHelpRequestRecord(params CreateHelpRequestParams, id string, now time.Time) (models.HelpRequest, error) {
	userID := strings.TrimSpace(params.UserID)
	if userID == "" {
		return models.HelpRequest{}, invalidf("user id is required")
	}
	subject := strings.TrimSpace(params.Subject)
	if subject == "" {
		return models.HelpRequest{}, invalidf("subject is required")
	}
	message := strings.TrimSpace(params.Message)
	if message == "" {
		return models.HelpRequest{}, invalidf("message is required")
	}
	return models.HelpRequest{
		ID:        id,
		UserID:    userID,
		Subject:   subject,
		Message:   message,
		Status:    models.HelpStatusOpen,
		CreatedAt: now.UTC(),
	}, nil
}

func normalizeRole(role string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(role))
	if !models.ValidRole(normalized) {
		return "", invalidf("unsupported role %q", role)
	}
	return normalized, nil
}

func sortUsers(users []models.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
}

func sortCourses(courses []models.Course) {
	sort.Slice(courses, func(i, j int) bool {
		return courses[i].Code < courses[j].Code
	})
}

func sortHelpRequests(requests []models.HelpRequest) {
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID < requests[j].ID
		}
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
}
