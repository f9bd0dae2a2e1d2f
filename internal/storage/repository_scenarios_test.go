package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"aims-api/internal/models"
)

// RepositoryFactory constructs a repository backed by one of the drivers so
// the same scenarios can be asserted against each of them.
type RepositoryFactory func(t *testing.T, opts ...Option) (Repository, func(), error)

func runRepository(t *testing.T, factory RepositoryFactory, opts ...Option) Repository {
	t.Helper()
	if factory == nil {
		t.Fatal("repository factory is required")
	}
	repo, cleanup, err := factory(t, opts...)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if repo == nil {
		t.Fatal("repository factory returned nil repository")
	}
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	return repo
}

// steppingClock returns a clock that advances one second per call so record
// ordering is deterministic.
func steppingClock(start time.Time) func() time.Time {
	var (
		mu  sync.Mutex
		now = start
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current := now
		now = now.Add(time.Second)
		return current
	}
}

func sequentialIDs(prefix string) func() string {
	var (
		mu   sync.Mutex
		next int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("%s-%03d", prefix, next)
	}
}

func scenarioOptions() []Option {
	return []Option{
		WithClock(steppingClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))),
		WithIDGenerator(sequentialIDs("rec")),
	}
}

func RunRepositoryUserLifecycle(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory, scenarioOptions()...)
	ctx := context.Background()

	created, err := repo.CreateUser(ctx, CreateUserParams{Name: " Ada ", Email: "Ada@Example.COM", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Name != "Ada" || created.Email != "ada@example.com" {
		t.Fatalf("unexpected normalised user %+v", created)
	}
	if created.Role != models.RoleStudent {
		t.Fatalf("expected default role %q, got %q", models.RoleStudent, created.Role)
	}
	if created.PasswordHash == "" {
		t.Fatal("expected password hash to be set")
	}
	if err := VerifyPassword(created.PasswordHash, "correct-horse"); err != nil {
		t.Fatalf("verify password: %v", err)
	}

	if _, err := repo.CreateUser(ctx, CreateUserParams{Name: "Imposter", Email: "ADA@example.com"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}

	found, err := repo.FindUserByEmail(ctx, "  ada@EXAMPLE.com ")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected id %s, got %s", created.ID, found.ID)
	}
	if _, err := repo.FindUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown email, got %v", err)
	}
	if _, err := repo.GetUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	second, err := repo.CreateUser(ctx, CreateUserParams{Name: "Grace", Email: "grace@example.com"})
	if err != nil {
		t.Fatalf("create second user: %v", err)
	}

	promoted, err := repo.SetUserRole(ctx, second.ID, "ADMIN")
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if !promoted.IsAdmin() {
		t.Fatalf("expected admin role, got %q", promoted.Role)
	}
	if _, err := repo.SetUserRole(ctx, second.ID, "owner"); err == nil {
		t.Fatal("expected unsupported role to fail")
	}
	if _, err := repo.SetUserRole(ctx, "missing", models.RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound promoting unknown user, got %v", err)
	}

	updated, err := repo.SetUserPassword(ctx, second.ID, "another-secret")
	if err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := VerifyPassword(updated.PasswordHash, "another-secret"); err != nil {
		t.Fatalf("verify updated password: %v", err)
	}
	if _, err := repo.SetUserPassword(ctx, second.ID, "short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 || users[0].ID != created.ID || users[1].ID != second.ID {
		t.Fatalf("expected users ordered by creation, got %+v", users)
	}
}

func RunRepositoryCourseLifecycle(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory, scenarioOptions()...)
	ctx := context.Background()

	if _, err := repo.CreateCourse(ctx, CreateCourseParams{Title: "No code"}); err == nil {
		t.Fatal("expected missing code to fail")
	}
	if _, err := repo.CreateCourse(ctx, CreateCourseParams{Code: "CS0", Title: "Too many", Credits: 61}); err == nil {
		t.Fatal("expected out of range credits to fail")
	}

	algo, err := repo.CreateCourse(ctx, CreateCourseParams{Code: "cs201", Title: "Algorithms", Credits: 4})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	if algo.Code != "CS201" {
		t.Fatalf("expected upper-cased code, got %q", algo.Code)
	}
	intro, err := repo.CreateCourse(ctx, CreateCourseParams{Code: "CS101", Title: "Intro", Instructor: "Dr. Lee"})
	if err != nil {
		t.Fatalf("create second course: %v", err)
	}
	if _, err := repo.CreateCourse(ctx, CreateCourseParams{Code: "Cs201", Title: "Dup"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate code, got %v", err)
	}

	courses, err := repo.ListCourses(ctx)
	if err != nil {
		t.Fatalf("list courses: %v", err)
	}
	if len(courses) != 2 || courses[0].ID != intro.ID || courses[1].ID != algo.ID {
		t.Fatalf("expected courses ordered by code, got %+v", courses)
	}

	fetched, err := repo.GetCourse(ctx, algo.ID)
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if fetched.Title != "Algorithms" || fetched.Credits != 4 {
		t.Fatalf("unexpected course %+v", fetched)
	}

	if err := repo.DeleteCourse(ctx, algo.ID); err != nil {
		t.Fatalf("delete course: %v", err)
	}
	if err := repo.DeleteCourse(ctx, algo.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
	if _, err := repo.CreateCourse(ctx, CreateCourseParams{Code: "CS201", Title: "Algorithms II"}); err != nil {
		t.Fatalf("expected code to be reusable after delete: %v", err)
	}
}

func RunRepositoryHelpRequestLifecycle(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory, scenarioOptions()...)
	ctx := context.Background()

	alice, err := repo.CreateUser(ctx, CreateUserParams{Name: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := repo.CreateUser(ctx, CreateUserParams{Name: "Bob", Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	if _, err := repo.CreateHelpRequest(ctx, CreateHelpRequestParams{UserID: "ghost", Subject: "Hi", Message: "?"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
	if _, err := repo.CreateHelpRequest(ctx, CreateHelpRequestParams{UserID: alice.ID, Subject: " "}); err == nil {
		t.Fatal("expected empty subject to fail")
	}

	first, err := repo.CreateHelpRequest(ctx, CreateHelpRequestParams{UserID: alice.ID, Subject: "Enrolment", Message: "Cannot enrol"})
	if err != nil {
		t.Fatalf("create help request: %v", err)
	}
	if first.Status != models.HelpStatusOpen || first.ResolvedAt != nil {
		t.Fatalf("expected open request, got %+v", first)
	}
	second, err := repo.CreateHelpRequest(ctx, CreateHelpRequestParams{UserID: alice.ID, Subject: "Grades", Message: "Missing grade"})
	if err != nil {
		t.Fatalf("create second help request: %v", err)
	}
	if _, err := repo.CreateHelpRequest(ctx, CreateHelpRequestParams{UserID: bob.ID, Subject: "Login", Message: "Locked out"}); err != nil {
		t.Fatalf("create bob help request: %v", err)
	}

	mine, err := repo.ListHelpRequests(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list alice requests: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != second.ID || mine[1].ID != first.ID {
		t.Fatalf("expected newest first for alice, got %+v", mine)
	}
	all, err := repo.ListHelpRequests(ctx, "")
	if err != nil {
		t.Fatalf("list all requests: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(all))
	}

	resolved, err := repo.ResolveHelpRequest(ctx, first.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != models.HelpStatusResolved || resolved.ResolvedAt == nil {
		t.Fatalf("expected resolved request, got %+v", resolved)
	}
	again, err := repo.ResolveHelpRequest(ctx, first.ID)
	if err != nil {
		t.Fatalf("resolve twice: %v", err)
	}
	if !again.ResolvedAt.Equal(*resolved.ResolvedAt) {
		t.Fatalf("expected resolution time to be kept, got %v want %v", again.ResolvedAt, resolved.ResolvedAt)
	}
	if _, err := repo.ResolveHelpRequest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound resolving unknown request, got %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Users != 2 || stats.Courses != 0 || stats.HelpRequests != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Total() != 5 {
		t.Fatalf("expected total 5, got %d", stats.Total())
	}
}

func RunRepositoryEnsureAdmin(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory, scenarioOptions()...)
	ctx := context.Background()

	admin, created, err := EnsureAdmin(ctx, repo, "root@example.com", "", "bootstrap-pass")
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if !created || !admin.IsAdmin() || admin.Name != "Administrator" {
		t.Fatalf("expected new admin, got created=%v user=%+v", created, admin)
	}

	student, err := repo.CreateUser(ctx, CreateUserParams{Name: "Student", Email: "student@example.com", Password: "student-pass"})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
	promoted, created, err := EnsureAdmin(ctx, repo, "STUDENT@example.com", "Student", "rotated-pass")
	if err != nil {
		t.Fatalf("promote student: %v", err)
	}
	if created || promoted.ID != student.ID || !promoted.IsAdmin() {
		t.Fatalf("expected existing user promoted, got created=%v user=%+v", created, promoted)
	}
	if err := VerifyPassword(promoted.PasswordHash, "rotated-pass"); err != nil {
		t.Fatalf("expected password rotated: %v", err)
	}

	if _, _, err := EnsureAdmin(ctx, repo, "root@example.com", "Root", "short"); err == nil {
		t.Fatal("expected short admin password to fail")
	}
}

func runRepositoryScenarios(t *testing.T, factory RepositoryFactory) {
	t.Run("Users", func(t *testing.T) { RunRepositoryUserLifecycle(t, factory) })
	t.Run("Courses", func(t *testing.T) { RunRepositoryCourseLifecycle(t, factory) })
	t.Run("HelpRequests", func(t *testing.T) { RunRepositoryHelpRequestLifecycle(t, factory) })
	t.Run("EnsureAdmin", func(t *testing.T) { RunRepositoryEnsureAdmin(t, factory) })
}
