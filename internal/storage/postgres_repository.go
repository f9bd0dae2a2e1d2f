package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"aims-api/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresRepository stores records in Postgres through a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
	s    settings
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository opens a pool for dsn, pings the server and creates
// any missing tables. The pool is closed again when any step fails.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (*PostgresRepository, error) {
	s := newSettings(opts)
	poolCfg, err := s.poolConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensurePostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresRepository{pool: pool, s: s}, nil
}

// poolConfig parses dsn and layers the pool tunables on top. Unset tunables
// keep whatever the DSN or pgxpool defaults say.
func (s settings) poolConfig(dsn string) (*pgxpool.Config, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if s.pgMaxConns > 0 {
		cfg.MaxConns = s.pgMaxConns
	}
	if s.pgMinConns > 0 {
		cfg.MinConns = s.pgMinConns
	}
	if s.pgMaxConnLifetime > 0 {
		cfg.MaxConnLifetime = s.pgMaxConnLifetime
	}
	if s.pgMaxConnIdle > 0 {
		cfg.MaxConnIdleTime = s.pgMaxConnIdle
	}
	if s.pgHealthEvery > 0 {
		cfg.HealthCheckPeriod = s.pgHealthEvery
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = s.pgAppName
	return cfg, nil
}

// Pool exposes the underlying pool so collaborators such as the session
// store can share connections.
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *PostgresRepository) Driver() string {
	return DriverPostgres
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return ErrClosed
	}
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *PostgresRepository) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.pool.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM users),
	(SELECT COUNT(*) FROM courses),
	(SELECT COUNT(*) FROM help_requests)
`).Scan(&stats.Users, &stats.Courses, &stats.HelpRequests)
	if err != nil {
		return Stats{}, fmt.Errorf("count records: %w", err)
	}
	return stats, nil
}

const userColumns = `id, name, email, password_hash, role, created_at`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
		return models.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	user, err := newUserRecord(params, r.s.newID(), r.s.now())
	if err != nil {
		return models.User{}, err
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES ($1, $2, $3, $4, $5, $6)
`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("user %s: %w", user.Email, ErrConflict)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return models.User{}, notFoundOr(err, "user %s", id)
	}
	return user, nil
}

func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	normalized := NormalizeEmail(email)
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalized))
	if err != nil {
		return models.User{}, notFoundOr(err, "user %s", normalized)
	}
	return user, nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *PostgresRepository) SetUserRole(ctx context.Context, id, role string) (models.User, error) {
	normalized, err := normalizeRole(role)
	if err != nil {
		return models.User{}, err
	}
	user, err := scanUser(r.pool.QueryRow(ctx, `
UPDATE users SET role = $2 WHERE id = $1
RETURNING `+userColumns, id, normalized))
	if err != nil {
		return models.User{}, notFoundOr(err, "user %s", id)
	}
	return user, nil
}

func (r *PostgresRepository) SetUserPassword(ctx context.Context, id, password string) (models.User, error) {
	if err := checkPassword(password); err != nil {
		return models.User{}, err
	}
	hashed, err := HashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := scanUser(r.pool.QueryRow(ctx, `
UPDATE users SET password_hash = $2 WHERE id = $1
RETURNING `+userColumns, id, hashed))
	if err != nil {
		return models.User{}, notFoundOr(err, "user %s", id)
	}
	return user, nil
}

const courseColumns = `id, code, title, description, instructor, credits, created_at`

func scanCourse(row pgx.Row) (models.Course, error) {
	var course models.Course
	if err := row.Scan(&course.ID, &course.Code, &course.Title, &course.Description, &course.Instructor, &course.Credits, &course.CreatedAt); err != nil {
		return models.Course{}, err
	}
	course.CreatedAt = course.CreatedAt.UTC()
	return course, nil
}

func (r *PostgresRepository) CreateCourse(ctx context.Context, params CreateCourseParams) (models.Course, error) {
	course, err := newCourseRecord(params, r.s.newID(), r.s.now())
	if err != nil {
		return models.Course{}, err
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO courses (`+courseColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, course.ID, course.Code, course.Title, course.Description, course.Instructor, course.Credits, course.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Course{}, fmt.Errorf("course %s: %w", course.Code, ErrConflict)
		}
		return models.Course{}, fmt.Errorf("insert course: %w", err)
	}
	return course, nil
}

func (r *PostgresRepository) GetCourse(ctx context.Context, id string) (models.Course, error) {
	course, err := scanCourse(r.pool.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
	if err != nil {
		return models.Course{}, notFoundOr(err, "course %s", id)
	}
	return course, nil
}

func (r *PostgresRepository) ListCourses(ctx context.Context) ([]models.Course, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()
	courses := make([]models.Course, 0)
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

func (r *PostgresRepository) DeleteCourse(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	return nil
}

const helpColumns = `id, user_id, subject, message, status, created_at, resolved_at`

func scanHelpRequest(row pgx.Row) (models.HelpRequest, error) {
	var (
		request    models.HelpRequest
		resolvedAt *time.Time
	)
	if err := row.Scan(&request.ID, &request.UserID, &request.Subject, &request.Message, &request.Status, &request.CreatedAt, &resolvedAt); err != nil {
		return models.HelpRequest{}, err
	}
	request.CreatedAt = request.CreatedAt.UTC()
	if resolvedAt != nil {
		utc := resolvedAt.UTC()
		request.ResolvedAt = &utc
	}
	return request, nil
}

func (r *PostgresRepository) CreateHelpRequest(ctx context.Context, params CreateHelpRequestParams) (models.HelpRequest, error) {
	request, err := newHelpRequestRecord(params, r.s.newID(), r.s.now())
	if err != nil {
		return models.HelpRequest{}, err
	}
	tag, err := r.pool.Exec(ctx, `
INSERT INTO help_requests (`+helpColumns+`)
SELECT $1::text, id, $3::text, $4::text, $5::text, $6::timestamptz, NULL::timestamptz FROM users WHERE id = $2
`, request.ID, request.UserID, request.Subject, request.Message, request.Status, request.CreatedAt)
	if err != nil {
		return models.HelpRequest{}, fmt.Errorf("insert help request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.HelpRequest{}, fmt.Errorf("user %s: %w", request.UserID, ErrNotFound)
	}
	return request, nil
}

func (r *PostgresRepository) GetHelpRequest(ctx context.Context, id string) (models.HelpRequest, error) {
	request, err := scanHelpRequest(r.pool.QueryRow(ctx, `SELECT `+helpColumns+` FROM help_requests WHERE id = $1`, id))
	if err != nil {
		return models.HelpRequest{}, notFoundOr(err, "help request %s", id)
	}
	return request, nil
}

func (r *PostgresRepository) ListHelpRequests(ctx context.Context, userID string) ([]models.HelpRequest, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if userID == "" {
		rows, err = r.pool.Query(ctx, `SELECT `+helpColumns+` FROM help_requests ORDER BY created_at DESC, id`)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+helpColumns+` FROM help_requests WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list help requests: %w", err)
	}
	defer rows.Close()
	requests := make([]models.HelpRequest, 0)
	for rows.Next() {
		request, err := scanHelpRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan help request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list help requests: %w", err)
	}
	return requests, nil
}

func (r *PostgresRepository) ResolveHelpRequest(ctx context.Context, id string) (models.HelpRequest, error) {
	request, err := scanHelpRequest(r.pool.QueryRow(ctx, `
UPDATE help_requests
SET status = $2, resolved_at = COALESCE(resolved_at, $3::timestamptz)
WHERE id = $1
RETURNING `+helpColumns, id, models.HelpStatusResolved, r.s.now().UTC()))
	if err != nil {
		return models.HelpRequest{}, notFoundOr(err, "help request %s", id)
	}
	return request, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func notFoundOr(err error, format string, args ...any) error {
	subject := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", subject, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", subject, err)
}
