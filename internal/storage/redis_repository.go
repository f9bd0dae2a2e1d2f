package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"aims-api/internal/models"
)

const maxWatchRetries = 8

// RedisRepository stores records as JSON documents in redis with set based
// indexes for listing and secondary lookups.
type RedisRepository struct {
	client *redis.Client
	s      settings
}

var _ Repository = (*RedisRepository)(nil)

// NewRedisRepository connects to the redis server at a redis:// or rediss://
// URL and verifies it answers PING.
func NewRedisRepository(ctx context.Context, addr string, opts ...Option) (*RedisRepository, error) {
	s := newSettings(opts)
	redisOpts, err := redis.ParseURL(strings.TrimSpace(addr))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if s.redisPoolSize > 0 {
		redisOpts.PoolSize = s.redisPoolSize
	}
	redisOpts.MaxRetries = 2
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisRepository{client: client, s: s}, nil
}

// Client exposes the underlying client so the session store can share it.
func (r *RedisRepository) Client() *redis.Client {
	return r.client
}

// KeyPrefix reports the namespace applied to every key.
func (r *RedisRepository) KeyPrefix() string {
	return r.s.redisKeyPrefix
}

func (r *RedisRepository) key(parts ...string) string {
	return r.s.redisKeyPrefix + strings.Join(parts, ":")
}

func (r *RedisRepository) Driver() string {
	return DriverRedis
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return ErrClosed
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close(context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	if err := r.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func (r *RedisRepository) Stats(ctx context.Context) (Stats, error) {
	var users, courses, help *redis.IntCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		users = pipe.SCard(ctx, r.key("users"))
		courses = pipe.SCard(ctx, r.key("courses"))
		help = pipe.SCard(ctx, r.key("help"))
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("count records: %w", err)
	}
	return Stats{Users: users.Val(), Courses: courses.Val(), HelpRequests: help.Val()}, nil
}

func (r *RedisRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	user, err := newUserRecord(params, r.s.newID(), r.s.now())
	if err != nil {
		return models.User{}, err
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return models.User{}, fmt.Errorf("encode user: %w", err)
	}
	emailKey := r.key("user-email", user.Email)
	claimed, err := r.client.SetNX(ctx, emailKey, user.ID, 0).Result()
	if err != nil {
		return models.User{}, fmt.Errorf("reserve email: %w", err)
	}
	if !claimed {
		return models.User{}, fmt.Errorf("user %s: %w", user.Email, ErrConflict)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key("user", user.ID), payload, 0)
		pipe.SAdd(ctx, r.key("users"), user.ID)
		return nil
	})
	if err != nil {
		r.client.Del(context.WithoutCancel(ctx), emailKey)
		return models.User{}, fmt.Errorf("store user: %w", err)
	}
	return user, nil
}

func (r *RedisRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	var user models.User
	if err := r.getJSON(ctx, r.key("user", id), &user); err != nil {
		return models.User{}, wrapSubject(err, "user %s", id)
	}
	return user, nil
}

func (r *RedisRepository) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	normalized := NormalizeEmail(email)
	id, err := r.client.Get(ctx, r.key("user-email", normalized)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.User{}, fmt.Errorf("user %s: %w", normalized, ErrNotFound)
		}
		return models.User{}, fmt.Errorf("lookup email: %w", err)
	}
	return r.GetUser(ctx, id)
}

func (r *RedisRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	payloads, err := r.listPayloads(ctx, r.key("users"), "user")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]models.User, 0, len(payloads))
	for _, payload := range payloads {
		var user models.User
		if err := json.Unmarshal(payload, &user); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		users = append(users, user)
	}
	sortUsers(users)
	return users, nil
}

func (r *RedisRepository) SetUserRole(ctx context.Context, id, role string) (models.User, error) {
	normalized, err := normalizeRole(role)
	if err != nil {
		return models.User{}, err
	}
	var user models.User
	err = r.updateJSON(ctx, r.key("user", id), &user, func() error {
		user.Role = normalized
		return nil
	})
	if err != nil {
		return models.User{}, wrapSubject(err, "user %s", id)
	}
	return user, nil
}

func (r *RedisRepository) SetUserPassword(ctx context.Context, id, password string) (models.User, error) {
	if err := checkPassword(password); err != nil {
		return models.User{}, err
	}
	hashed, err := HashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	var user models.User
	err = r.updateJSON(ctx, r.key("user", id), &user, func() error {
		user.PasswordHash = hashed
		return nil
	})
	if err != nil {
		return models.User{}, wrapSubject(err, "user %s", id)
	}
	return user, nil
}

func (r *RedisRepository) CreateCourse(ctx context.Context, params CreateCourseParams) (models.Course, error) {
	course, err := newCourseRecord(params, r.s.newID(), r.s.now())
	if err != nil {
		return models.Course{}, err
	}
	payload, err := json.Marshal(course)
	if err != nil {
		return models.Course{}, fmt.Errorf("encode course: %w", err)
	}
	codeKey := r.key("course-code", course.Code)
	claimed, err := r.client.SetNX(ctx, codeKey, course.ID, 0).Result()
	if err != nil {
		return models.Course{}, fmt.Errorf("reserve course code: %w", err)
	}
	if !claimed {
		return models.Course{}, fmt.Errorf("course %s: %w", course.Code, ErrConflict)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key("course", course.ID), payload, 0)
		pipe.SAdd(ctx, r.key("courses"), course.ID)
		return nil
	})
	if err != nil {
		r.client.Del(context.WithoutCancel(ctx), codeKey)
		return models.Course{}, fmt.Errorf("store course: %w", err)
	}
	return course, nil
}

func (r *RedisRepository) GetCourse(ctx context.Context, id string) (models.Course, error) {
	var course models.Course
	if err := r.getJSON(ctx, r.key("course", id), &course); err != nil {
		return models.Course{}, wrapSubject(err, "course %s", id)
	}
	return course, nil
}

func (r *RedisRepository) ListCourses(ctx context.Context) ([]models.Course, error) {
	payloads, err := r.listPayloads(ctx, r.key("courses"), "course")
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	courses := make([]models.Course, 0, len(payloads))
	for _, payload := range payloads {
		var course models.Course
		if err := json.Unmarshal(payload, &course); err != nil {
			return nil, fmt.Errorf("decode course: %w", err)
		}
		courses = append(courses, course)
	}
	sortCourses(courses)
	return courses, nil
}

func (r *RedisRepository) DeleteCourse(ctx context.Context, id string) error {
	course, err := r.GetCourse(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key("course", course.ID), r.key("course-code", course.Code))
		pipe.SRem(ctx, r.key("courses"), course.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

func (r *RedisRepository) CreateHelpRequest(ctx context.Context, params CreateHelpRequestParams) (models.HelpRequest, error) {
	request, err := newHelpRequestRecord(params, r.s.newID(), r.s.now())
	if err != nil {
		return models.HelpRequest{}, err
	}
	exists, err := r.client.Exists(ctx, r.key("user", request.UserID)).Result()
	if err != nil {
		return models.HelpRequest{}, fmt.Errorf("lookup user: %w", err)
	}
	if exists == 0 {
		return models.HelpRequest{}, fmt.Errorf("user %s: %w", request.UserID, ErrNotFound)
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return models.HelpRequest{}, fmt.Errorf("encode help request: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key("help", request.ID), payload, 0)
		pipe.SAdd(ctx, r.key("help"), request.ID)
		pipe.SAdd(ctx, r.key("help-user", request.UserID), request.ID)
		return nil
	})
	if err != nil {
		return models.HelpRequest{}, fmt.Errorf("store help request: %w", err)
	}
	return request, nil
}

func (r *RedisRepository) GetHelpRequest(ctx context.Context, id string) (models.HelpRequest, error) {
	var request models.HelpRequest
	if err := r.getJSON(ctx, r.key("help", id), &request); err != nil {
		return models.HelpRequest{}, wrapSubject(err, "help request %s", id)
	}
	return request, nil
}

func (r *RedisRepository) ListHelpRequests(ctx context.Context, userID string) ([]models.HelpRequest, error) {
	index := r.key("help")
	if userID != "" {
		index = r.key("help-user", userID)
	}
	payloads, err := r.listPayloads(ctx, index, "help")
	if err != nil {
		return nil, fmt.Errorf("list help requests: %w", err)
	}
	requests := make([]models.HelpRequest, 0, len(payloads))
	for _, payload := range payloads {
		var request models.HelpRequest
		if err := json.Unmarshal(payload, &request); err != nil {
			return nil, fmt.Errorf("decode help request: %w", err)
		}
		requests = append(requests, request)
	}
	sortHelpRequests(requests)
	return requests, nil
}

func (r *RedisRepository) ResolveHelpRequest(ctx context.Context, id string) (models.HelpRequest, error) {
	now := r.s.now().UTC()
	var request models.HelpRequest
	err := r.updateJSON(ctx, r.key("help", id), &request, func() error {
		request.Status = models.HelpStatusResolved
		if request.ResolvedAt == nil {
			request.ResolvedAt = &now
		}
		return nil
	})
	if err != nil {
		return models.HelpRequest{}, wrapSubject(err, "help request %s", id)
	}
	return request, nil
}

func (r *RedisRepository) getJSON(ctx context.Context, key string, dest any) error {
	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// updateJSON loads the document at key into dest, applies mutate and writes
// it back inside a WATCH transaction, retrying when another writer races.
func (r *RedisRepository) updateJSON(ctx context.Context, key string, dest any, mutate func() error) error {
	txf := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		if err := json.Unmarshal(payload, dest); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if err := mutate(); err != nil {
			return err
		}
		updated, err := json.Marshal(dest)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: too much contention", key)
}

// listPayloads resolves every id in the set at index to its stored document.
// Ids whose document has vanished are skipped.
func (r *RedisRepository) listPayloads(ctx context.Context, index, kind string) ([][]byte, error) {
	ids, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(kind, id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	payloads := make([][]byte, 0, len(values))
	for _, value := range values {
		text, ok := value.(string)
		if !ok {
			continue
		}
		payloads = append(payloads, []byte(text))
	}
	return payloads, nil
}

func wrapSubject(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
