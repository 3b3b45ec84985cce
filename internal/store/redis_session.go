package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/redis/go-redis/v9"
)

const redisSessionKeyPrefix = "interviewpipe:session:"

// RedisSessionStore keeps sessions in Redis and lets key expiry enforce the TTL.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

var _ SessionRepo = (*RedisSessionStore)(nil)

// NewRedisSessionStore wraps an existing client.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: redisSessionKeyPrefix}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisSessionStore) key(subjectID string) string {
	return r.prefix + subjectID
}

// SaveSession writes the session with a key TTL matching its expiry.
func (r *RedisSessionStore) SaveSession(ctx context.Context, session models.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := r.client.Set(ctx, r.key(session.SubjectID), data, ttl).Err(); err != nil {
		slog.Error("RedisSessionStore.SaveSession failed", "error", err, "subjectID", session.SubjectID)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession returns nil, nil when the key is absent or has expired.
func (r *RedisSessionStore) GetSession(ctx context.Context, subjectID string) (*models.Session, error) {
	data, err := r.client.Get(ctx, r.key(subjectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisSessionStore.GetSession failed", "error", err, "subjectID", subjectID)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		slog.Error("RedisSessionStore.GetSession: corrupt session dropped", "error", err, "subjectID", subjectID)
		_ = r.client.Del(ctx, r.key(subjectID)).Err()
		return nil, nil
	}
	return &session, nil
}

func (r *RedisSessionStore) DeleteSession(ctx context.Context, subjectID string) error {
	if err := r.client.Del(ctx, r.key(subjectID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions is a no-op; Redis evicts expired keys itself.
func (r *RedisSessionStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// sessionOverlay routes session calls to a separate repo and everything else to the base store.
type sessionOverlay struct {
	Store
	sessions SessionRepo
}

// WithSessionRepo returns a Store whose session operations go to sessions.
func WithSessionRepo(base Store, sessions SessionRepo) Store {
	if sessions == nil {
		return base
	}
	return &sessionOverlay{Store: base, sessions: sessions}
}

func (o *sessionOverlay) SaveSession(ctx context.Context, s models.Session) error {
	return o.sessions.SaveSession(ctx, s)
}

func (o *sessionOverlay) GetSession(ctx context.Context, subjectID string) (*models.Session, error) {
	return o.sessions.GetSession(ctx, subjectID)
}

func (o *sessionOverlay) DeleteSession(ctx context.Context, subjectID string) error {
	return o.sessions.DeleteSession(ctx, subjectID)
}

func (o *sessionOverlay) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	return o.sessions.DeleteExpiredSessions(ctx, now)
}
