package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisStore keeps one hash per session under "session:{id}".
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore creates a session store backed by the given redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Create stores a new active session and returns it.
func (s *RedisStore) Create(ctx context.Context, role Role, userID int64, name string) (Session, error) {
	now := s.now().UTC()
	sess := Session{
		ID:         uuid.NewString(),
		Role:       role,
		UserID:     userID,
		Name:       name,
		Status:     StatusActive,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.client.HSet(ctx, keyPrefix+sess.ID, map[string]interface{}{
		"role":         string(sess.Role),
		"user_id":      sess.UserID,
		"name":         sess.Name,
		"status":       string(sess.Status),
		"created_at":   sess.CreatedAt.Format(time.RFC3339Nano),
		"last_seen_at": sess.LastSeenAt.Format(time.RFC3339Nano),
	}).Err(); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get looks up a session by identifier.
func (s *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefix+id).Result()
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	if len(fields) == 0 {
		return Session{}, ErrNotFound
	}
	sess := Session{
		ID:     id,
		Role:   Role(fields["role"]),
		Name:   fields["name"],
		Status: Status(fields["status"]),
	}
	fmt.Sscanf(fields["user_id"], "%d", &sess.UserID)
	if t, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		sess.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["last_seen_at"]); err == nil {
		sess.LastSeenAt = t
	}
	return sess, nil
}

// Touch refreshes the last-seen timestamp of an existing session.
func (s *RedisStore) Touch(ctx context.Context, id string) error {
	n, err := s.client.Exists(ctx, keyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return s.client.HSet(ctx, keyPrefix+id, "last_seen_at", s.now().UTC().Format(time.RFC3339Nano)).Err()
}

// Close marks a session closed. Closing an already-closed session is a no-op.
func (s *RedisStore) Close(ctx context.Context, id string) error {
	n, err := s.client.Exists(ctx, keyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return s.client.HSet(ctx, keyPrefix+id, "status", string(StatusClosed)).Err()
}
