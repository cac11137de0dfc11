package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/m3rciful/filmbot/core/logger"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "filmbot:session:"

// RedisManager stores JSON-encoded sessions in Redis so they survive restarts and
// can be shared by several bot replicas.
type RedisManager[T any] struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisManager.
type RedisOption func(*redisSettings)

type redisSettings struct {
	prefix string
	ttl    time.Duration
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) RedisOption {
	return func(s *redisSettings) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL sets the expiration for sessions. Zero keeps them until End.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *redisSettings) { s.ttl = ttl }
}

// NewRedisManager creates a Manager on top of an existing client.
func NewRedisManager[T any](client *backend.Client, opts ...RedisOption) *RedisManager[T] {
	settings := redisSettings{prefix: defaultPrefix}
	for _, opt := range opts {
		opt(&settings)
	}
	return &RedisManager[T]{client: client, prefix: settings.prefix, ttl: settings.ttl}
}

// DialRedis opens a client and verifies the server answers.
func DialRedis(ctx context.Context, addr, password string, db int) (*backend.Client, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisManager[T]) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *RedisManager[T]) Load(ctx context.Context, userID int64) (T, bool, error) {
	var zero T
	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, r.fail(ctx, "session.load", userID, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		// An undecodable session is dropped so the user is not stuck in it.
		logger.Warn(ctx, "service.sessions", "session.decode",
			slog.Int64("user_id", userID),
			logger.Err(err),
		)
		_ = r.client.Del(ctx, r.key(userID)).Err()
		return zero, false, nil
	}
	return v, true, nil
}

func (r *RedisManager[T]) Begin(ctx context.Context, userID int64, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(userID), data, r.ttl).Err(); err != nil {
		return r.fail(ctx, "session.begin", userID, err)
	}
	return nil
}

func (r *RedisManager[T]) Save(ctx context.Context, userID int64, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := r.client.SetXX(ctx, r.key(userID), data, r.ttl).Result()
	if err != nil {
		return r.fail(ctx, "session.save", userID, err)
	}
	if !ok {
		return ErrNoSession
	}
	return nil
}

func (r *RedisManager[T]) End(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return r.fail(ctx, "session.end", userID, err)
	}
	return nil
}

func (r *RedisManager[T]) Active(ctx context.Context, userID int64) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(userID)).Result()
	if err != nil {
		return false, r.fail(ctx, "session.active", userID, err)
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (r *RedisManager[T]) Close() error {
	return r.client.Close()
}

func (r *RedisManager[T]) fail(ctx context.Context, event string, userID int64, err error) error {
	logger.Error(ctx, "service.sessions", event,
		slog.String("status", "error"),
		slog.Int64("user_id", userID),
		slog.String("backend", "redis"),
		logger.Err(err),
	)
	return fmt.Errorf("%s: %w", event, err)
}
