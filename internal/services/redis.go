package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrThrottled is returned when a client exceeds its turn budget.
var ErrThrottled = errors.New("too many turns")

// Throttle limits how many turns a client may request per window.
type Throttle interface {
	Allow(ctx context.Context, clientID string) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisThrottle is a fixed-window counter kept in Redis.
type RedisThrottle struct {
	client *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

var _ Throttle = (*RedisThrottle)(nil)

const throttleKeyPrefix = "divergence:turns:"

// NewRedisThrottle creates a throttle from a redis:// URL or a bare host:port.
func NewRedisThrottle(redisURL string, perMinute int, logger *slog.Logger) *RedisThrottle {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	return &RedisThrottle{
		client: redis.NewClient(opts),
		limit:  int64(perMinute),
		window: time.Minute,
		now:    time.Now,
		logger: logger,
	}
}

// Allow counts one turn for clientID and fails with ErrThrottled once the
// window's budget is spent.
func (r *RedisThrottle) Allow(ctx context.Context, clientID string) error {
	bucket := r.now().Unix() / int64(r.window.Seconds())
	key := fmt.Sprintf("%s%s:%d", throttleKeyPrefix, clientID, bucket)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis throttle failed: %w", err)
	}

	if n := incr.Val(); n > r.limit {
		r.logger.Debug("Turn throttled", "client", clientID, "count", n, "limit", r.limit)
		return ErrThrottled
	}
	return nil
}

func (r *RedisThrottle) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	r.logger.Debug("Redis ping successful", "result", cmd.Val())
	return nil
}

func (r *RedisThrottle) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}

	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection pings until Redis answers or ctx ends.
func (r *RedisThrottle) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		err := r.Ping(ctx)
		if err == nil {
			r.logger.Info("Redis connection established")
			return nil
		}
		r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
		case <-time.After(retryDelay):
		}
	}

	return fmt.Errorf("redis not available after %d attempts", maxRetries)
}
