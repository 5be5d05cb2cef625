package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"synth-exchange/internal/config"
	apperrors "synth-exchange/internal/errors"
	"synth-exchange/internal/models"
)

// RedisPublisher publishes notifications as JSON on a Redis Pub/Sub channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisClient creates a Redis client from cfg and pings it.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// NewRedisPublisher creates a publisher on channel.
func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (r *RedisPublisher) Name() string    { return "redis" }
func (r *RedisPublisher) IsEnabled() bool { return r.rdb != nil }

// Send publishes the notification.
func (r *RedisPublisher) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(payload(n))
	if err != nil {
		return fmt.Errorf("marshaling redis payload: %w", err)
	}
	return r.publish(ctx, r.channel, body)
}

// PublishQuote publishes a tick quote as JSON on channel.
func (r *RedisPublisher) PublishQuote(ctx context.Context, channel string, q models.Quote) error {
	body, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshaling quote: %w", err)
	}
	return r.publish(ctx, channel, body)
}

func (r *RedisPublisher) publish(ctx context.Context, channel string, body []byte) error {
	if err := r.rdb.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w: %w", channel, apperrors.ErrNotificationFailure, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisPublisher) Close() error {
	return r.rdb.Close()
}
