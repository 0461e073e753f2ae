package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"github.com/tonkeeper/analytics/event"
)

// DefaultRedisKey is the list batches are pushed to when no key is given.
const DefaultRedisKey = "analytics:events"

// RedisChannel pushes every batch as one JSON document onto a Redis list,
// for consumers that pop batches with BLPOP.
type RedisChannel struct {
	client redis.UniversalClient
	key    string
}

// NewRedisChannel parses a redis:// URI, connects and pings the server.
func NewRedisChannel(ctx context.Context, uri, key string) (*RedisChannel, error) {
	log := logrus.WithField("prefix", "NewRedisChannel")

	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URI: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Debug("redis ping failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	log.WithField("addr", opts.Addr).Info("connected to redis")
	return NewRedisChannelFromClient(client, key), nil
}

// NewRedisChannelFromClient wraps an existing client.
func NewRedisChannelFromClient(client redis.UniversalClient, key string) *RedisChannel {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisChannel{client: client, key: key}
}

// Key returns the list name.
func (c *RedisChannel) Key() string {
	return c.key
}

// Send pushes the encoded batch with RPUSH.
func (c *RedisChannel) Send(ctx context.Context, batch event.Batch) error {
	if len(batch) == 0 {
		return nil
	}
	payload, err := batch.Encode()
	if err != nil {
		return transportError("failed to marshal analytics batch", err)
	}
	if err := c.client.RPush(ctx, c.key, payload).Err(); err != nil {
		return transportError("failed to push analytics batch", err)
	}
	return nil
}

// HealthCheck pings the server.
func (c *RedisChannel) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *RedisChannel) Close() error {
	return c.client.Close()
}
