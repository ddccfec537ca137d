package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list completion events are appended to.
const DefaultRedisKey = "uplink:completed"

// RedisConfig configures the Redis completion feed.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	PoolSize int
	Timeout  time.Duration
}

type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisNotifier appends each completion as JSON to a Redis list, for
// downstream processors to consume with BLPOP.
type RedisNotifier struct {
	client  listPusher
	key     string
	timeout time.Duration
	closer  func() error
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisNotifier, error) {
	setRedisDefaults(&cfg)
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	n := newRedisNotifier(client, cfg.Key, cfg.Timeout)
	n.closer = client.Close
	return n, nil
}

func newRedisNotifier(client listPusher, key string, timeout time.Duration) *RedisNotifier {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisNotifier{client: client, key: key, timeout: timeout}
}

func setRedisDefaults(c *RedisConfig) {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.Key == "" {
		c.Key = DefaultRedisKey
	}
	if c.PoolSize == 0 {
		c.PoolSize = 4
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
}

// Key reports the list events are pushed to.
func (n *RedisNotifier) Key() string { return n.key }

func (n *RedisNotifier) Notify(ctx context.Context, c Completion) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	if err := n.client.RPush(ctx, n.key, payload).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", n.key, err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (n *RedisNotifier) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer()
}
