package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/authgate/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPingTimeout    = 2 * time.Second

	// DefaultKeyPrefix is used when redis.key_prefix is empty.
	DefaultKeyPrefix = "authgate:"
)

// Client is a go-redis client bound to a key prefix.
type Client struct {
	*goredis.Client
	prefix string
}

// Connect dials Redis and verifies it with a ping.
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the ping error
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // connection never became usable
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Client{Client: rdb, prefix: prefix}, nil
}

// KeyPrefix returns the namespace for every authgate key.
func (c *Client) KeyPrefix() string {
	return c.prefix
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}
