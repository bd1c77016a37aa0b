package redis

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/nerrad567/authgate/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), config.RedisConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Live(t *testing.T) {
	addr := os.Getenv("AUTHGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AUTHGATE_TEST_REDIS_ADDR not set")
	}

	c, err := Connect(context.Background(), config.RedisConfig{Enabled: true, Addr: addr})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close() //nolint:errcheck // test cleanup

	if c.KeyPrefix() != DefaultKeyPrefix {
		t.Errorf("KeyPrefix() = %q, want default", c.KeyPrefix())
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
