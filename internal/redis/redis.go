package redis

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"github.com/k-avy/weatherCli/internal/config"
)

const pingTimeout = 3 * time.Second

// NewClient returns a client for cfg.Addr. Callers own the client and must
// Close it.
func NewClient(cfg config.RedisConfig) *redisv9.Client {
	return redisv9.NewClient(&redisv9.Options{
		Addr: cfg.Addr,
	})
}

// Connect creates a client and checks that the server answers.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redisv9.Client, error) {
	client := NewClient(cfg)
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
