package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"sensorstream/internal/common/config"
)

const (
	dialTimeout = 3 * time.Second
	ioTimeout   = 2 * time.Second
	pingTimeout = 3 * time.Second
)

// Client aliases the go-redis client.
type Client = redis.Client

// NewRedisClient builds a client from cfg. Forwarding runs on the ingest path,
// so dial and I/O timeouts are kept short.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		MaxRetries:   1,
	})
}

// Connect builds a client and checks that it answers PING. The client is
// closed when the check fails.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := NewRedisClient(cfg)
	if err := Ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Ping checks the connection, bounded by pingTimeout.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

// Close closes client if it is not nil.
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
