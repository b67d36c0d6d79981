package height

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"docregistry/internal/config"
)

// DefaultKey is the Redis key the ledger publishes its height under.
const DefaultKey = "ledger:height"

// RedisProvider reads the ledger height from a Redis key. A missing key reads as height 0.
type RedisProvider struct {
	client *redis.Client
	key    string
}

// NewRedisClient builds a go-redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisProvider creates a provider reading key (DefaultKey when empty).
func NewRedisProvider(client *redis.Client, key string) *RedisProvider {
	if key == "" {
		key = DefaultKey
	}
	return &RedisProvider{client: client, key: key}
}

func (p *RedisProvider) Current(ctx context.Context) (uint64, error) {
	v, err := p.client.Get(ctx, p.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read height: %w", err)
	}
	h, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse height %q: %w", v, err)
	}
	return h, nil
}

// Advance increments the stored height by one. It is used by local tooling standing in for the ledger.
func (p *RedisProvider) Advance(ctx context.Context) (uint64, error) {
	v, err := p.client.Incr(ctx, p.key).Result()
	if err != nil {
		return 0, fmt.Errorf("advance height: %w", err)
	}
	return uint64(v), nil
}
