package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cassa/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces dedup keys in Redis
const DefaultKeyPrefix = "cassa:dedup:"

// RedisDedupStore shares dedup windows between terminals with SET NX + TTL
type RedisDedupStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ownClient bool
}

// NewRedisDedupStore wraps an existing client. Close leaves the client open.
func NewRedisDedupStore(client redis.UniversalClient, keyPrefix string) *RedisDedupStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisDedupStore{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed implements shared.IdempotencyStore
func (s *RedisDedupStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark dedup key: %w", err)
	}
	return ok, nil
}

// IsProcessed implements shared.IdempotencyStore
func (s *RedisDedupStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}
	return n > 0, nil
}

// Close closes the client when the store created it
func (s *RedisDedupStore) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}

var _ shared.IdempotencyStore = (*RedisDedupStore)(nil)
