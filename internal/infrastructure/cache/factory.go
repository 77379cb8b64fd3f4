package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to Redis and pings it
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// DedupStoreFactory picks the dedup store for the configured deployment
type DedupStoreFactory struct {
	redisConfig   config.RedisConfig
	logger        *zap.Logger
	allowFallback bool
}

// FactoryOption configures a DedupStoreFactory
type FactoryOption func(*DedupStoreFactory)

// WithLogger sets the factory logger
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *DedupStoreFactory) { f.logger = logger }
}

// WithMemoryFallback controls whether an unreachable Redis falls back to
// the in-process store (default true)
func WithMemoryFallback(allow bool) FactoryOption {
	return func(f *DedupStoreFactory) { f.allowFallback = allow }
}

// NewDedupStoreFactory creates a factory
func NewDedupStoreFactory(cfg config.RedisConfig, opts ...FactoryOption) *DedupStoreFactory {
	f := &DedupStoreFactory{
		redisConfig:   cfg,
		logger:        zap.NewNop(),
		allowFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns a Redis store when Redis is enabled and reachable,
// otherwise the in-memory store if fallback is allowed
func (f *DedupStoreFactory) CreateStore(ctx context.Context) (shared.IdempotencyStore, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory dedup store")
		return NewMemoryDedupStore(0), nil
	}

	client, err := NewRedisClient(ctx, f.redisConfig)
	if err == nil {
		f.logger.Info("Using Redis dedup store", zap.String("addr", f.redisConfig.Addr()))
		store := NewRedisDedupStore(client, f.redisConfig.KeyPrefix)
		store.ownClient = true
		return store, nil
	}
	if !f.allowFallback {
		return nil, fmt.Errorf("redis required for dedup but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory dedup store; duplicates across terminals will not be suppressed",
		zap.Error(err),
	)
	return NewMemoryDedupStore(0), nil
}
