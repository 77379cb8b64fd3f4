package transport

import (
	"context"
	"errors"

	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPubSub is the part of the go-redis client the transport uses
type RedisPubSub interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisTransport broadcasts envelopes on a Redis Pub/Sub channel
type RedisTransport struct {
	client  RedisPubSub
	channel string
	retry   *backoff.ExponentialBackOff
	logger  *zap.Logger
}

// NewRedisTransport creates a Redis Pub/Sub transport on channel
func NewRedisTransport(client RedisPubSub, channel string, retry *backoff.ExponentialBackOff, logger *zap.Logger) *RedisTransport {
	return &RedisTransport{
		client:  client,
		channel: channel,
		retry:   retry,
		logger:  logger.Named("transport.redis").With(zap.String("channel", channel)),
	}
}

// Broadcast publishes data to every subscriber of the channel
func (t *RedisTransport) Broadcast(ctx context.Context, data []byte) error {
	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return shared.NewTransportError("redis publish", err)
	}
	return nil
}

// Run subscribes and feeds sink until ctx is cancelled
func (t *RedisTransport) Run(ctx context.Context, sink Sink) error {
	for {
		err := t.session(ctx, sink)
		if ctx.Err() != nil {
			return nil
		}
		sink.OnDisconnected(shared.NewTransportError("redis subscription lost", err))
		delay := t.retry.NextBackOff()
		t.logger.Warn("Subscription lost, reconnecting", zap.Duration("backoff", delay), zap.Error(err))
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

// session runs one subscription until it fails
func (t *RedisTransport) session(ctx context.Context, sink Sink) error {
	sub := t.client.Subscribe(ctx, t.channel)
	defer sub.Close()

	// the first reply confirms the subscription
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	t.retry.Reset()
	t.logger.Info("Subscribed")
	if err := sink.OnConnected(ctx); err != nil {
		return err
	}

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		deliver(ctx, sink, []byte(msg.Payload), t.logger)
	}
}

// Close is a no-op; the client belongs to the caller
func (t *RedisTransport) Close() error { return nil }
