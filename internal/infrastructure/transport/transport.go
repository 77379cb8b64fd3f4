// Package transport delivers push-event envelopes between terminals. Every
// transport both broadcasts envelopes and feeds received ones, together
// with its connection lifecycle, into a Sink.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/cassa/backend/internal/application/realtime"
	"github.com/cassa/backend/internal/infrastructure/config"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	defaultReconnectBackoff = 500 * time.Millisecond
	defaultMaxBackoff       = 30 * time.Second

	// reconnectJitter spreads terminals that lost the same broker
	reconnectJitter = 0.2
)

// Sink receives envelopes and connection lifecycle. *realtime.Reconciler
// implements it.
type Sink interface {
	OnConnected(ctx context.Context) error
	OnDisconnected(err error)
	OnMessage(ctx context.Context, data []byte) (realtime.Outcome, error)
}

// Transport is a bidirectional push channel
type Transport interface {
	Broadcast(ctx context.Context, data []byte) error
	// Run subscribes and feeds sink until ctx is cancelled, reconnecting
	// with backoff after failures.
	Run(ctx context.Context, sink Sink) error
	Close() error
}

// Dependencies carries the clients a transport may be built on
type Dependencies struct {
	Redis       RedisPubSub
	PostgresDSN string
}

// New builds the transport selected by cfg.Transport
func New(ctx context.Context, cfg config.RealtimeConfig, deps Dependencies, logger *zap.Logger) (Transport, error) {
	retry := NewReconnectBackOff(cfg.ReconnectBackoff, cfg.MaxBackoff)
	switch cfg.Transport {
	case config.TransportRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("redis transport requires a redis client")
		}
		return NewRedisTransport(deps.Redis, cfg.Channel, retry, logger), nil
	case config.TransportPostgres:
		return NewPostgresTransport(ctx, deps.PostgresDSN, cfg.Channel, retry, logger)
	case config.TransportNone, "":
		return NewLocalTransport(logger), nil
	default:
		return nil, fmt.Errorf("unknown realtime transport %q", cfg.Transport)
	}
}

// NewReconnectBackOff builds the jittered exponential delay the reconnect
// loops wait on. Zero values fall back to 500ms and 30s. The result is not
// safe for concurrent use; each Run loop owns one.
func NewReconnectBackOff(initial, max time.Duration) *backoff.ExponentialBackOff {
	if initial <= 0 {
		initial = defaultReconnectBackoff
	}
	if max < initial {
		max = defaultMaxBackoff
		if max < initial {
			max = initial
		}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = reconnectJitter
	b.Reset()
	return b
}

// deliver hands one envelope to the sink and logs the outcome
func deliver(ctx context.Context, sink Sink, data []byte, logger *zap.Logger) {
	outcome, err := sink.OnMessage(ctx, data)
	if err != nil {
		logger.Warn("Push event rejected", zap.String("outcome", string(outcome)), zap.Error(err))
		return
	}
	logger.Debug("Push event delivered", zap.String("outcome", string(outcome)))
}

// sleep waits for d or until ctx is done; it reports whether ctx is still live
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
