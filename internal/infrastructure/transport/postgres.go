package transport

import (
	"context"
	"fmt"

	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresTransport uses LISTEN/NOTIFY on the order database, for venues
// that run no Redis
type PostgresTransport struct {
	pool    *pgxpool.Pool
	channel string
	retry   *backoff.ExponentialBackOff
	logger  *zap.Logger
}

// NewPostgresTransport opens a small pgx pool on dsn
func NewPostgresTransport(ctx context.Context, dsn, channel string, retry *backoff.ExponentialBackOff, logger *zap.Logger) (*PostgresTransport, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	// one listener connection plus publishers
	if cfg.MaxConns < 2 {
		cfg.MaxConns = 2
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	return &PostgresTransport{
		pool:    pool,
		channel: channel,
		retry:   retry,
		logger:  logger.Named("transport.postgres").With(zap.String("channel", channel)),
	}, nil
}

// Broadcast sends data with pg_notify. Payloads are limited to 8000 bytes
// by the server.
func (t *PostgresTransport) Broadcast(ctx context.Context, data []byte) error {
	if _, err := t.pool.Exec(ctx, "SELECT pg_notify($1, $2)", t.channel, string(data)); err != nil {
		return shared.NewTransportError("pg_notify", err)
	}
	return nil
}

// Run listens on the channel and feeds sink until ctx is cancelled
func (t *PostgresTransport) Run(ctx context.Context, sink Sink) error {
	for {
		err := t.session(ctx, sink)
		if ctx.Err() != nil {
			return nil
		}
		sink.OnDisconnected(shared.NewTransportError("postgres listener lost", err))
		delay := t.retry.NextBackOff()
		t.logger.Warn("Listener lost, reconnecting", zap.Duration("backoff", delay), zap.Error(err))
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

func (t *PostgresTransport) session(ctx context.Context, sink Sink) error {
	pooled, err := t.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	// a connection that has executed LISTEN must not go back to the pool
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{t.channel}.Sanitize()); err != nil {
		return err
	}
	t.retry.Reset()
	t.logger.Info("Listening")
	if err := sink.OnConnected(ctx); err != nil {
		return err
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		deliver(ctx, sink, []byte(n.Payload), t.logger)
	}
}

// Close closes the pool
func (t *PostgresTransport) Close() error {
	t.pool.Close()
	return nil
}
