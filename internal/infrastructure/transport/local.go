package transport

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LocalTransport loops broadcasts straight back into the local sink. It is
// the single-terminal deployment: no broker, always connected.
type LocalTransport struct {
	mu     sync.RWMutex
	sink   Sink
	logger *zap.Logger
}

// NewLocalTransport creates an in-process transport
func NewLocalTransport(logger *zap.Logger) *LocalTransport {
	return &LocalTransport{logger: logger.Named("transport.local")}
}

// Broadcast delivers data to the running sink, if any
func (t *LocalTransport) Broadcast(ctx context.Context, data []byte) error {
	t.mu.RLock()
	sink := t.sink
	t.mu.RUnlock()
	if sink == nil {
		return nil
	}
	deliver(ctx, sink, data, t.logger)
	return nil
}

// Run connects the sink once and blocks until ctx is done
func (t *LocalTransport) Run(ctx context.Context, sink Sink) error {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.sink = nil
		t.mu.Unlock()
	}()

	if err := sink.OnConnected(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Close is a no-op
func (t *LocalTransport) Close() error { return nil }
