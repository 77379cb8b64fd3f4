package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cassa/backend/internal/application/realtime"
	"github.com/cassa/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSink struct {
	mu           sync.Mutex
	connected    int
	disconnected []error
	messages     [][]byte
	connectedCh  chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{connectedCh: make(chan struct{}, 4)}
}

func (s *fakeSink) OnConnected(ctx context.Context) error {
	s.mu.Lock()
	s.connected++
	s.mu.Unlock()
	s.connectedCh <- struct{}{}
	return nil
}

func (s *fakeSink) OnDisconnected(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = append(s.disconnected, err)
}

func (s *fakeSink) OnMessage(ctx context.Context, data []byte) (realtime.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, data)
	if string(data) == "bad" {
		return realtime.OutcomeIgnored, errors.New("malformed")
	}
	return realtime.OutcomeAccepted, nil
}

func (s *fakeSink) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.messages...)
}

func assertJittered(t *testing.T, want, got time.Duration) {
	t.Helper()
	assert.InDelta(t, float64(want), float64(got), float64(want)*reconnectJitter+1)
}

func TestNewReconnectBackOff(t *testing.T) {
	b := NewReconnectBackOff(100*time.Millisecond, 350*time.Millisecond)

	assertJittered(t, 100*time.Millisecond, b.NextBackOff())
	assertJittered(t, 200*time.Millisecond, b.NextBackOff())
	assertJittered(t, 350*time.Millisecond, b.NextBackOff())
	assertJittered(t, 350*time.Millisecond, b.NextBackOff())

	b.Reset()
	assertJittered(t, 100*time.Millisecond, b.NextBackOff())
}

func TestNewReconnectBackOff_Defaults(t *testing.T) {
	b := NewReconnectBackOff(0, 0)
	assert.Equal(t, defaultReconnectBackoff, b.InitialInterval)
	assert.Equal(t, defaultMaxBackoff, b.MaxInterval)
	assertJittered(t, defaultReconnectBackoff, b.NextBackOff())

	tight := NewReconnectBackOff(time.Minute, time.Second)
	assert.Equal(t, time.Minute, tight.MaxInterval)
	assertJittered(t, time.Minute, tight.NextBackOff())
	assertJittered(t, time.Minute, tight.NextBackOff())
}

func TestLocalTransport(t *testing.T) {
	tr := NewLocalTransport(zap.NewNop())
	sink := newFakeSink()

	t.Run("broadcast before run is dropped", func(t *testing.T) {
		require.NoError(t, tr.Broadcast(context.Background(), []byte("early")))
		assert.Empty(t, sink.received())
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, sink) }()

	select {
	case <-sink.connectedCh:
	case <-time.After(time.Second):
		t.Fatal("sink never connected")
	}

	require.NoError(t, tr.Broadcast(context.Background(), []byte(`{"type":"order:paid"}`)))
	require.NoError(t, tr.Broadcast(context.Background(), []byte("bad")))
	assert.Len(t, sink.received(), 2)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	assert.NoError(t, tr.Close())
}

func TestNew(t *testing.T) {
	cfg := config.RealtimeConfig{Transport: config.TransportNone, Channel: "cassa_events"}

	tr, err := New(context.Background(), cfg, Dependencies{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LocalTransport{}, tr)

	cfg.Transport = config.TransportRedis
	_, err = New(context.Background(), cfg, Dependencies{}, zap.NewNop())
	assert.Error(t, err)

	cfg.Transport = "carrier-pigeon"
	_, err = New(context.Background(), cfg, Dependencies{}, zap.NewNop())
	assert.Error(t, err)

	cfg.Transport = config.TransportPostgres
	_, err = New(context.Background(), cfg, Dependencies{PostgresDSN: "postgres://cassa:secret@%zz/cassa"}, zap.NewNop())
	assert.Error(t, err)
}
