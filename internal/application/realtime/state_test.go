package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cassa/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStateMachine_FirstConnectRefreshes(t *testing.T) {
	var refreshes atomic.Int32
	var reason atomic.Value
	m := NewStateMachine(10*time.Millisecond, func(_ context.Context, r string) {
		reason.Store(r)
		refreshes.Add(1)
	}, zap.NewNop())
	defer m.Stop()

	assert.Equal(t, StateConnecting, m.State())
	require.NoError(t, m.OnConnected(context.Background()))
	assert.Equal(t, StateConnected, m.State())

	require.True(t, testutil.WaitForCondition(t, func() bool { return refreshes.Load() == 1 }, time.Second, 5*time.Millisecond))
	assert.Equal(t, "connect", reason.Load())
	assert.Equal(t, 0, m.Reconnects())
	testutil.AssertNever(t, func() bool { return refreshes.Load() > 1 }, 60*time.Millisecond, 5*time.Millisecond)
}

func TestStateMachine_ReconnectForcesOneRefresh(t *testing.T) {
	var refreshes atomic.Int32
	var reason atomic.Value
	m := NewStateMachine(20*time.Millisecond, func(_ context.Context, r string) {
		reason.Store(r)
		refreshes.Add(1)
	}, zap.NewNop())
	defer m.Stop()
	ctx := context.Background()

	require.NoError(t, m.OnConnected(ctx))
	m.OnDisconnected(errors.New("connection reset by peer"))
	assert.Equal(t, StateConnecting, m.State())
	assert.EqualError(t, m.LastError(), "connection reset by peer")

	require.NoError(t, m.OnConnected(ctx))
	assert.Equal(t, 1, m.Reconnects())

	require.True(t, testutil.WaitForCondition(t, func() bool { return refreshes.Load() == 1 }, time.Second, 5*time.Millisecond))
	assert.Equal(t, "reconnect", reason.Load())
	testutil.AssertNever(t, func() bool { return refreshes.Load() > 1 }, 80*time.Millisecond, 10*time.Millisecond)
}

func TestStateMachine_DisconnectCancelsSettleRefresh(t *testing.T) {
	var refreshes atomic.Int32
	m := NewStateMachine(50*time.Millisecond, func(context.Context, string) { refreshes.Add(1) }, zap.NewNop())
	defer m.Stop()
	ctx := context.Background()

	require.NoError(t, m.OnConnected(ctx))
	m.OnDisconnected(errors.New("eof"))
	require.NoError(t, m.OnConnected(ctx))
	m.OnDisconnected(errors.New("eof again"))

	testutil.AssertNever(t, func() bool { return refreshes.Load() > 0 }, 120*time.Millisecond, 10*time.Millisecond)
}

func TestStateMachine_Transitions(t *testing.T) {
	m := NewStateMachine(time.Hour, func(context.Context, string) {}, nil)
	defer m.Stop()

	assert.False(t, m.BeginReconcile(), "cannot reconcile while connecting")

	require.NoError(t, m.OnConnected(context.Background()))
	assert.Error(t, m.OnConnected(context.Background()), "already connected")

	require.True(t, m.BeginReconcile())
	assert.Equal(t, StateReconciling, m.State())
	assert.False(t, m.BeginReconcile())
	m.EndReconcile()
	assert.Equal(t, StateConnected, m.State())

	m.OnDisconnected(nil)
	assert.Equal(t, StateConnecting, m.State())
	m.EndReconcile()
	assert.Equal(t, StateConnecting, m.State())
}
