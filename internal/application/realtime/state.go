package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the connection state of a subscription
type State string

const (
	StateConnecting  State = "CONNECTING"
	StateConnected   State = "CONNECTED"
	StateReconciling State = "RECONCILING"
)

var transitions = map[State][]State{
	StateConnecting:  {StateConnected},
	StateConnected:   {StateReconciling, StateConnecting},
	StateReconciling: {StateConnected, StateConnecting},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateMachine tracks one subscription. After every connect it waits for
// the settle delay, so queued events can flush, then forces exactly one
// refresh.
type StateMachine struct {
	settleDelay time.Duration
	refresh     func(ctx context.Context, reason string)
	logger      *zap.Logger

	mu          sync.Mutex
	state       State
	connected   bool
	settleTimer *time.Timer
	settleGen   uint64
	reconnects  int
	lastErr     error
	changedAt   time.Time
}

// NewStateMachine starts in CONNECTING
func NewStateMachine(settleDelay time.Duration, refresh func(ctx context.Context, reason string), logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{
		settleDelay: settleDelay,
		refresh:     refresh,
		logger:      logger,
		state:       StateConnecting,
		changedAt:   time.Now(),
	}
}

// State returns the current state
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reconnects counts reconnects after the first connection
func (m *StateMachine) Reconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

// LastError is the transport error of the last disconnect
func (m *StateMachine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// OnConnected moves CONNECTING to CONNECTED and schedules the forced
// refresh that loads server truth; ctx is used for that refresh.
func (m *StateMachine) OnConnected(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.moveLocked(StateConnected); err != nil {
		return err
	}
	reason := "reconnect"
	if !m.connected {
		m.connected = true
		reason = "connect"
		m.logger.Info("Realtime subscription connected, scheduling initial refresh",
			zap.Duration("settle_delay", m.settleDelay),
		)
	} else {
		m.reconnects++
		m.logger.Info("Realtime subscription reconnected, scheduling refresh",
			zap.Duration("settle_delay", m.settleDelay),
			zap.Int("reconnects", m.reconnects),
		)
	}

	m.settleGen++
	gen := m.settleGen
	m.settleTimer = time.AfterFunc(m.settleDelay, func() { m.settle(ctx, gen, reason) })
	return nil
}

// OnDisconnected returns to CONNECTING and cancels a pending settle refresh.
// The transport error is kept for status reporting only.
func (m *StateMachine) OnDisconnected(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateConnecting {
		return
	}
	m.cancelSettleLocked()
	m.lastErr = err
	_ = m.moveLocked(StateConnecting)
	m.logger.Warn("Realtime subscription lost", zap.Error(err))
}

// BeginReconcile enters RECONCILING when connected. It returns false when
// the subscription is not CONNECTED; the refresh still runs but the state
// is left alone.
func (m *StateMachine) BeginReconcile() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveLocked(StateReconciling) == nil
}

// EndReconcile returns RECONCILING to CONNECTED
func (m *StateMachine) EndReconcile() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateReconciling {
		_ = m.moveLocked(StateConnected)
	}
}

// Stop cancels a pending settle refresh
func (m *StateMachine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelSettleLocked()
}

func (m *StateMachine) settle(ctx context.Context, gen uint64, reason string) {
	m.mu.Lock()
	if gen != m.settleGen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.settleTimer = nil
	m.mu.Unlock()

	m.refresh(ctx, reason)
}

func (m *StateMachine) cancelSettleLocked() {
	m.settleGen++
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}
}

func (m *StateMachine) moveLocked(to State) error {
	if !canTransition(m.state, to) {
		return fmt.Errorf("invalid transition %s -> %s", m.state, to)
	}
	m.state = to
	m.changedAt = time.Now()
	return nil
}
