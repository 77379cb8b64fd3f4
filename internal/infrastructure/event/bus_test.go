package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cassa/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New()),
		Data:            "test data",
	}
}

type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicMsg   string
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	h.handled = append(h.handled, event)
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	paid := newTestHandler("order:paid")
	bus.Subscribe(paid)
	all := newTestHandler()
	bus.Subscribe(all)

	ev1 := newTestEvent("order:paid")
	ev2 := newTestEvent("debt:paid")
	require.NoError(t, bus.Publish(context.Background(), ev1, ev2))

	require.Len(t, paid.getHandled(), 1)
	assert.Equal(t, ev1, paid.getHandled()[0])
	assert.Len(t, all.getHandled(), 2)
}

func TestInMemoryEventBus_ExplicitTypesOverrideHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("order:paid")
	bus.Subscribe(h, "debt:created")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("order:paid"), newTestEvent("debt:created")))
	require.Len(t, h.getHandled(), 1)
	assert.Equal(t, "debt:created", h.getHandled()[0].EventType())
}

func TestInMemoryEventBus_HandlerFailuresDoNotStopDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	failing := newTestHandler("order:paid")
	failing.err = errors.New("downstream unavailable")
	panicking := newTestHandler("order:paid")
	panicking.panicMsg = "boom"
	healthy := newTestHandler("order:paid")

	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("order:paid"))
	require.NoError(t, err)
	assert.Len(t, healthy.getHandled(), 1)
	assert.Equal(t, int64(2), bus.Failures())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler()
	bus.Subscribe(h)
	bus.Unsubscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("order:paid")))
	assert.Empty(t, h.getHandled())
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	assert.False(t, bus.Running())

	require.NoError(t, bus.Start(context.Background()))
	assert.True(t, bus.Running())

	require.NoError(t, bus.Stop(context.Background()))
	assert.False(t, bus.Running())
}

func TestHandlerRegistry_Count(t *testing.T) {
	r := NewHandlerRegistry()
	a := newTestHandler()
	b := newTestHandler()

	r.Register(a, "order:paid", "debt:paid")
	r.Register(b)
	r.Register(a)
	assert.Equal(t, 2, r.Count())

	r.Unregister(a)
	assert.Equal(t, 1, r.Count())
	assert.Len(t, r.GetHandlers("order:paid"), 1)
}
