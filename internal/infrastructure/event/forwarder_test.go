package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cassa/backend/internal/application/realtime"
	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingBroadcaster struct {
	sent [][]byte
	err  error
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, data []byte) error {
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, data)
	return nil
}

func deliveredOrder(t *testing.T) *order.Order {
	o, err := order.NewOrder("12", "T2", []order.LineInput{
		{ProductName: "Negroni", UnitPrice: valueobject.Cents(700), Quantity: 1},
	})
	require.NoError(t, err)
	return o
}

func TestTransportForwarder_Handle(t *testing.T) {
	out := &recordingBroadcaster{}
	fwd := NewTransportForwarder(out, zap.NewNop())
	o := deliveredOrder(t)

	require.NoError(t, fwd.Handle(context.Background(), order.NewOrderPaidEvent(o)))
	require.Len(t, out.sent, 1)

	var env realtime.Envelope
	require.NoError(t, json.Unmarshal(out.sent[0], &env))
	assert.Equal(t, string(realtime.ClassOrderPaid), env.Type)

	ev, err := realtime.Decode(env.Type, env.Payload)
	require.NoError(t, err)
	assert.Equal(t, o.ID.String(), ev.EntityID())
}

func TestTransportForwarder_SkipsUnknownClasses(t *testing.T) {
	out := &recordingBroadcaster{}
	fwd := NewTransportForwarder(out, zap.NewNop())

	require.NoError(t, fwd.Handle(context.Background(), newTestEvent("order:noted")))
	assert.Empty(t, out.sent)
}

func TestTransportForwarder_BroadcastFailure(t *testing.T) {
	out := &recordingBroadcaster{err: errors.New("connection reset")}
	fwd := NewTransportForwarder(out, zap.NewNop())

	err := fwd.Handle(context.Background(), order.NewOrderPaidEvent(deliveredOrder(t)))
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodeTransport))
}

func TestTransportForwarder_OnBus(t *testing.T) {
	out := &recordingBroadcaster{}
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(NewTransportForwarder(out, zap.NewNop()))

	o := deliveredOrder(t)
	require.NoError(t, bus.Publish(context.Background(),
		order.NewOrderDeliveredEvent(o),
		order.NewOrderPaidEvent(o),
	))
	assert.Len(t, out.sent, 2)
}
