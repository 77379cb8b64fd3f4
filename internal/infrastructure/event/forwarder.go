package event

import (
	"context"

	"github.com/cassa/backend/internal/application/realtime"
	"github.com/cassa/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Broadcaster sends one encoded envelope to every listening terminal
type Broadcaster interface {
	Broadcast(ctx context.Context, data []byte) error
}

// TransportForwarder is a wildcard handler that puts every committed domain
// event on the push transport as a {"type","payload"} envelope.
type TransportForwarder struct {
	out    Broadcaster
	logger *zap.Logger
}

// NewTransportForwarder creates a forwarder writing to out
func NewTransportForwarder(out Broadcaster, logger *zap.Logger) *TransportForwarder {
	return &TransportForwarder{out: out, logger: logger.Named("forwarder")}
}

// Handle encodes and broadcasts the event. Classes the reconciler would
// drop are not sent.
func (f *TransportForwarder) Handle(ctx context.Context, ev shared.DomainEvent) error {
	if !realtime.IsKnownClass(ev.EventType()) {
		f.logger.Debug("Skipping event without push class", zap.String("event_type", ev.EventType()))
		return nil
	}
	data, err := realtime.EncodeDomainEvent(ev)
	if err != nil {
		return shared.NewTransportError("encode "+ev.EventType(), err)
	}
	if err := f.out.Broadcast(ctx, data); err != nil {
		return shared.NewTransportError("broadcast "+ev.EventType(), err)
	}
	f.logger.Debug("Event forwarded",
		zap.String("event_type", ev.EventType()),
		zap.String("aggregate_id", ev.AggregateID().String()),
	)
	return nil
}

// EventTypes returns nil: the forwarder receives every event
func (f *TransportForwarder) EventTypes() []string {
	return nil
}

var _ shared.EventHandler = (*TransportForwarder)(nil)
