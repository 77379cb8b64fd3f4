package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// POSMetrics records payment and realtime sync counters. A nil *POSMetrics
// is valid and records nothing.
type POSMetrics struct {
	payments        *Counter
	paymentAmount   *Histogram
	paymentFailures *Counter
	cancellations   *Counter
	debtsCreated    *Counter
	tabMovements    *Counter
	realtimeEvents  *Counter
	refreshes       *Counter
	duplicates      *Counter
}

// NewPOSMetrics creates all POS instruments on meter.
func NewPOSMetrics(meter metric.Meter) (*POSMetrics, error) {
	if meter == nil {
		return nil, errors.New("NewPOSMetrics: meter cannot be nil")
	}

	m := &POSMetrics{}
	var err error
	if m.payments, err = NewCounter(meter, "pos_payments_total", "Completed payments", "{payment}"); err != nil {
		return nil, err
	}
	if m.paymentAmount, err = NewHistogram(meter, HistogramOpts{
		Name:        "pos_payment_amount",
		Description: "Amount of completed payments",
		Unit:        "EUR",
		Boundaries:  AmountBuckets,
	}); err != nil {
		return nil, err
	}
	if m.paymentFailures, err = NewCounter(meter, "pos_payment_failures_total", "Rejected or failed payments", "{payment}"); err != nil {
		return nil, err
	}
	if m.cancellations, err = NewCounter(meter, "pos_payment_cancellations_total", "Cancelled payments", "{payment}"); err != nil {
		return nil, err
	}
	if m.debtsCreated, err = NewCounter(meter, "pos_debts_created_total", "Debts opened", "{debt}"); err != nil {
		return nil, err
	}
	if m.tabMovements, err = NewCounter(meter, "pos_tab_movements_total", "Tab movements recorded", "{movement}"); err != nil {
		return nil, err
	}
	if m.realtimeEvents, err = NewCounter(meter, "pos_realtime_events_total", "Realtime events handled", "{event}"); err != nil {
		return nil, err
	}
	if m.refreshes, err = NewCounter(meter, "pos_view_refreshes_total", "Local view refreshes", "{refresh}"); err != nil {
		return nil, err
	}
	if m.duplicates, err = NewCounter(meter, "pos_realtime_duplicates_total", "Realtime events dropped as duplicates", "{event}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordPayment counts a completed payment and its amount in minor units.
func (m *POSMetrics) RecordPayment(ctx context.Context, mode, method string, amountMinor int64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrPaymentMode.String(mode), AttrPaymentMethod.String(method)}
	m.payments.Inc(ctx, attrs...)
	m.paymentAmount.Record(ctx, float64(amountMinor)/100, attrs...)
}

// RecordPaymentFailure counts a payment rejected with code.
func (m *POSMetrics) RecordPaymentFailure(ctx context.Context, mode, code string) {
	if m == nil {
		return
	}
	m.paymentFailures.Inc(ctx, AttrPaymentMode.String(mode), AttrErrorCode.String(code))
}

// RecordCancellation counts a cancellation; partial is true for line cancels.
func (m *POSMetrics) RecordCancellation(ctx context.Context, partial bool) {
	if m == nil {
		return
	}
	status := "CANCELLED"
	if partial {
		status = "PARTIALLY_CANCELLED"
	}
	m.cancellations.Inc(ctx, AttrPaymentStatus.String(status))
}

// RecordDebtCreated counts a new debt.
func (m *POSMetrics) RecordDebtCreated(ctx context.Context, direct bool) {
	if m == nil {
		return
	}
	m.debtsCreated.Inc(ctx, attribute.Bool("direct", direct))
}

// RecordTabMovement counts a tab movement by type.
func (m *POSMetrics) RecordTabMovement(ctx context.Context, movementType string) {
	if m == nil {
		return
	}
	m.tabMovements.Inc(ctx, attribute.String("movement_type", movementType))
}

// RecordRealtimeEvent counts a handled event by class.
func (m *POSMetrics) RecordRealtimeEvent(ctx context.Context, class string) {
	if m == nil {
		return
	}
	m.realtimeEvents.Inc(ctx, AttrEventClass.String(class))
}

// RecordDuplicate counts an event dropped by the dedup window.
func (m *POSMetrics) RecordDuplicate(ctx context.Context, class string) {
	if m == nil {
		return
	}
	m.duplicates.Inc(ctx, AttrEventClass.String(class))
}

// RecordRefresh counts a local view refresh by reason.
func (m *POSMetrics) RecordRefresh(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.refreshes.Inc(ctx, AttrRefreshReason.String(reason))
}
