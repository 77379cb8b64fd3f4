package payment

import (
	"context"
	"testing"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCancelPayment_Idempotent(t *testing.T) {
	ctx := context.Background()
	o := breakfast(t, "T1")
	f := newFixture(t, o)
	f.receipts.On("IssueReceipt", mock.Anything, o.ID).Return(nil)

	paid, err := f.processor.PayPartial(ctx, PayPartialRequest{
		OrderID:    o.ID,
		Selections: []order.Selection{{LineID: o.Lines[0].ID, Quantity: 2}},
		Method:     payment.MethodCard,
	})
	require.NoError(t, err)
	require.Equal(t, order.StatusPartiallyPaid, f.orders.Get(o.ID).PaymentStatus())

	first, err := f.processor.CancelPayment(ctx, o.ID, "wrong table")
	require.NoError(t, err)
	assert.Equal(t, paid.ID, first.ID)
	assert.Equal(t, payment.StatusCancelled, first.Status)
	assert.Equal(t, "wrong table", first.CancelReason)

	afterFirst := f.orders.Get(o.ID)
	assert.Equal(t, order.StatusUnpaid, afterFirst.PaymentStatus())
	assert.Equal(t, m("4.20"), afterFirst.Remaining())
	assert.Equal(t, 1, f.events.Count(payment.EventTypePaymentCancelled))

	second, err := f.processor.CancelPayment(ctx, o.ID, "redelivered")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, second.Status)
	assert.Equal(t, "wrong table", second.CancelReason)

	afterSecond := f.orders.Get(o.ID)
	assert.Equal(t, afterFirst.Version, afterSecond.Version, "second cancel writes nothing")
	assert.Equal(t, afterFirst.Remaining(), afterSecond.Remaining())
	assert.Equal(t, 1, f.events.Count(payment.EventTypePaymentCancelled))
}

func TestCancelPayment_RestoresPriorStatus(t *testing.T) {
	ctx := context.Background()
	o := breakfast(t, "T1")
	f := newFixture(t, o)
	f.receipts.On("IssueReceipt", mock.Anything, o.ID).Return(nil)

	_, err := f.processor.PayPartial(ctx, PayPartialRequest{
		OrderID: o.ID, Selections: []order.Selection{{LineID: o.Lines[1].ID, Quantity: 1}}, Method: payment.MethodCash,
	})
	require.NoError(t, err)
	_, err = f.processor.PayOrder(ctx, PayOrderRequest{OrderID: o.ID, Amount: m("3.00"), Method: payment.MethodCash})
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, f.orders.Get(o.ID).PaymentStatus())

	_, err = f.processor.CancelPayment(ctx, o.ID, "")
	require.NoError(t, err)

	stored := f.orders.Get(o.ID)
	assert.Equal(t, order.StatusPartiallyPaid, stored.PaymentStatus())
	assert.Equal(t, m("3.00"), stored.Remaining())
	assert.Equal(t, 1, stored.Lines[1].PaidQuantity(), "the earlier payment is untouched")
}

func TestCancelPayment_RetriesOnVersionConflict(t *testing.T) {
	ctx := context.Background()
	o := breakfast(t, "T1")
	f := newFixture(t, o)
	f.receipts.On("IssueReceipt", mock.Anything, o.ID).Return(nil)

	_, err := f.processor.PayPartial(ctx, PayPartialRequest{
		OrderID: o.ID, Selections: []order.Selection{{LineID: o.Lines[0].ID, Quantity: 1}}, Method: payment.MethodCash,
	})
	require.NoError(t, err)

	// another terminal pays the cornetto between our read and our write
	f.orders.BeforeSave = func(stored *order.Order) {
		require.NoError(t, stored.AllocatePayment(uuid.New(), []order.Selection{{LineID: stored.Lines[1].ID, Quantity: 1}}, "other"))
	}

	_, err = f.processor.CancelPayment(ctx, o.ID, "")
	require.NoError(t, err)

	stored := f.orders.Get(o.ID)
	assert.Equal(t, 0, stored.Lines[0].PaidQuantity())
	assert.Equal(t, 1, stored.Lines[1].PaidQuantity(), "the concurrent payment survives the retry")
}

func TestCancelPayment_NothingToCancel(t *testing.T) {
	o := breakfast(t, "T1")
	f := newFixture(t, o)

	_, err := f.processor.CancelPayment(context.Background(), o.ID, "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCancelPaymentLines(t *testing.T) {
	ctx := context.Background()
	o := breakfast(t, "T1")
	f := newFixture(t, o)
	f.receipts.On("IssueReceipt", mock.Anything, o.ID).Return(nil)
	espresso, cornetto := o.Lines[0].ID, o.Lines[1].ID

	p, err := f.processor.PayOrder(ctx, PayOrderRequest{OrderID: o.ID, Amount: m("4.20"), Method: payment.MethodCard})
	require.NoError(t, err)

	partial, err := f.processor.CancelPaymentLines(ctx, CancelPaymentLinesRequest{
		PaymentID:  p.ID,
		Selections: []order.Selection{{LineID: espresso, Quantity: 1}},
		Reason:     "espresso spilled",
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPartiallyCancelled, partial.Status)
	assert.Equal(t, m("2.70"), partial.Amount)
	assert.Equal(t, m("1.50"), f.orders.Get(o.ID).Remaining())
	assert.Equal(t, 1, f.events.Count(payment.EventTypePaymentPartiallyCancelled))

	_, err = f.processor.CancelPaymentLines(ctx, CancelPaymentLinesRequest{
		PaymentID:  p.ID,
		Selections: []order.Selection{{LineID: espresso, Quantity: 2}},
	})
	assert.ErrorIs(t, err, shared.ErrValidation, "payment holds only one espresso now")

	done, err := f.processor.CancelPaymentLines(ctx, CancelPaymentLinesRequest{
		PaymentID: p.ID,
		Selections: []order.Selection{
			{LineID: espresso, Quantity: 1},
			{LineID: cornetto, Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, done.Status)
	assert.True(t, done.Amount.IsZero())
	assert.Equal(t, order.StatusUnpaid, f.orders.Get(o.ID).PaymentStatus())

	_, err = f.processor.CancelPaymentLines(ctx, CancelPaymentLinesRequest{
		PaymentID: p.ID, Selections: []order.Selection{{LineID: espresso, Quantity: 1}},
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestListOrderPayments(t *testing.T) {
	ctx := context.Background()
	o := breakfast(t, "T1")
	f := newFixture(t, o)
	f.receipts.On("IssueReceipt", mock.Anything, o.ID).Return(nil)

	first, err := f.processor.PayPartial(ctx, PayPartialRequest{
		OrderID: o.ID, Selections: []order.Selection{{LineID: o.Lines[0].ID, Quantity: 1}}, Method: payment.MethodCash,
	})
	require.NoError(t, err)
	second, err := f.processor.PayPartial(ctx, PayPartialRequest{
		OrderID: o.ID, Selections: []order.Selection{{LineID: o.Lines[1].ID, Quantity: 1}}, Method: payment.MethodCash,
	})
	require.NoError(t, err)

	list, err := f.processor.ListOrderPayments(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}
