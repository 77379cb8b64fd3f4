package tab

import (
	"context"
	"testing"

	paymentapp "github.com/cassa/backend/internal/application/payment"
	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/tab"
	"github.com/cassa/backend/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc       *Service
	accounts  *testutil.TabStore
	payments  *testutil.PaymentStore
	orders    *testutil.OrderStore
	processor *paymentapp.Processor
}

func newFixture(t *testing.T, orders ...*order.Order) *fixture {
	t.Helper()
	f := &fixture{
		accounts: testutil.NewTabStore(),
		payments: testutil.NewPaymentStore(),
		orders:   testutil.NewOrderStore(orders...),
	}
	f.processor = paymentapp.NewProcessor(f.orders, f.payments, zap.NewNop())
	f.svc = NewService(f.accounts, f.payments, zap.NewNop(), WithOrderPayer(f.orders, f.processor))
	return f
}

func (f *fixture) record(t *testing.T, account string, typ tab.MovementType, amount string) (*tab.Movement, error) {
	t.Helper()
	return f.svc.RecordMovement(context.Background(), RecordMovementRequest{
		AccountID: account,
		Owner:     tab.Owner{Kind: tab.OwnerCustomer, Name: "Gialli"},
		Type:      typ,
		Amount:    testutil.Money(t, amount),
	})
}

func TestRecordMovement_PaymentCappedBySaldo(t *testing.T) {
	f := newFixture(t)

	first, err := f.record(t, "cust:7", tab.MovementOrder, "12.00")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Seq)

	_, err = f.record(t, "cust:7", tab.MovementPayment, "5.00")
	require.NoError(t, err)

	a, err := f.svc.GetAccount(context.Background(), "cust:7")
	require.NoError(t, err)
	assert.Equal(t, testutil.Money(t, "7.00"), a.Saldo())
	assert.Equal(t, "Gialli", a.Owner.Name)

	_, err = f.record(t, "cust:7", tab.MovementPayment, "9.00")
	assert.ErrorIs(t, err, shared.ErrValidation)

	a, err = f.svc.GetAccount(context.Background(), "cust:7")
	require.NoError(t, err)
	assert.Len(t, a.Movements, 2, "rejected payment leaves no trace")
}

func TestRecordMovement_FirstMovementMustBeOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.record(t, "cust:8", tab.MovementPayment, "1.00")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.GetAccount(context.Background(), "cust:8")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordMovement_Reversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	charge, err := f.record(t, "T3", tab.MovementOrder, "8.00")
	require.NoError(t, err)

	storno, err := f.svc.RecordMovement(ctx, RecordMovementRequest{
		AccountID:  "T3",
		Type:       tab.MovementReversal,
		ReversesID: &charge.ID,
		Note:       "piatto sbagliato",
	})
	require.NoError(t, err)
	assert.Equal(t, charge.Amount, storno.Amount)

	a, err := f.svc.GetAccount(ctx, "T3")
	require.NoError(t, err)
	assert.True(t, a.Saldo().IsZero())
	assert.Equal(t, tab.AccountClosed, a.Status())
}

func TestRecordMovement_ConcurrentAppend(t *testing.T) {
	f := newFixture(t)
	_, err := f.record(t, "cust:9", tab.MovementOrder, "10.00")
	require.NoError(t, err)

	f.accounts.BeforeAppend = func(stored *tab.ScalarAccount) {
		stored.Movements = append(stored.Movements, tab.Movement{
			ID:        uuid.New(),
			AccountID: stored.ID,
			Seq:       len(stored.Movements) + 1,
			Type:      tab.MovementPayment,
			Amount:    testutil.Money(t, "10.00"),
		})
	}

	_, err = f.record(t, "cust:9", tab.MovementPayment, "4.00")
	assert.ErrorIs(t, err, shared.ErrStaleState)
}

func TestGetTabSummary(t *testing.T) {
	f := newFixture(t)

	_, err := f.record(t, "a", tab.MovementOrder, "5.00")
	require.NoError(t, err)
	_, err = f.record(t, "b", tab.MovementOrder, "20.00")
	require.NoError(t, err)
	_, err = f.record(t, "c", tab.MovementOrder, "3.00")
	require.NoError(t, err)
	_, err = f.record(t, "c", tab.MovementPayment, "3.00")
	require.NoError(t, err)

	summary, err := f.svc.GetTabSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Accounts, 2)
	assert.Equal(t, "b", summary.Accounts[0].AccountID)
	assert.Equal(t, "a", summary.Accounts[1].AccountID)
	assert.Equal(t, testutil.Money(t, "25.00"), summary.TotalOutstanding)

	_, err = f.record(t, "b", tab.MovementPayment, "15.00")
	require.NoError(t, err)
	summary, err = f.svc.GetTabSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutil.Money(t, "10.00"), summary.TotalOutstanding, "summary follows the movements")
}

func TestPayForOthers(t *testing.T) {
	ctx := context.Background()
	friend := testutil.NewDeliveredOrder(t, "50", "T4", testutil.Line("Pizza", "9.00", 1))
	other := testutil.NewDeliveredOrder(t, "51", "T4", testutil.Line("Birra", "4.50", 2))
	f := newFixture(t, friend, other)

	res, err := f.svc.PayForOthers(ctx, PayForOthersRequest{
		AccountID: "cust:1",
		Owner:     tab.Owner{Kind: tab.OwnerCustomer, Name: "Marco"},
		OrderIDs:  []uuid.UUID{friend.ID, other.ID},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Failed())
	assert.Equal(t, testutil.Money(t, "18.00"), res.Charged)

	for _, leg := range res.Legs {
		require.NotNil(t, leg.Payment)
		require.NotNil(t, leg.Movement)
		assert.Equal(t, payment.MethodTab, leg.Payment.Method)
		assert.Equal(t, "Marco", leg.Payment.Payer)
		assert.Equal(t, leg.Payment.ID, *leg.Movement.PaymentID)
		assert.Equal(t, order.StatusPaid, f.orders.Get(leg.OrderID).PaymentStatus())
	}

	a, err := f.svc.GetAccount(ctx, "cust:1")
	require.NoError(t, err)
	assert.Equal(t, testutil.Money(t, "18.00"), a.Saldo())

	again, err := f.svc.RecordChargeForPayment(ctx, "cust:1", tab.Owner{}, res.Legs[0].Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Legs[0].Movement.ID, again.ID)

	a, err = f.svc.GetAccount(ctx, "cust:1")
	require.NoError(t, err)
	assert.Len(t, a.Movements, 2, "charging the same payment twice is a no-op")

	_, err = f.svc.RecordChargeForPayment(ctx, "cust:2", tab.Owner{}, res.Legs[0].Payment.ID)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPayForOthers_ReportsFailedStep(t *testing.T) {
	ctx := context.Background()
	ready := testutil.NewDeliveredOrder(t, "60", "M1", testutil.Line("Menu", "15.00", 1))
	pending, err := order.NewOrder("61", "M1", []order.LineInput{testutil.Line("Dolce", "5.00", 1)})
	require.NoError(t, err)
	f := newFixture(t, ready, pending)

	f.accounts.BeforeAppend = func(stored *tab.ScalarAccount) {
		stored.Movements = append(stored.Movements, tab.Movement{
			ID:        uuid.New(),
			AccountID: stored.ID,
			Seq:       1,
			Type:      tab.MovementOrder,
			Amount:    testutil.Money(t, "1.00"),
		})
	}

	res, err := f.svc.PayForOthers(ctx, PayForOthersRequest{
		AccountID: "cust:3",
		OrderIDs:  []uuid.UUID{ready.ID, pending.ID},
	})
	require.NoError(t, err)
	require.Len(t, res.Legs, 2)

	first := res.Legs[0]
	assert.Equal(t, StepMovement, first.FailedStep)
	assert.ErrorIs(t, first.Err, shared.ErrStaleState)
	require.NotNil(t, first.Payment, "payment stays committed")
	assert.Equal(t, order.StatusPaid, f.orders.Get(ready.ID).PaymentStatus())

	second := res.Legs[1]
	assert.Equal(t, StepPayment, second.FailedStep)
	assert.ErrorIs(t, second.Err, shared.ErrValidation)
	assert.Nil(t, second.Payment)

	m, err := f.svc.RecordChargeForPayment(ctx, "cust:3", tab.Owner{}, first.Payment.ID)
	require.NoError(t, err, "movement step can be retried alone")
	assert.Equal(t, testutil.Money(t, "15.00"), m.Amount)
}

func TestPayForOthers_Validation(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	_, err := f.svc.PayForOthers(context.Background(), PayForOthersRequest{AccountID: "x"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.PayForOthers(context.Background(), PayForOthersRequest{AccountID: "x", OrderIDs: []uuid.UUID{id, id}})
	assert.ErrorIs(t, err, shared.ErrValidation)

	bare := NewService(f.accounts, f.payments, zap.NewNop())
	_, err = bare.PayForOthers(context.Background(), PayForOthersRequest{AccountID: "x", OrderIDs: []uuid.UUID{id}})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordChargeForPayment_RejectsOtherMethods(t *testing.T) {
	ctx := context.Background()
	o := testutil.NewDeliveredOrder(t, "70", "T2", testutil.Line("Caffe", "1.20", 1))
	f := newFixture(t, o)

	p, err := f.processor.PayOrder(ctx, paymentapp.PayOrderRequest{
		OrderID: o.ID,
		Amount:  testutil.Money(t, "1.20"),
		Method:  payment.MethodCash,
	})
	require.NoError(t, err)

	_, err = f.svc.RecordChargeForPayment(ctx, "cust:4", tab.Owner{}, p.ID)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.RecordChargeForPayment(ctx, "cust:4", tab.Owner{}, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReverseChargeForPayment_CancelledTabPaymentIsNotChargedTwice(t *testing.T) {
	ctx := context.Background()
	friend := testutil.NewDeliveredOrder(t, "80", "T6", testutil.Line("Pizza", "9.00", 1))
	f := newFixture(t, friend)

	res, err := f.svc.PayForOthers(ctx, PayForOthersRequest{
		AccountID: "cust:1",
		Owner:     tab.Owner{Kind: tab.OwnerCustomer, Name: "Marco"},
		OrderIDs:  []uuid.UUID{friend.ID},
	})
	require.NoError(t, err)
	require.Empty(t, res.Failed())
	charge := res.Legs[0].Movement

	cancelled, err := f.processor.CancelPayment(ctx, friend.ID, "wrong customer")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, cancelled.Status)

	rev, err := f.svc.ReverseChargeForPayment(ctx, cancelled.ID)
	require.NoError(t, err)
	require.Len(t, rev.Reversals, 1)
	assert.Nil(t, rev.Recharge)
	assert.Equal(t, tab.MovementReversal, rev.Reversals[0].Type)
	assert.Equal(t, charge.ID, *rev.Reversals[0].ReversesID)

	again, err := f.svc.ReverseChargeForPayment(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.False(t, again.Changed(), "a second call records nothing")

	_, err = f.processor.PayOrder(ctx, paymentapp.PayOrderRequest{
		OrderID: friend.ID,
		Amount:  testutil.Money(t, "9.00"),
		Method:  payment.MethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, f.orders.Get(friend.ID).PaymentStatus())

	a, err := f.svc.GetAccount(ctx, "cust:1")
	require.NoError(t, err)
	assert.True(t, a.Saldo().IsZero(), "the order is paid once, in cash")
	assert.Equal(t, tab.AccountClosed, a.Status())

	_, err = f.svc.RecordChargeForPayment(ctx, "cust:1", tab.Owner{}, cancelled.ID)
	assert.ErrorIs(t, err, shared.ErrValidation, "a cancelled payment cannot be charged again")
}

func TestReverseChargeForPayment_PartialCancelRechargesRemainder(t *testing.T) {
	ctx := context.Background()
	friend := testutil.NewDeliveredOrder(t, "81", "T6",
		testutil.Line("Pizza", "9.00", 1),
		testutil.Line("Birra", "4.50", 1),
	)
	f := newFixture(t, friend)
	beer := friend.Lines[1].ID

	res, err := f.svc.PayForOthers(ctx, PayForOthersRequest{AccountID: "cust:2", OrderIDs: []uuid.UUID{friend.ID}})
	require.NoError(t, err)
	require.Empty(t, res.Failed())
	paymentID := res.Legs[0].Payment.ID

	partial, err := f.processor.CancelPaymentLines(ctx, paymentapp.CancelPaymentLinesRequest{
		PaymentID:  paymentID,
		Selections: []order.Selection{{LineID: beer, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, payment.StatusPartiallyCancelled, partial.Status)

	rev, err := f.svc.ReverseChargeForPayment(ctx, paymentID)
	require.NoError(t, err)
	require.NotNil(t, rev.Recharge)
	assert.Equal(t, testutil.Money(t, "9.00"), rev.Recharge.Amount)
	require.Len(t, rev.Reversals, 1)
	assert.Equal(t, res.Legs[0].Movement.ID, *rev.Reversals[0].ReversesID)

	a, err := f.svc.GetAccount(ctx, "cust:2")
	require.NoError(t, err)
	assert.Equal(t, testutil.Money(t, "9.00"), a.Saldo())

	current, err := f.svc.RecordChargeForPayment(ctx, "cust:2", tab.Owner{}, paymentID)
	require.NoError(t, err)
	assert.Equal(t, rev.Recharge.ID, current.ID)

	again, err := f.svc.ReverseChargeForPayment(ctx, paymentID)
	require.NoError(t, err)
	assert.False(t, again.Changed())
}

func TestReverseChargeForPayment_NothingToReverse(t *testing.T) {
	ctx := context.Background()
	o := testutil.NewDeliveredOrder(t, "82", "T2", testutil.Line("Caffe", "1.20", 1))
	f := newFixture(t, o)

	cash, err := f.processor.PayOrder(ctx, paymentapp.PayOrderRequest{
		OrderID: o.ID,
		Amount:  testutil.Money(t, "1.20"),
		Method:  payment.MethodCash,
	})
	require.NoError(t, err)

	rev, err := f.svc.ReverseChargeForPayment(ctx, cash.ID)
	require.NoError(t, err)
	assert.Nil(t, rev, "cash payments have no tab side")

	_, err = f.svc.ReverseChargeForPayment(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
