package debt

import (
	"context"
	"errors"
	"testing"

	"github.com/cassa/backend/internal/domain/debt"
	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc    *Service
	debts  *testutil.DebtStore
	orders *testutil.OrderStore
	events *testutil.RecordingPublisher
}

func newFixture(t *testing.T, orders ...*order.Order) *fixture {
	t.Helper()
	f := &fixture{
		debts:  testutil.NewDebtStore(),
		orders: testutil.NewOrderStore(orders...),
		events: testutil.NewRecordingPublisher(),
	}
	f.svc = NewService(f.debts, f.orders, zap.NewNop(), WithEventPublisher(f.events))
	return f
}

func customerOrder(t *testing.T, customer uuid.UUID) *order.Order {
	t.Helper()
	o := testutil.NewDeliveredOrder(t, "30", "M2",
		testutil.Line("Pranzo", "10.00", 1),
		testutil.Line("Caffe", "1.00", 2),
	)
	o.WithCustomer(&customer, "Verdi")
	return o
}

func TestDebtLifecycle(t *testing.T) {
	ctx := context.Background()
	customer := uuid.New()
	o := customerOrder(t, customer)
	f := newFixture(t, o)

	d, err := f.svc.CreateDebt(ctx, CreateDebtRequest{OrderID: o.ID, Amount: testutil.Money(t, "10.00"), Note: "fine mese"})
	require.NoError(t, err)
	assert.Equal(t, customer, d.CustomerID, "customer taken from the order")
	assert.Equal(t, "Verdi", d.CustomerName)
	assert.Equal(t, debt.StateOpen, d.State)

	stored := f.orders.Get(o.ID)
	assert.Equal(t, testutil.Money(t, "2.00"), stored.Remaining())
	assert.Equal(t, order.StatusPartiallyPaid, stored.PaymentStatus())

	d, err = f.svc.PayDebt(ctx, PayDebtRequest{DebtID: d.ID, Amount: testutil.Money(t, "4.00"), Method: payment.MethodCash})
	require.NoError(t, err)
	assert.Equal(t, testutil.Money(t, "6.00"), d.Remaining())
	assert.Equal(t, debt.StateOpen, d.State)

	d, err = f.svc.PayDebt(ctx, PayDebtRequest{DebtID: d.ID, Amount: testutil.Money(t, "6.00"), Method: payment.MethodCard})
	require.NoError(t, err)
	assert.True(t, d.Remaining().IsZero())
	assert.Equal(t, debt.StateSettled, d.State)
	assert.NotNil(t, d.SettledAt)

	_, err = f.svc.PayDebt(ctx, PayDebtRequest{DebtID: d.ID, Amount: testutil.Money(t, "1.00"), Method: payment.MethodCash})
	assert.ErrorIs(t, err, shared.ErrAlreadySettled)

	assert.Equal(t, 1, f.events.Count(debt.EventTypeDebtCreated))
	assert.Equal(t, 2, f.events.Count(debt.EventTypeDebtPaid))
	assert.Equal(t, 1, f.events.Count(order.EventTypeOrderStatusChanged))
}

func TestCreateDebt_Validation(t *testing.T) {
	customer := uuid.New()
	o := customerOrder(t, customer)
	anonymous := testutil.NewDeliveredOrder(t, "31", "T1", testutil.Line("Acqua", "2.00", 1))

	tests := []struct {
		name string
		req  CreateDebtRequest
		want error
	}{
		{"zero amount", CreateDebtRequest{OrderID: o.ID, Amount: testutil.Money(t, "0")}, shared.ErrValidation},
		{"negative amount", CreateDebtRequest{OrderID: o.ID, Amount: testutil.Money(t, "-1.00")}, shared.ErrValidation},
		{"exceeds remaining", CreateDebtRequest{OrderID: o.ID, Amount: testutil.Money(t, "12.01")}, shared.ErrValidation},
		{"no customer", CreateDebtRequest{OrderID: anonymous.ID, Amount: testutil.Money(t, "1.00")}, shared.ErrValidation},
		{"unknown order", CreateDebtRequest{OrderID: uuid.New(), Amount: testutil.Money(t, "1.00")}, shared.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, o, anonymous)
			_, err := f.svc.CreateDebt(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.debts.Len())
		})
	}
}

func TestCreateDebt_RemovesDebtWhenOrderWriteFails(t *testing.T) {
	customer := uuid.New()
	o := customerOrder(t, customer)

	t.Run("storage failure", func(t *testing.T) {
		f := newFixture(t, o)
		f.orders.SaveErr = errors.New("connection reset")

		_, err := f.svc.CreateDebt(context.Background(), CreateDebtRequest{OrderID: o.ID, Amount: testutil.Money(t, "5.00")})
		assert.True(t, shared.IsCode(err, shared.CodePersistence))
		assert.Zero(t, f.debts.Len())
		assert.Len(t, f.debts.Deleted, 1)
		assert.Empty(t, f.events.Events())
	})

	t.Run("concurrent change", func(t *testing.T) {
		f := newFixture(t, o)
		f.orders.BeforeSave = func(stored *order.Order) { stored.IncrementVersion() }

		_, err := f.svc.CreateDebt(context.Background(), CreateDebtRequest{OrderID: o.ID, Amount: testutil.Money(t, "5.00")})
		assert.ErrorIs(t, err, shared.ErrStaleState)
		assert.Zero(t, f.debts.Len())
		assert.Equal(t, testutil.Money(t, "12.00"), f.orders.Get(o.ID).Remaining())
	})
}

func TestCreateDirectDebt(t *testing.T) {
	f := newFixture(t)
	customer := uuid.New()

	d, err := f.svc.CreateDirectDebt(context.Background(), CreateDirectDebtRequest{
		CustomerID:   customer,
		CustomerName: "Neri",
		Amount:       testutil.Money(t, "25.00"),
		Note:         "prestito",
	})
	require.NoError(t, err)
	assert.True(t, d.IsDirect())
	assert.Equal(t, 1, f.debts.Len())

	_, err = f.svc.CreateDirectDebt(context.Background(), CreateDirectDebtRequest{CustomerID: uuid.Nil, Amount: testutil.Money(t, "1.00")})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPayDebt_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, err := f.svc.CreateDirectDebt(ctx, CreateDirectDebtRequest{CustomerID: uuid.New(), Amount: testutil.Money(t, "5.00")})
	require.NoError(t, err)

	_, err = f.svc.PayDebt(ctx, PayDebtRequest{DebtID: d.ID, Amount: testutil.Money(t, "5.01"), Method: payment.MethodCash})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.PayDebt(ctx, PayDebtRequest{DebtID: d.ID, Amount: testutil.Money(t, "1.00"), Method: payment.MethodTab})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.PayDebt(ctx, PayDebtRequest{DebtID: uuid.New(), Amount: testutil.Money(t, "1.00"), Method: payment.MethodCash})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListCustomerDebts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	customer := uuid.New()

	open, err := f.svc.CreateDirectDebt(ctx, CreateDirectDebtRequest{CustomerID: customer, Amount: testutil.Money(t, "3.00")})
	require.NoError(t, err)
	settled, err := f.svc.CreateDirectDebt(ctx, CreateDirectDebtRequest{CustomerID: customer, Amount: testutil.Money(t, "2.00")})
	require.NoError(t, err)
	_, err = f.svc.PayDebt(ctx, PayDebtRequest{DebtID: settled.ID, Amount: testutil.Money(t, "2.00"), Method: payment.MethodSatispay})
	require.NoError(t, err)
	_, err = f.svc.CreateDirectDebt(ctx, CreateDirectDebtRequest{CustomerID: uuid.New(), Amount: testutil.Money(t, "9.00")})
	require.NoError(t, err)

	onlyOpen, err := f.svc.ListCustomerDebts(ctx, customer, false)
	require.NoError(t, err)
	require.Len(t, onlyOpen, 1)
	assert.Equal(t, open.ID, onlyOpen[0].ID)

	all, err := f.svc.ListCustomerDebts(ctx, customer, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
