package ordering

import (
	"context"
	"testing"
	"time"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T, orders ...*order.Order) (*Service, *testutil.OrderStore, *testutil.RecordingPublisher) {
	t.Helper()
	store := testutil.NewOrderStore(orders...)
	events := testutil.NewRecordingPublisher()
	return NewService(store, events, zap.NewNop()), store, events
}

func TestRegisterOrder(t *testing.T) {
	svc, store, events := newService(t)
	customer := uuid.New()

	o, err := svc.RegisterOrder(context.Background(), RegisterOrderRequest{
		Number:       "42",
		TableRef:     "m3",
		CustomerID:   &customer,
		CustomerName: " Rossi ",
		Waiter:       "Paolo",
		Lines:        []order.LineInput{testutil.Line("Pizza", "8.00", 2)},
	})
	require.NoError(t, err)

	stored := store.Get(o.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "Rossi", stored.CustomerName)
	assert.Equal(t, "M3", stored.TableKey().String())
	assert.False(t, stored.IsDelivered())
	assert.Empty(t, events.Events())
}

func TestRegisterOrder_Validation(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.RegisterOrder(context.Background(), RegisterOrderRequest{Number: "1"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestMarkDelivered_Idempotent(t *testing.T) {
	o, err := order.NewOrder("5", "T2", []order.LineInput{testutil.Line("Acqua", "1.00", 1)})
	require.NoError(t, err)
	svc, store, events := newService(t, o)
	ctx := context.Background()

	_, err = svc.MarkDelivered(ctx, o.ID)
	require.NoError(t, err)
	_, err = svc.MarkDelivered(ctx, o.ID)
	require.NoError(t, err)

	assert.True(t, store.Get(o.ID).IsDelivered())
	assert.Equal(t, 1, store.Saves)
	assert.Equal(t, []string{order.EventTypeOrderDelivered}, events.Types())
}

func TestCloseOrder(t *testing.T) {
	ctx := context.Background()
	o := testutil.NewDeliveredOrder(t, "9", "T1", testutil.Line("Caffe", "1.00", 1))
	svc, store, _ := newService(t, o)

	_, err := svc.CloseOrder(ctx, o.ID)
	assert.ErrorIs(t, err, shared.ErrValidation, "unpaid orders stay open")

	paid := store.Get(o.ID)
	require.NoError(t, paid.AllocatePayment(uuid.New(), paid.OutstandingSelections(), ""))
	require.NoError(t, store.SaveWithLock(ctx, paid))

	closed, err := svc.CloseOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, closed.IsClosed())

	open, err := svc.ListOpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	still, err := svc.GetOrder(ctx, o.ID)
	require.NoError(t, err, "closed orders remain queryable")
	assert.True(t, still.IsClosed())
}

func TestListTableGroups(t *testing.T) {
	now := time.Now()
	mk := func(number, table, price string, at time.Time) *order.Order {
		o := testutil.NewDeliveredOrder(t, number, table, testutil.Line("Item", price, 1))
		o.OpenedAt = at
		return o
	}
	p2 := mk("1", "P2", "3.00", now)
	t1a := mk("2", "T1", "5.00", now.Add(2*time.Minute))
	t1b := mk("3", "t1", "2.00", now.Add(time.Minute))
	takeaway := mk("4", "asporto", "6.00", now)
	m1 := mk("5", "M1", "4.00", now)
	t1b.WithCustomer(nil, "Bianchi")

	svc, _, _ := newService(t, p2, t1a, t1b, takeaway, m1)

	groups, err := svc.ListTableGroups(context.Background())
	require.NoError(t, err)

	keys := make([]string, 0, len(groups))
	for _, g := range groups {
		keys = append(keys, g.Key)
	}
	assert.Equal(t, []string{"T1", "M1", "P2", "ASPORTO"}, keys)

	t1 := groups[0]
	require.Len(t, t1.Orders, 2)
	assert.Equal(t, "3", t1.Orders[0].Number, "orders sorted by opening time")
	assert.Equal(t, testutil.Money(t, "7.00"), t1.Total)
	assert.Equal(t, []string{"Bianchi"}, t1.CustomerNames)
	assert.Equal(t, t1b.OpenedAt, t1.EarliestOpenedAt)
}

func TestGetTableGroup(t *testing.T) {
	o := testutil.NewDeliveredOrder(t, "1", "21", testutil.Line("Item", "2.50", 2))
	svc, _, _ := newService(t, o)
	ctx := context.Background()

	g, err := svc.GetTableGroup(ctx, " 21 ")
	require.NoError(t, err)
	assert.Equal(t, "21", g.Key)
	assert.Equal(t, order.KindNumbered, g.Kind)
	assert.Equal(t, order.StatusUnpaid, g.Status)

	_, err = svc.GetTableGroup(ctx, "T7")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.GetTableGroup(ctx, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
