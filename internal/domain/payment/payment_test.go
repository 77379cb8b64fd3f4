package payment

import (
	"testing"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestPayment(t *testing.T) *Payment {
	t.Helper()
	p, err := NewPayment(uuid.New(), ModePartial, valueobject.Cents(300), MethodCard, " Sara ", []order.Selection{
		{LineID: uuid.New(), Quantity: 2},
	})
	require.NoError(t, err)
	return p
}

func TestNewPayment(t *testing.T) {
	p := createTestPayment(t)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "Sara", p.Payer)
	assert.Nil(t, p.BatchID)

	batch := uuid.New()
	p.InBatch(batch)
	require.NotNil(t, p.BatchID)
	assert.Equal(t, batch, *p.BatchID)
}

func TestNewPayment_Validation(t *testing.T) {
	sel := []order.Selection{{LineID: uuid.New(), Quantity: 1}}
	tests := []struct {
		name   string
		order  uuid.UUID
		amount valueobject.Money
		method Method
		sel    []order.Selection
	}{
		{"nil order", uuid.Nil, valueobject.Cents(100), MethodCash, sel},
		{"unknown method", uuid.New(), valueobject.Cents(100), Method("bitcoin"), sel},
		{"zero amount", uuid.New(), valueobject.Zero, MethodCash, sel},
		{"no selection", uuid.New(), valueobject.Cents(100), MethodCash, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPayment(tt.order, ModeFull, tt.amount, tt.method, "x", tt.sel)
			assert.True(t, shared.IsCode(err, shared.CodeValidation))
		})
	}
}

func TestPaymentLifecycle(t *testing.T) {
	t.Run("complete then cancel is idempotent", func(t *testing.T) {
		p := createTestPayment(t)
		require.NoError(t, p.Complete())
		assert.Error(t, p.Complete())

		changed, err := p.Cancel("wrong table")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, StatusCancelled, p.Status)
		assert.NotNil(t, p.CancelledAt)

		changed, err = p.Cancel("again")
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, "wrong table", p.CancelReason)

		events := p.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypePaymentCancelled, events[0].EventType())
	})

	t.Run("failed payment cannot be cancelled", func(t *testing.T) {
		p := createTestPayment(t)
		p.Fail("over allocation")
		assert.Equal(t, StatusFailed, p.Status)
		assert.Equal(t, "over allocation", p.FailureReason)

		_, err := p.Cancel("x")
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestCancelLines(t *testing.T) {
	p := createTestPayment(t)
	require.NoError(t, p.Complete())
	line := p.Selections[0].LineID

	require.NoError(t, p.CancelLines(valueobject.Cents(150), []order.Selection{{LineID: line, Quantity: 1}}, "one returned"))
	assert.Equal(t, StatusPartiallyCancelled, p.Status)
	assert.Equal(t, "1.50", p.Amount.String())

	assert.Error(t, p.CancelLines(valueobject.Cents(200), nil, "too much"))

	require.NoError(t, p.CancelLines(valueobject.Cents(150), nil, "all returned"))
	assert.Equal(t, StatusCancelled, p.Status)
	assert.True(t, p.Amount.IsZero())
	assert.Len(t, p.GetDomainEvents(), 2)
}
