package debt

import (
	"testing"

	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestDebt(t *testing.T, cents int64) *Debt {
	t.Helper()
	orderID := uuid.New()
	d, err := NewDebt(uuid.New(), "Paolo", &orderID, valueobject.Cents(cents), "fine mese")
	require.NoError(t, err)
	return d
}

// ==================== Creation ====================

func TestNewDebt(t *testing.T) {
	d := createTestDebt(t, 1000)
	assert.Equal(t, StateOpen, d.State)
	assert.Equal(t, "10.00", d.Remaining().String())
	assert.False(t, d.IsDirect())

	events := d.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeDebtCreated, events[0].EventType())
}

func TestNewDebt_Validation(t *testing.T) {
	_, err := NewDebt(uuid.Nil, "x", nil, valueobject.Cents(100), "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewDebt(uuid.New(), "x", nil, valueobject.Zero, "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewDebt(uuid.New(), "x", nil, valueobject.Cents(-100), "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// ==================== Payments ====================

func TestApplyPayment_SettlesDebt(t *testing.T) {
	d := createTestDebt(t, 1000)

	_, err := d.ApplyPayment(valueobject.Cents(400), payment.MethodCash)
	require.NoError(t, err)
	assert.Equal(t, "6.00", d.Remaining().String())
	assert.Equal(t, StateOpen, d.State)

	_, err = d.ApplyPayment(valueobject.Cents(600), payment.MethodCard)
	require.NoError(t, err)
	assert.True(t, d.Remaining().IsZero())
	assert.Equal(t, StateSettled, d.State)
	assert.NotNil(t, d.SettledAt)

	_, err = d.ApplyPayment(valueobject.Cents(100), payment.MethodCash)
	assert.ErrorIs(t, err, shared.ErrAlreadySettled)
	assert.Len(t, d.Payments, 2)
}

func TestApplyPayment_Validation(t *testing.T) {
	tests := []struct {
		name   string
		amount valueobject.Money
		method payment.Method
	}{
		{"exceeds remaining", valueobject.Cents(1001), payment.MethodCash},
		{"zero", valueobject.Zero, payment.MethodCash},
		{"negative", valueobject.Cents(-5), payment.MethodCash},
		{"tab method", valueobject.Cents(100), payment.MethodTab},
		{"unknown method", valueobject.Cents(100), payment.Method("iou")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := createTestDebt(t, 1000)
			_, err := d.ApplyPayment(tt.amount, tt.method)
			assert.ErrorIs(t, err, shared.ErrValidation)
			assert.Equal(t, StateOpen, d.State)
			assert.Equal(t, "10.00", d.Remaining().String())
		})
	}
}

func TestState(t *testing.T) {
	assert.True(t, StateOpen.IsValid())
	assert.False(t, State("CLOSED").IsValid())
	assert.True(t, StateSettled.IsTerminal())
	assert.False(t, StateOpen.IsTerminal())
}
