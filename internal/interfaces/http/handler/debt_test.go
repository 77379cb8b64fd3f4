package handler

import (
	"context"
	"net/http"
	"testing"

	debtapp "github.com/cassa/backend/internal/application/debt"
	"github.com/cassa/backend/internal/domain/debt"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDebtService is a mock implementation of DebtService
type MockDebtService struct {
	mock.Mock
}

func (m *MockDebtService) CreateDebt(ctx context.Context, req debtapp.CreateDebtRequest) (*debt.Debt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*debt.Debt), args.Error(1)
}

func (m *MockDebtService) CreateDirectDebt(ctx context.Context, req debtapp.CreateDirectDebtRequest) (*debt.Debt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*debt.Debt), args.Error(1)
}

func (m *MockDebtService) PayDebt(ctx context.Context, req debtapp.PayDebtRequest) (*debt.Debt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*debt.Debt), args.Error(1)
}

func (m *MockDebtService) GetDebt(ctx context.Context, id uuid.UUID) (*debt.Debt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*debt.Debt), args.Error(1)
}

func (m *MockDebtService) ListCustomerDebts(ctx context.Context, customerID uuid.UUID, includeSettled bool) ([]*debt.Debt, error) {
	args := m.Called(ctx, customerID, includeSettled)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*debt.Debt), args.Error(1)
}

func setupDebtRouter(svc DebtService) *gin.Engine {
	h := NewDebtHandler(svc)
	r := gin.New()
	r.POST("/debts", h.Create)
	r.POST("/debts/direct", h.CreateDirect)
	r.POST("/debts/:id/payments", h.Pay)
	r.GET("/debts/:id", h.Get)
	r.GET("/customers/:id/debts", h.ListForCustomer)
	return r
}

func newTestDebt(t *testing.T, customerID uuid.UUID, amount string) *debt.Debt {
	t.Helper()
	d, err := debt.NewDebt(customerID, "Marco", nil, valueobject.MustParseMoney(amount), "")
	require.NoError(t, err)
	return d
}

func TestDebtHandler_Create(t *testing.T) {
	orderID, customerID := uuid.New(), uuid.New()
	svc := new(MockDebtService)
	svc.On("CreateDebt", mock.Anything, mock.MatchedBy(func(req debtapp.CreateDebtRequest) bool {
		return req.OrderID == orderID && req.CustomerID != nil && *req.CustomerID == customerID &&
			req.Amount.Minor() == 1000
	})).Return(newTestDebt(t, customerID, "10.00"), nil)

	w := performJSON(setupDebtRouter(svc), http.MethodPost, "/debts", map[string]any{
		"order_id":    orderID.String(),
		"customer_id": customerID.String(),
		"amount":      "10.00",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp DebtResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "10.00", resp.Remaining.String())
	assert.Equal(t, string(debt.StateOpen), resp.State)
	svc.AssertExpectations(t)
}

func TestDebtHandler_CreateDirectRequiresCustomer(t *testing.T) {
	svc := new(MockDebtService)
	w := performJSON(setupDebtRouter(svc), http.MethodPost, "/debts/direct", map[string]any{
		"amount": "10.00",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "CreateDirectDebt", mock.Anything, mock.Anything)
}

func TestDebtHandler_Pay(t *testing.T) {
	id := uuid.New()

	t.Run("partial repayment", func(t *testing.T) {
		svc := new(MockDebtService)
		svc.On("PayDebt", mock.Anything, debtapp.PayDebtRequest{
			DebtID: id,
			Amount: valueobject.Cents(400),
			Method: payment.MethodCard,
		}).Return(newTestDebt(t, uuid.New(), "10.00"), nil)

		w := performJSON(setupDebtRouter(svc), http.MethodPost, "/debts/"+id.String()+"/payments", map[string]any{
			"amount": "4.00",
			"method": "carta",
		})

		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("settled debt", func(t *testing.T) {
		svc := new(MockDebtService)
		svc.On("PayDebt", mock.Anything, mock.Anything).Return(nil, shared.NewAlreadySettledError("debt is settled"))

		w := performJSON(setupDebtRouter(svc), http.MethodPost, "/debts/"+id.String()+"/payments", map[string]any{
			"amount": "4.00",
			"method": "contanti",
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, shared.CodeAlreadySettled, decodeEnvelope(t, w).Error.Code)
	})
}

func TestDebtHandler_ListForCustomer(t *testing.T) {
	customerID := uuid.New()

	t.Run("defaults to open debts", func(t *testing.T) {
		svc := new(MockDebtService)
		svc.On("ListCustomerDebts", mock.Anything, customerID, false).
			Return([]*debt.Debt{newTestDebt(t, customerID, "5.00")}, nil)

		w := performJSON(setupDebtRouter(svc), http.MethodGet, "/customers/"+customerID.String()+"/debts", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp []DebtResponse
		decodeData(t, w, &resp)
		assert.Len(t, resp, 1)
	})

	t.Run("include settled", func(t *testing.T) {
		svc := new(MockDebtService)
		svc.On("ListCustomerDebts", mock.Anything, customerID, true).Return([]*debt.Debt{}, nil)

		w := performJSON(setupDebtRouter(svc), http.MethodGet, "/customers/"+customerID.String()+"/debts?include_settled=true", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("bad flag", func(t *testing.T) {
		svc := new(MockDebtService)
		w := performJSON(setupDebtRouter(svc), http.MethodGet, "/customers/"+customerID.String()+"/debts?include_settled=maybe", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
