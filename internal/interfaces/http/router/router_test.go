package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cassa/backend/internal/interfaces/http/handler"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/interfaces/http/dto"
	"github.com/cassa/backend/internal/interfaces/http/middleware"
	"github.com/cassa/backend/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroupMiddlewareIsScoped(t *testing.T) {
	engine := gin.New()
	guarded := NewDomainGroup("guarded", "/guarded").
		Use(func(c *gin.Context) { c.AbortWithStatus(http.StatusTeapot) }).
		GET("", func(c *gin.Context) { c.Status(http.StatusOK) })
	open := NewDomainGroup("open", "/open").
		GET("", func(c *gin.Context) { c.Status(http.StatusOK) })
	NewRouter(engine).Register(guarded).Register(open).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/guarded", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/open", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDomainGroupSubgroups(t *testing.T) {
	engine := gin.New()
	parent := NewDomainGroup("parent", "/parent")
	parent.Group("child", "/child").GET("/leaf", func(c *gin.Context) { c.Status(http.StatusOK) })
	NewRouter(engine).Register(parent).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/parent/child/leaf", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "parent", parent.Name())
	assert.Equal(t, "/parent", parent.Prefix())
}

func fullHandlers() Handlers {
	return Handlers{
		Orders:   handler.NewOrderHandler(nil),
		Payments: handler.NewPaymentHandler(nil, nil),
		Debts:    handler.NewDebtHandler(nil),
		Tabs:     handler.NewTabHandler(nil),
		Sync:     handler.NewSyncHandler(nil),
		System:   handler.NewSystemHandler("cassa", "test", nil, nil),
	}
}

func TestNewRegistersCashierAPI(t *testing.T) {
	engine := New(Options{ServiceName: "cassa"}, fullHandlers(), zap.NewNop())

	registered := make(map[string]bool)
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		"GET /health",
		"POST /api/v1/orders",
		"GET /api/v1/orders/:id",
		"POST /api/v1/orders/:id/deliver",
		"GET /api/v1/orders/:id/payments",
		"POST /api/v1/orders/:id/cancel-payment",
		"GET /api/v1/tables",
		"GET /api/v1/tables/:key",
		"POST /api/v1/payments/order",
		"POST /api/v1/payments/partial",
		"POST /api/v1/payments/table",
		"POST /api/v1/payments/multi",
		"POST /api/v1/payments/:id/cancel-lines",
		"POST /api/v1/debts",
		"POST /api/v1/debts/direct",
		"POST /api/v1/debts/:id/payments",
		"GET /api/v1/debts/:id",
		"GET /api/v1/customers/:id/debts",
		"POST /api/v1/tabs/:id/movements",
		"GET /api/v1/tabs/:id",
		"GET /api/v1/tabs/summary",
		"POST /api/v1/tabs/:id/pay-for-others",
		"POST /api/v1/tabs/:id/charges",
		"POST /api/v1/events/:class",
		"GET /api/v1/sync/status",
		"POST /api/v1/sync/refresh",
	}
	for _, route := range expected {
		assert.True(t, registered[route], "missing route %s", route)
	}
}

func TestNewHealthCarriesRequestID(t *testing.T) {
	engine := New(Options{ServiceName: "cassa"}, fullHandlers(), zap.NewNop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDKey, "abc-123")
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDKey))
}

func TestNewRateLimitsOnlyPayments(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Requests: 1,
		Window:   time.Hour,
		Burst:    1,
	})
	engine := New(Options{ServiceName: "cassa", RateLimiter: limiter}, fullHandlers(), zap.NewNop())

	send := func(path string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("X-Terminal-ID", "till-1")
		engine.ServeHTTP(w, req)
		return w.Code
	}

	// The body is empty so the first call fails validation after passing the limiter.
	assert.Equal(t, http.StatusBadRequest, send("/api/v1/payments/order"))
	assert.Equal(t, http.StatusTooManyRequests, send("/api/v1/payments/order"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewEnvelopes(t *testing.T) {
	engine := New(Options{ServiceName: "cassa"}, fullHandlers(), zap.NewNop())

	t.Run("health is a success envelope", func(t *testing.T) {
		w := testutil.PerformJSON(t, engine, http.MethodGet, "/health", nil)
		testutil.AssertSuccessResponse(t, w, http.StatusOK)

		health := testutil.DecodeData[handler.HealthResponse](t, w)
		assert.Equal(t, "ok", health.Status)
		assert.Equal(t, "cassa", health.Name)
	})

	t.Run("invalid payment body is a validation error", func(t *testing.T) {
		w := testutil.PerformJSON(t, engine, http.MethodPost, "/api/v1/payments/order", map[string]any{
			"order_id": "not-a-uuid",
		})
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, shared.CodeValidation)
	})

	t.Run("malformed order id", func(t *testing.T) {
		w := testutil.PerformJSON(t, engine, http.MethodPost, "/api/v1/orders/not-a-uuid/deliver", nil)
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, shared.CodeValidation)
	})

	t.Run("unknown event class", func(t *testing.T) {
		w := testutil.PerformJSON(t, engine, http.MethodPost, "/api/v1/events/order:eaten", map[string]any{})
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, dto.ErrCodeBadRequest)
	})
}
