package router

import (
	"github.com/cassa/backend/internal/infrastructure/config"
	"github.com/cassa/backend/internal/infrastructure/logger"
	"github.com/cassa/backend/internal/interfaces/http/handler"
	"github.com/cassa/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// defaultMaxBodyBytes bounds request bodies; the largest legitimate body is
// a multi-order payment
const defaultMaxBodyBytes = 1 << 20

// Handlers are the endpoint handlers mounted by New. Sync may be nil when
// the realtime session is disabled.
type Handlers struct {
	Orders   *handler.OrderHandler
	Payments *handler.PaymentHandler
	Debts    *handler.DebtHandler
	Tabs     *handler.TabHandler
	Sync     *handler.SyncHandler
	System   *handler.SystemHandler
}

// Options configure the engine built by New
type Options struct {
	ServiceName string
	HTTP        config.HTTPConfig
	Tracing     bool
	// RateLimiter throttles the /payments group; nil disables it
	RateLimiter *middleware.RateLimiter
}

// New builds the gin engine with the global middleware chain and every
// route of the cashier API
func New(opts Options, h Handlers, log *zap.Logger) *gin.Engine {
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = opts.HTTP.CORSAllowOrigins
	if len(opts.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = opts.HTTP.CORSAllowMethods
	}
	if len(opts.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = opts.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{ServiceName: opts.ServiceName, Enabled: opts.Tracing}),
		middleware.SpanEnricher(),
		middleware.CORS(cors),
		middleware.Secure(),
		middleware.BodyLimit(defaultMaxBodyBytes),
	)

	if h.System != nil {
		engine.GET("/health", h.System.Health)
	}

	r := NewRouter(engine)
	for _, g := range domainGroups(h, opts.RateLimiter) {
		r.Register(g)
	}
	r.Setup()
	return engine
}

func domainGroups(h Handlers, limiter *middleware.RateLimiter) []*DomainGroup {
	var groups []*DomainGroup

	if h.Orders != nil && h.Payments != nil {
		orders := NewDomainGroup("orders", "/orders").
			POST("", h.Orders.Register).
			GET("", h.Orders.ListOpen).
			GET("/:id", h.Orders.Get).
			POST("/:id/deliver", h.Orders.Deliver).
			POST("/:id/close", h.Orders.Close).
			GET("/:id/payments", h.Payments.ListOrderPayments).
			POST("/:id/cancel-payment", h.Payments.CancelPayment)

		tables := NewDomainGroup("tables", "/tables").
			GET("", h.Orders.ListTables).
			GET("/:key", h.Orders.GetTable)

		payments := NewDomainGroup("payments", "/payments")
		if limiter != nil {
			payments.Use(middleware.RateLimit(limiter))
		}
		payments.
			POST("/order", h.Payments.PayOrder).
			POST("/partial", h.Payments.PayPartial).
			POST("/table", h.Payments.PayTable).
			POST("/multi", h.Payments.PayMulti).
			POST("/:id/cancel-lines", h.Payments.CancelLines)

		groups = append(groups, orders, tables, payments)
	}

	if h.Debts != nil {
		groups = append(groups,
			NewDomainGroup("debts", "/debts").
				POST("", h.Debts.Create).
				POST("/direct", h.Debts.CreateDirect).
				GET("/:id", h.Debts.Get).
				POST("/:id/payments", h.Debts.Pay),
			NewDomainGroup("customers", "/customers").
				GET("/:id/debts", h.Debts.ListForCustomer),
		)
	}

	if h.Tabs != nil {
		groups = append(groups, NewDomainGroup("tabs", "/tabs").
			GET("/summary", h.Tabs.Summary).
			GET("/:id", h.Tabs.Get).
			POST("/:id/movements", h.Tabs.RecordMovement).
			POST("/:id/pay-for-others", h.Tabs.PayForOthers).
			POST("/:id/charges", h.Tabs.RecordCharge).
			POST("/charges/:payment_id/reverse", h.Tabs.ReverseCharge))
	}

	if h.Sync != nil {
		groups = append(groups,
			NewDomainGroup("events", "/events").
				POST("/:class", h.Sync.PushEvent),
			NewDomainGroup("sync", "/sync").
				GET("/status", h.Sync.Status).
				POST("/refresh", h.Sync.Refresh),
		)
	}

	return groups
}
