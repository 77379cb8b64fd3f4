package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	debtapp "github.com/cassa/backend/internal/application/debt"
	"github.com/cassa/backend/internal/application/ordering"
	paymentapp "github.com/cassa/backend/internal/application/payment"
	"github.com/cassa/backend/internal/application/realtime"
	tabapp "github.com/cassa/backend/internal/application/tab"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/cassa/backend/internal/infrastructure/cache"
	"github.com/cassa/backend/internal/infrastructure/config"
	"github.com/cassa/backend/internal/infrastructure/event"
	"github.com/cassa/backend/internal/infrastructure/logger"
	"github.com/cassa/backend/internal/infrastructure/migration"
	"github.com/cassa/backend/internal/infrastructure/persistence"
	"github.com/cassa/backend/internal/infrastructure/receipt"
	"github.com/cassa/backend/internal/infrastructure/telemetry"
	"github.com/cassa/backend/internal/infrastructure/transport"
	"github.com/cassa/backend/internal/interfaces/http/handler"
	"github.com/cassa/backend/internal/interfaces/http/middleware"
	"github.com/cassa/backend/internal/interfaces/http/router"
	"github.com/cassa/backend/migrations"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync(log)

	log.Info("Starting cassa backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	log = telemetry.BridgeLogger(log, logsProvider, cfg.Telemetry.ServiceName, level)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.PyroscopeAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		ProfileTypes:      cfg.Telemetry.ProfileTypes,
		BasicAuthUser:     cfg.Telemetry.PyroscopeUser,
		BasicAuthPassword: cfg.Telemetry.PyroscopePassword,
		Tags:              map[string]string{"env": cfg.App.Env, "version": version},
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && cfg.Telemetry.SpanProfiles {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	metrics, err := telemetry.NewPOSMetrics(meterProvider.Meter("cassa"))
	if err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := persistence.RegisterTracing(db.DB, persistence.TracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	if cfg.Database.AutoMigrate {
		if err := migrateUp(db, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	repos := persistence.NewRepositories(db.DB)

	// Dedup window and push transport
	// production will not start with Redis enabled but unreachable
	dedup, err := cache.NewDedupStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create dedup store", zap.Error(err))
	}
	defer dedup.Close()

	var redisClient *redis.Client
	if cfg.Realtime.Transport == config.TransportRedis {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis for realtime transport", zap.Error(err))
		}
		defer redisClient.Close()
	}
	deps := transport.Dependencies{PostgresDSN: cfg.Database.DSN()}
	if redisClient != nil {
		deps.Redis = redisClient
	}
	pushTransport, err := transport.New(ctx, cfg.Realtime, deps, log)
	if err != nil {
		log.Fatal("Failed to create realtime transport", zap.Error(err))
	}
	defer pushTransport.Close()

	// Committed domain events go to the other terminals
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewTransportForwarder(pushTransport, log))
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Application services
	orderService := ordering.NewService(repos.Orders, eventBus, log)
	processor := paymentapp.NewProcessor(repos.Orders, repos.Payments, log,
		paymentapp.WithEventPublisher(eventBus),
		paymentapp.WithReceiptIssuer(receipt.New(cfg.Receipt, log)),
		paymentapp.WithMetrics(metrics),
		paymentapp.WithTolerance(valueobject.Cents(cfg.Payment.ToleranceMinor)),
	)
	debtService := debtapp.NewService(repos.Debts, repos.Orders, log,
		debtapp.WithEventPublisher(eventBus),
		debtapp.WithMetrics(metrics),
	)
	tabService := tabapp.NewService(repos.Tabs, repos.Payments, log,
		tabapp.WithMetrics(metrics),
		tabapp.WithOrderPayer(repos.Orders, processor),
	)

	reconciler := realtime.NewReconciler(orderService, dedup, realtime.Config{
		SessionID:         cfg.Realtime.SessionID,
		DedupWindow:       cfg.Realtime.DedupWindow,
		DebounceInterval:  cfg.Realtime.DebounceInterval,
		DebounceMaxWait:   cfg.Realtime.DebounceMaxWait,
		SettleDelay:       cfg.Realtime.SettleDelay,
		NotificationKinds: cfg.Realtime.NotificationKinds,
	}, log,
		realtime.WithMetrics(metrics),
		realtime.WithBaseContext(ctx),
	)
	defer reconciler.Close()

	transportDone := make(chan error, 1)
	go func() {
		transportDone <- pushTransport.Run(ctx, reconciler)
	}()

	// HTTP
	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Requests: cfg.HTTP.RateLimitRequests,
			Window:   cfg.HTTP.RateLimitWindow,
			Burst:    cfg.HTTP.RateLimitBurst,
		})
	}
	engine := router.New(router.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		HTTP:        cfg.HTTP,
		Tracing:     cfg.Telemetry.Enabled,
		RateLimiter: limiter,
	}, router.Handlers{
		Orders:   handler.NewOrderHandler(orderService),
		Payments: handler.NewPaymentHandler(processor, reconciler, handler.WithTabCharges(tabService)),
		Debts:    handler.NewDebtHandler(debtService),
		Tabs:     handler.NewTabHandler(tabService),
		Sync:     handler.NewSyncHandler(reconciler),
		System:   handler.NewSystemHandler(cfg.App.Name, version, db, reconciler),
	}, log)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	select {
	case err := <-transportDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Realtime transport stopped with error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		log.Warn("Realtime transport did not stop in time")
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus stop failed", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Profiler stop failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	if err := logsProvider.Shutdown(context.Background()); err != nil {
		log.Warn("Logger provider shutdown failed", zap.Error(err))
	}
}

// migrateUp applies the embedded migrations
func migrateUp(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.NewFromFS(sqlDB, migrations.FS, log)
	if err != nil {
		return err
	}
	defer m.Close()
	start := time.Now()
	if err := m.Up(); err != nil {
		return err
	}
	log.Info("Migrations applied", zap.Duration("elapsed", time.Since(start)))
	return nil
}
