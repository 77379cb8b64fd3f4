package persistence

import (
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TracingConfig holds database tracing options
type TracingConfig struct {
	Enabled         bool
	SlowQueryThresh time.Duration
	DBSystem        string
}

const startedAtKey = "cassa:started_at"

// RegisterTracing installs the otelgorm plugin plus a callback that flags
// slow statements on the statement span
func RegisterTracing(db *gorm.DB, cfg TracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled")
		return nil
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}

	if err := db.Use(otelgorm.NewPlugin(
		otelgorm.WithDBName(cfg.DBSystem),
		otelgorm.WithoutQueryVariables(),
	)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		tx.InstanceSet(startedAtKey, time.Now())
	}
	after := func(tx *gorm.DB) {
		markSlow(tx, cfg.SlowQueryThresh)
	}

	cb := db.Callback()
	err := errors.Join(
		cb.Create().Before("gorm:create").Register("cassa:before_create", before),
		cb.Query().Before("gorm:query").Register("cassa:before_query", before),
		cb.Update().Before("gorm:update").Register("cassa:before_update", before),
		cb.Delete().Before("gorm:delete").Register("cassa:before_delete", before),
		cb.Create().After("gorm:create").Register("cassa:after_create", after),
		cb.Query().After("gorm:query").Register("cassa:after_query", after),
		cb.Update().After("gorm:update").Register("cassa:after_update", after),
		cb.Delete().After("gorm:delete").Register("cassa:after_delete", after),
	)
	if err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
		zap.String("db_system", cfg.DBSystem),
	)
	return nil
}

func markSlow(tx *gorm.DB, threshold time.Duration) {
	if threshold <= 0 || tx.Statement.Context == nil {
		return
	}
	span := trace.SpanFromContext(tx.Statement.Context)
	if !span.IsRecording() {
		return
	}
	v, ok := tx.InstanceGet(startedAtKey)
	if !ok {
		return
	}
	started, ok := v.(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(started); elapsed > threshold {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			attribute.String("db.sql.table", tx.Statement.Table),
		)
	}
}
