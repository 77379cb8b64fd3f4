package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedEnv = []string{
	"CASSA_APP_NAME",
	"CASSA_APP_ENV",
	"CASSA_APP_PORT",
	"CASSA_DATABASE_HOST",
	"CASSA_DATABASE_PORT",
	"CASSA_DATABASE_PASSWORD",
	"CASSA_DATABASE_SSLMODE",
	"CASSA_DATABASE_MAX_OPEN_CONNS",
	"CASSA_DATABASE_MAX_IDLE_CONNS",
	"CASSA_REDIS_ENABLED",
	"CASSA_REDIS_HOST",
	"CASSA_REDIS_PORT",
	"CASSA_REALTIME_TRANSPORT",
	"CASSA_REALTIME_DEDUP_WINDOW",
	"CASSA_REALTIME_DEBOUNCE_INTERVAL",
	"CASSA_REALTIME_DEBOUNCE_MAX_WAIT",
	"CASSA_REALTIME_SETTLE_DELAY",
	"CASSA_PAYMENT_TOLERANCE_MINOR",
	"CASSA_RECEIPT_ENABLED",
	"CASSA_RECEIPT_BASE_URL",
	"CASSA_HTTP_RATE_LIMIT_ENABLED",
	"CASSA_TELEMETRY_SAMPLING_RATIO",
	"CASSA_TELEMETRY_LOGS_ENABLED",
	"CASSA_TELEMETRY_PROFILING_ENABLED",
	"CASSA_TELEMETRY_PYROSCOPE_ADDRESS",
	"CASSA_TELEMETRY_SPAN_PROFILES",
	"CASSA_REALTIME_SESSION_ID",
}

// clearEnv blanks every managed variable; viper ignores empty values.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedEnv {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "cassa-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "cassa", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)

		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
		assert.Equal(t, "cassa:dedup:", cfg.Redis.KeyPrefix)

		assert.Equal(t, TransportNone, cfg.Realtime.Transport)
		assert.Equal(t, 3*time.Second, cfg.Realtime.DedupWindow)
		assert.Equal(t, 300*time.Millisecond, cfg.Realtime.DebounceInterval)
		assert.Equal(t, 2*time.Second, cfg.Realtime.DebounceMaxWait)
		assert.Equal(t, time.Second, cfg.Realtime.SettleDelay)
		assert.Equal(t, []string{"payment", "order", "debt"}, cfg.Realtime.NotificationKinds)

		assert.Equal(t, int64(1), cfg.Payment.ToleranceMinor)
		assert.Equal(t, "EUR", cfg.Payment.Currency)
		assert.False(t, cfg.Receipt.Enabled)
		assert.True(t, cfg.HTTP.RateLimitEnabled)
		assert.Equal(t, "iso8601", cfg.Log.TimeFormat)

		assert.False(t, cfg.Telemetry.LogsEnabled)
		assert.False(t, cfg.Telemetry.ProfilingEnabled)
		assert.Equal(t, "http://localhost:4040", cfg.Telemetry.PyroscopeAddress)
		assert.Equal(t, []string{"cpu", "alloc_space", "inuse_space", "goroutines"}, cfg.Telemetry.ProfileTypes)
		assert.Empty(t, cfg.Realtime.SessionID)
	})

	t.Run("loads logs and profiling settings", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CASSA_TELEMETRY_LOGS_ENABLED", "true")
		t.Setenv("CASSA_TELEMETRY_PROFILING_ENABLED", "true")
		t.Setenv("CASSA_TELEMETRY_PYROSCOPE_ADDRESS", "http://pyroscope:4040")
		t.Setenv("CASSA_TELEMETRY_SPAN_PROFILES", "true")
		t.Setenv("CASSA_REALTIME_SESSION_ID", "till-1")

		cfg, err := Load()
		require.NoError(t, err)

		assert.True(t, cfg.Telemetry.LogsEnabled)
		assert.True(t, cfg.Telemetry.ProfilingEnabled)
		assert.Equal(t, "http://pyroscope:4040", cfg.Telemetry.PyroscopeAddress)
		assert.True(t, cfg.Telemetry.SpanProfiles)
		assert.Equal(t, "till-1", cfg.Realtime.SessionID)
	})

	t.Run("loads values from environment variables with CASSA prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CASSA_APP_NAME", "cassa-test")
		t.Setenv("CASSA_APP_PORT", "9000")
		t.Setenv("CASSA_DATABASE_HOST", "db.local")
		t.Setenv("CASSA_DATABASE_PORT", "5433")
		t.Setenv("CASSA_REDIS_ENABLED", "true")
		t.Setenv("CASSA_REDIS_HOST", "redis.local")
		t.Setenv("CASSA_REALTIME_TRANSPORT", "Redis")
		t.Setenv("CASSA_REALTIME_DEDUP_WINDOW", "5s")
		t.Setenv("CASSA_REALTIME_DEBOUNCE_INTERVAL", "100ms")
		t.Setenv("CASSA_PAYMENT_TOLERANCE_MINOR", "2")
		t.Setenv("CASSA_HTTP_RATE_LIMIT_ENABLED", "false")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "cassa-test", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "db.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, "redis.local:6379", cfg.Redis.Addr())
		assert.Equal(t, TransportRedis, cfg.Realtime.Transport)
		assert.Equal(t, 5*time.Second, cfg.Realtime.DedupWindow)
		assert.Equal(t, 100*time.Millisecond, cfg.Realtime.DebounceInterval)
		assert.Equal(t, int64(2), cfg.Payment.ToleranceMinor)
		assert.False(t, cfg.HTTP.RateLimitEnabled)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CASSA_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("CASSA_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CASSA_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("rejects sampling ratio out of range", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CASSA_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_RealtimeValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown transport",
			env:     map[string]string{"CASSA_REALTIME_TRANSPORT": "kafka"},
			wantErr: "realtime.transport must be one of",
		},
		{
			name:    "redis transport needs redis",
			env:     map[string]string{"CASSA_REALTIME_TRANSPORT": "redis"},
			wantErr: "requires redis.enabled",
		},
		{
			name:    "negative dedup window",
			env:     map[string]string{"CASSA_REALTIME_DEDUP_WINDOW": "-1s"},
			wantErr: "realtime windows must be positive",
		},
		{
			name: "max wait shorter than debounce interval",
			env: map[string]string{
				"CASSA_REALTIME_DEBOUNCE_INTERVAL": "1s",
				"CASSA_REALTIME_DEBOUNCE_MAX_WAIT": "500ms",
			},
			wantErr: "debounce_max_wait",
		},
		{
			name:    "negative tolerance",
			env:     map[string]string{"CASSA_PAYMENT_TOLERANCE_MINOR": "-3"},
			wantErr: "tolerance_minor",
		},
		{
			name:    "receipt enabled without url",
			env:     map[string]string{"CASSA_RECEIPT_ENABLED": "true"},
			wantErr: "receipt.base_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("postgres transport is accepted without redis", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CASSA_REALTIME_TRANSPORT", "postgres")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, TransportPostgres, cfg.Realtime.Transport)
	})

	t.Run("receipt enabled with url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CASSA_RECEIPT_ENABLED", "true")
		t.Setenv("CASSA_RECEIPT_BASE_URL", "http://printer.local:9100")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Receipt.Enabled)
		assert.Equal(t, 5*time.Second, cfg.Receipt.Timeout)
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("CASSA_APP_ENV", "production")
		t.Setenv("CASSA_DATABASE_PASSWORD", "secure-password")
		t.Setenv("CASSA_DATABASE_SSLMODE", "require")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CASSA_APP_ENV", "production")
		t.Setenv("CASSA_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearEnv(t)
		setValidProductionBase(t)
		t.Setenv("CASSA_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv(t)
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "cassa",
			Password: "secret",
			DBName:   "cassa",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "cassa:secret@")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
