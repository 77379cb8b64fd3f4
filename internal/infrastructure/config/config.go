package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transport kinds for the realtime push channel
const (
	TransportRedis    = "redis"
	TransportPostgres = "postgres"
	TransportNone     = "none"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Realtime  RealtimeConfig
	Payment   PaymentConfig
	Receipt   ReceiptConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, or file path
	TimeFormat string // iso8601, rfc3339, epoch
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings. Redis backs the shared
// dedup window and the default realtime transport.
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	RateLimitEnabled  bool
	RateLimitRequests int           // payment requests allowed per window
	RateLimitWindow   time.Duration // refill window
	RateLimitBurst    int
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // e.g. "localhost:4317"
	SamplingRatio     float64 // 0.0-1.0
	ServiceName       string
	Insecure          bool
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	DBTraceEnabled    bool
	DBSlowQueryThresh time.Duration
	LogsEnabled       bool // export zap entries as OTLP log records

	ProfilingEnabled  bool
	PyroscopeAddress  string   // e.g. "http://localhost:4040"
	ProfileTypes      []string // cpu, alloc_space, inuse_space, goroutines, mutex_count, ...
	PyroscopeUser     string
	PyroscopePassword string
	SpanProfiles      bool // label CPU samples with the active span id
}

// RealtimeConfig holds the push-event sync settings
type RealtimeConfig struct {
	Transport         string // redis, postgres, none
	Channel           string
	// SessionID scopes dedup keys to one cashier session. Empty means a
	// fresh id per process; hosts serving the same session share one.
	SessionID         string
	DedupWindow       time.Duration
	DebounceInterval  time.Duration
	DebounceMaxWait   time.Duration
	SettleDelay       time.Duration
	ReconnectBackoff  time.Duration
	MaxBackoff        time.Duration
	NotificationKinds []string
}

// PaymentConfig holds payment processing settings
type PaymentConfig struct {
	// ToleranceMinor is the accepted difference, in minor units, between a
	// tendered amount and the computed due amount
	ToleranceMinor int64
	Currency       string
}

// ReceiptConfig holds the fiscal receipt service settings
type ReceiptConfig struct {
	Enabled bool
	BaseURL string
	Timeout time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CASSA_ prefix (e.g., CASSA_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("CASSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans whose default is true cannot be told apart from "unset" after
	// the fact, so they get viper defaults instead of applyDefaults.
	v.SetDefault("http.rate_limit_enabled", true)
	v.SetDefault("database.auto_migrate", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			TimeFormat: v.GetString("log.time_format"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:   v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			RateLimitBurst:    v.GetInt("http.rate_limit_burst"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:  v.GetString("telemetry.pyroscope_address"),
			ProfileTypes:      v.GetStringSlice("telemetry.profile_types"),
			PyroscopeUser:     v.GetString("telemetry.pyroscope_user"),
			PyroscopePassword: v.GetString("telemetry.pyroscope_password"),
			SpanProfiles:      v.GetBool("telemetry.span_profiles"),
		},
		Realtime: RealtimeConfig{
			Transport:         strings.ToLower(v.GetString("realtime.transport")),
			Channel:           v.GetString("realtime.channel"),
			SessionID:         v.GetString("realtime.session_id"),
			DedupWindow:       v.GetDuration("realtime.dedup_window"),
			DebounceInterval:  v.GetDuration("realtime.debounce_interval"),
			DebounceMaxWait:   v.GetDuration("realtime.debounce_max_wait"),
			SettleDelay:       v.GetDuration("realtime.settle_delay"),
			ReconnectBackoff:  v.GetDuration("realtime.reconnect_backoff"),
			MaxBackoff:        v.GetDuration("realtime.max_backoff"),
			NotificationKinds: v.GetStringSlice("realtime.notification_kinds"),
		},
		Payment: PaymentConfig{
			ToleranceMinor: v.GetInt64("payment.tolerance_minor"),
			Currency:       v.GetString("payment.currency"),
		},
		Receipt: ReceiptConfig{
			Enabled: v.GetBool("receipt.enabled"),
			BaseURL: v.GetString("receipt.base_url"),
			Timeout: v.GetDuration("receipt.timeout"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "cassa-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "cassa"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "cassa:dedup:"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Log.TimeFormat == "" {
		cfg.Log.TimeFormat = "iso8601"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 60
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 10
	}
	// CORS origins have no default: an empty list allows no cross-origin caller.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "cassa-backend"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.PyroscopeAddress == "" {
		cfg.Telemetry.PyroscopeAddress = "http://localhost:4040"
	}
	if len(cfg.Telemetry.ProfileTypes) == 0 {
		cfg.Telemetry.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
	if cfg.Realtime.Transport == "" {
		cfg.Realtime.Transport = TransportNone
	}
	if cfg.Realtime.Channel == "" {
		cfg.Realtime.Channel = "cassa_events"
	}
	if cfg.Realtime.DedupWindow == 0 {
		cfg.Realtime.DedupWindow = 3 * time.Second
	}
	if cfg.Realtime.DebounceInterval == 0 {
		cfg.Realtime.DebounceInterval = 300 * time.Millisecond
	}
	if cfg.Realtime.DebounceMaxWait == 0 {
		cfg.Realtime.DebounceMaxWait = 2 * time.Second
	}
	if cfg.Realtime.SettleDelay == 0 {
		cfg.Realtime.SettleDelay = time.Second
	}
	if cfg.Realtime.ReconnectBackoff == 0 {
		cfg.Realtime.ReconnectBackoff = 500 * time.Millisecond
	}
	if cfg.Realtime.MaxBackoff == 0 {
		cfg.Realtime.MaxBackoff = 30 * time.Second
	}
	if len(cfg.Realtime.NotificationKinds) == 0 {
		cfg.Realtime.NotificationKinds = []string{"payment", "order", "debt"}
	}
	if cfg.Payment.ToleranceMinor == 0 {
		cfg.Payment.ToleranceMinor = 1
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "EUR"
	}
	if cfg.Receipt.Timeout == 0 {
		cfg.Receipt.Timeout = 5 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	switch c.Realtime.Transport {
	case TransportRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("realtime.transport=redis requires redis.enabled=true")
		}
	case TransportPostgres, TransportNone:
	default:
		return fmt.Errorf("realtime.transport must be one of redis, postgres, none; got %q", c.Realtime.Transport)
	}
	if c.Realtime.DedupWindow < 0 || c.Realtime.DebounceInterval < 0 || c.Realtime.SettleDelay < 0 {
		return fmt.Errorf("realtime windows must be positive")
	}
	if c.Realtime.DebounceMaxWait < c.Realtime.DebounceInterval {
		return fmt.Errorf("realtime.debounce_max_wait (%s) cannot be shorter than realtime.debounce_interval (%s)",
			c.Realtime.DebounceMaxWait, c.Realtime.DebounceInterval)
	}

	if c.Payment.ToleranceMinor < 0 {
		return fmt.Errorf("payment.tolerance_minor cannot be negative")
	}
	if c.Receipt.Enabled {
		if _, err := url.ParseRequestURI(c.Receipt.BaseURL); err != nil {
			return fmt.Errorf("receipt.base_url must be an absolute URL when receipts are enabled: %w", err)
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
