package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Supported values for the enumerated settings
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	TransportMemory = "memory"
	TransportNATS   = "nats"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Event       EventConfig
	NATS        NATSConfig
	Cache       CacheConfig
	Ledger      LedgerConfig
	Idempotency IdempotencyConfig
	Reconcile   ReconcileConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// IsProduction reports whether the app runs in the production environment
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	SlowThreshold   time.Duration
	LogLevel        string // silent, error, warn, info
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// EventConfig holds event dispatch configuration
type EventConfig struct {
	Transport    string // memory or nats
	BatchSize    int
	PollInterval time.Duration
	GapTimeout   time.Duration // wait for an in-flight append before skipping its position
	WorkerName   string        // checkpoint name of the catch-up processor
}

// NATSConfig holds JetStream transport settings
type NATSConfig struct {
	URL           string
	Embedded      bool
	StoreDir      string
	Stream        string
	SubjectPrefix string
	Durable       string
	MaxAge        time.Duration
}

// CacheConfig holds read cache settings
type CacheConfig struct {
	Enabled   bool
	EntityTTL time.Duration
	ListTTL   time.Duration
	ReportTTL time.Duration
	LocalTTL  time.Duration // L1 TTL in front of Redis, 0 disables the local tier
	KeyPrefix string
}

// LedgerConfig holds accounting rules that vary per deployment
type LedgerConfig struct {
	FiscalYearStartMonth int
	DefaultCurrency      string
	BalanceTolerance     decimal.Decimal
	MaxConflictRetries   int
	SnapshotInterval     int64
}

// IdempotencyConfig holds handler deduplication settings
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}

// ReconcileConfig holds the settings of the background repair sweep
type ReconcileConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int // payments and journals retried per tenant and sweep
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces and metrics
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	ExportInterval    time.Duration
	LogsEnabled       bool // Bridge zap logs to the collector
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for span marking
}

// Load reads config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with LEDGER_ prefix (e.g., LEDGER_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ledger")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return FromViper(v)
}

// FromViper builds the configuration from an already populated viper
// instance and applies env overrides, defaults and validation.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// feature switches default to on
	v.SetDefault("redis.enabled", true)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("cache.local_ttl", "10s")
	v.SetDefault("reconcile.enabled", true)

	tolerance, err := decimal.NewFromString(defaultString(v.GetString("ledger.balance_tolerance"), "0.01"))
	if err != nil {
		return nil, fmt.Errorf("ledger.balance_tolerance: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			Transport:    v.GetString("event.transport"),
			BatchSize:    v.GetInt("event.batch_size"),
			PollInterval: v.GetDuration("event.poll_interval"),
			GapTimeout:   v.GetDuration("event.gap_timeout"),
			WorkerName:   v.GetString("event.worker_name"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			Embedded:      v.GetBool("nats.embedded"),
			StoreDir:      v.GetString("nats.store_dir"),
			Stream:        v.GetString("nats.stream"),
			SubjectPrefix: v.GetString("nats.subject_prefix"),
			Durable:       v.GetString("nats.durable"),
			MaxAge:        v.GetDuration("nats.max_age"),
		},
		Cache: CacheConfig{
			Enabled:   v.GetBool("cache.enabled"),
			EntityTTL: v.GetDuration("cache.entity_ttl"),
			ListTTL:   v.GetDuration("cache.list_ttl"),
			ReportTTL: v.GetDuration("cache.report_ttl"),
			LocalTTL:  v.GetDuration("cache.local_ttl"),
			KeyPrefix: v.GetString("cache.key_prefix"),
		},
		Ledger: LedgerConfig{
			FiscalYearStartMonth: v.GetInt("ledger.fiscal_year_start_month"),
			DefaultCurrency:      v.GetString("ledger.default_currency"),
			BalanceTolerance:     tolerance,
			MaxConflictRetries:   v.GetInt("ledger.max_conflict_retries"),
			SnapshotInterval:     v.GetInt64("ledger.snapshot_interval"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: v.GetBool("idempotency.enabled"),
			TTL:     v.GetDuration("idempotency.ttl"),
		},
		Reconcile: ReconcileConfig{
			Enabled:   v.GetBool("reconcile.enabled"),
			Interval:  v.GetDuration("reconcile.interval"),
			BatchSize: v.GetInt("reconcile.batch_size"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ledger"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
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
		cfg.Database.DBName = "ledger"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "ledger.db"
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
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
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
	if cfg.Event.Transport == "" {
		cfg.Event.Transport = TransportMemory
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = time.Second
	}
	if cfg.Event.GapTimeout == 0 {
		cfg.Event.GapTimeout = 10 * time.Second
	}
	if cfg.Event.WorkerName == "" {
		cfg.Event.WorkerName = "ledger-dispatch"
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "LEDGER_EVENTS"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "ledger"
	}
	if cfg.NATS.Durable == "" {
		cfg.NATS.Durable = "ledger-projections"
	}
	if cfg.NATS.MaxAge == 0 {
		cfg.NATS.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.Cache.EntityTTL == 0 {
		cfg.Cache.EntityTTL = 5 * time.Minute
	}
	if cfg.Cache.ListTTL == 0 {
		cfg.Cache.ListTTL = time.Minute
	}
	if cfg.Cache.ReportTTL == 0 {
		cfg.Cache.ReportTTL = 15 * time.Minute
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "ledger"
	}
	if cfg.Ledger.FiscalYearStartMonth == 0 {
		cfg.Ledger.FiscalYearStartMonth = 7
	}
	if cfg.Ledger.DefaultCurrency == "" {
		cfg.Ledger.DefaultCurrency = "ETB"
	}
	if cfg.Ledger.MaxConflictRetries == 0 {
		cfg.Ledger.MaxConflictRetries = 4
	}
	if cfg.Ledger.SnapshotInterval == 0 {
		cfg.Ledger.SnapshotInterval = 100
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}
	if cfg.Reconcile.Interval == 0 {
		cfg.Reconcile.Interval = 5 * time.Minute
	}
	if cfg.Reconcile.BatchSize == 0 {
		cfg.Reconcile.BatchSize = 50
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ledger"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
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

	switch c.Event.Transport {
	case TransportMemory, TransportNATS:
	default:
		return fmt.Errorf("event.transport must be %q or %q, got %q", TransportMemory, TransportNATS, c.Event.Transport)
	}
	if c.Event.BatchSize <= 0 {
		return fmt.Errorf("event.batch_size must be positive")
	}

	if c.Ledger.FiscalYearStartMonth < 1 || c.Ledger.FiscalYearStartMonth > 12 {
		return fmt.Errorf("ledger.fiscal_year_start_month must be between 1 and 12, got %d", c.Ledger.FiscalYearStartMonth)
	}
	if c.Ledger.BalanceTolerance.IsNegative() {
		return fmt.Errorf("ledger.balance_tolerance cannot be negative")
	}
	if c.Ledger.MaxConflictRetries < 1 {
		return fmt.Errorf("ledger.max_conflict_retries must be at least 1")
	}
	if c.Ledger.SnapshotInterval < 1 {
		return fmt.Errorf("ledger.snapshot_interval must be at least 1")
	}
	if c.Reconcile.BatchSize < 1 || c.Reconcile.BatchSize > 200 {
		return fmt.Errorf("reconcile.batch_size must be between 1 and 200, got %d", c.Reconcile.BatchSize)
	}
	if c.Cache.ReportTTL < c.Cache.EntityTTL {
		return fmt.Errorf("cache.report_ttl (%s) must not be shorter than cache.entity_ttl (%s)", c.Cache.ReportTTL, c.Cache.EntityTTL)
	}

	// Production-specific validations
	if c.App.IsProduction() {
		if c.Database.Driver == DriverSQLite {
			return fmt.Errorf("database.driver sqlite is not supported in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.SQLitePath
	}
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
