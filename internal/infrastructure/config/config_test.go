package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "ledger", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, DriverPostgres, cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "ledger", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, TransportMemory, cfg.Event.Transport)
		assert.Equal(t, 100, cfg.Event.BatchSize)
		assert.Equal(t, time.Second, cfg.Event.PollInterval)
		assert.Equal(t, 10*time.Second, cfg.Event.GapTimeout)
		assert.Equal(t, 7, cfg.Ledger.FiscalYearStartMonth)
		assert.Equal(t, "ETB", cfg.Ledger.DefaultCurrency)
		assert.True(t, decimal.RequireFromString("0.01").Equal(cfg.Ledger.BalanceTolerance))
		assert.Equal(t, int64(100), cfg.Ledger.SnapshotInterval)
		assert.True(t, cfg.Cache.Enabled)
		assert.True(t, cfg.Idempotency.Enabled)
		assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
		assert.True(t, cfg.Reconcile.Enabled)
		assert.Equal(t, 5*time.Minute, cfg.Reconcile.Interval)
		assert.Equal(t, 50, cfg.Reconcile.BatchSize)
	})

	t.Run("loads values from environment variables with LEDGER prefix", func(t *testing.T) {
		t.Setenv("LEDGER_APP_NAME", "ledger-test")
		t.Setenv("LEDGER_DATABASE_HOST", "testdb.local")
		t.Setenv("LEDGER_DATABASE_PORT", "5433")
		t.Setenv("LEDGER_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("LEDGER_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("LEDGER_EVENT_TRANSPORT", "nats")
		t.Setenv("LEDGER_EVENT_POLL_INTERVAL", "250ms")
		t.Setenv("LEDGER_NATS_EMBEDDED", "true")
		t.Setenv("LEDGER_LEDGER_FISCAL_YEAR_START_MONTH", "1")
		t.Setenv("LEDGER_LEDGER_BALANCE_TOLERANCE", "0.005")
		t.Setenv("LEDGER_CACHE_ENABLED", "false")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "ledger-test", cfg.App.Name)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, TransportNATS, cfg.Event.Transport)
		assert.Equal(t, 250*time.Millisecond, cfg.Event.PollInterval)
		assert.True(t, cfg.NATS.Embedded)
		assert.Equal(t, 1, cfg.Ledger.FiscalYearStartMonth)
		assert.True(t, decimal.RequireFromString("0.005").Equal(cfg.Ledger.BalanceTolerance))
		assert.False(t, cfg.Cache.Enabled)
	})

	t.Run("rejects an unknown transport", func(t *testing.T) {
		t.Setenv("LEDGER_EVENT_TRANSPORT", "kafka")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "event.transport")
	})

	t.Run("rejects an oversized reconcile batch", func(t *testing.T) {
		t.Setenv("LEDGER_RECONCILE_BATCH_SIZE", "500")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reconcile.batch_size")
	})

	t.Run("rejects an invalid fiscal year start month", func(t *testing.T) {
		t.Setenv("LEDGER_LEDGER_FISCAL_YEAR_START_MONTH", "13")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fiscal_year_start_month")
	})

	t.Run("rejects an unparsable balance tolerance", func(t *testing.T) {
		t.Setenv("LEDGER_LEDGER_BALANCE_TOLERANCE", "a cent")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ledger.balance_tolerance")
	})

	t.Run("rejects idle connections above the open limit", func(t *testing.T) {
		t.Setenv("LEDGER_DATABASE_MAX_OPEN_CONNS", "4")
		t.Setenv("LEDGER_DATABASE_MAX_IDLE_CONNS", "8")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})
}

func TestFromViper_TOML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
[database]
driver = "sqlite"
sqlite_path = "/tmp/ledger-test.db"

[event]
batch_size = 25
worker_name = "replay"

[ledger]
default_currency = "USD"
snapshot_interval = 50

[cache]
entity_ttl = "30s"
report_ttl = "1m"
`)))

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/ledger-test.db", cfg.Database.DSN())
	assert.Equal(t, 25, cfg.Event.BatchSize)
	assert.Equal(t, "replay", cfg.Event.WorkerName)
	assert.Equal(t, "USD", cfg.Ledger.DefaultCurrency)
	assert.Equal(t, int64(50), cfg.Ledger.SnapshotInterval)
	assert.Equal(t, 30*time.Second, cfg.Cache.EntityTTL)
	assert.Equal(t, time.Minute, cfg.Cache.ReportTTL)
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("LEDGER_APP_ENV", "production")
		t.Setenv("LEDGER_DATABASE_PASSWORD", "secure-password")
		t.Setenv("LEDGER_DATABASE_SSLMODE", "require")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LEDGER_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LEDGER_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects sqlite in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LEDGER_DATABASE_DRIVER", "sqlite")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite is not supported in production")
	})

	t.Run("rejects full SQL logging in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LEDGER_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_log_full_sql")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		// URL-encoded password should be in the DSN
		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})

	t.Run("sqlite uses the file path", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: DriverSQLite, SQLitePath: "ledger.db"}
		assert.Equal(t, "ledger.db", cfg.DSN())
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "cache.local:6380", RedisConfig{Host: "cache.local", Port: 6380}.Addr())
}
