package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LEDGER_STORAGE", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.True(t, cfg.App.IsDevelopment())
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, StorageMemory, cfg.Ledger.Storage)
	assert.Equal(t, 5, cfg.Ledger.RetryAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Ledger.RetryBaseDelay)
	assert.Equal(t, SyncInline, cfg.Ledger.SyncMode)
	assert.Equal(t, int32(25), cfg.DB.MaxConns)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "30 2 * * *", cfg.Jobs.ResyncCron)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost/ledger")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LEDGER_RETRY_BASE_DELAY", "25ms")
	t.Setenv("LEDGER_SYNC_MODE", "QUEUE")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("DB_AUTO_MIGRATE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Ledger.Storage)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 25*time.Millisecond, cfg.Ledger.RetryBaseDelay)
	assert.Equal(t, SyncQueue, cfg.Ledger.SyncMode)
	assert.True(t, cfg.DB.AutoMigrate)
}

func TestLoad_RequiresDatabaseURLForPostgres(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LEDGER_STORAGE", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			HTTP:   HTTPConfig{Port: 8080},
			DB:     DBConfig{MaxConns: 4, MinConns: 1},
			Ledger: LedgerConfig{Storage: StorageMemory, SyncMode: SyncInline, RetryAttempts: 3, MovementPageSize: 100},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown storage", func(c *Config) { c.Ledger.Storage = "sqlite" }, "LEDGER_STORAGE"},
		{"queue without redis", func(c *Config) { c.Ledger.SyncMode = SyncQueue }, "REDIS_ADDR"},
		{"no retries", func(c *Config) { c.Ledger.RetryAttempts = 0 }, "LEDGER_RETRY_ATTEMPTS"},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }, "HTTP_PORT"},
		{"pool bounds", func(c *Config) { c.DB.MinConns = 10 }, "DB_MIN_CONNS"},
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
