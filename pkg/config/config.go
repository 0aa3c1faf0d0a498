// Package config loads application configuration from the environment
// and an optional .env / config.env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Item cache sync modes.
const (
	SyncInline = "inline"
	SyncQueue  = "queue"
)

// Config groups application configuration.
type Config struct {
	App    AppConfig
	DB     DBConfig
	HTTP   HTTPConfig
	Redis  RedisConfig
	Ledger LedgerConfig
	Jobs   JobsConfig
}

// AppConfig is general application configuration.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// IsDevelopment reports whether the app runs in development mode.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// DBConfig is PostgreSQL configuration.
type DBConfig struct {
	URL              string
	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// HTTPConfig is HTTP server configuration.
type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig is Redis configuration, shared by the summary cache and asynq.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	SummaryTTL time.Duration
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// LedgerConfig tunes the stock ledger.
type LedgerConfig struct {
	Storage          string // postgres or memory
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	MovementPageSize int
	SyncMode         string // inline or queue
	SyncConcurrency  int
}

// JobsConfig is background worker configuration.
type JobsConfig struct {
	Concurrency      int
	SyncUniqueness   time.Duration
	ResyncCron       string
	ExpiryCron       string
	ExpiryWindowDays int
}

// Load reads configuration. Environment variables take precedence over the
// optional file. Names: APP_ENV, DATABASE_URL, HTTP_PORT, REDIS_ADDR, LEDGER_STORAGE, ...
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigType("env")
	for _, name := range []string{".env", "config.env"} {
		v.SetConfigFile(name)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			Name:     v.GetString("APP_NAME"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		DB: DBConfig{
			URL:              v.GetString("DATABASE_URL"),
			MaxConns:         v.GetInt32("DB_MAX_CONNS"),
			MinConns:         v.GetInt32("DB_MIN_CONNS"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
			AutoMigrate:      v.GetBool("DB_AUTO_MIGRATE"),
		},
		HTTP: HTTPConfig{
			Host:            v.GetString("HTTP_HOST"),
			Port:            v.GetInt("HTTP_PORT"),
			ReadTimeout:     v.GetDuration("HTTP_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("HTTP_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("HTTP_SHUTDOWN_TIMEOUT"),
		},
		Redis: RedisConfig{
			Addr:       v.GetString("REDIS_ADDR"),
			Password:   v.GetString("REDIS_PASSWORD"),
			DB:         v.GetInt("REDIS_DB"),
			SummaryTTL: v.GetDuration("REDIS_SUMMARY_TTL"),
		},
		Ledger: LedgerConfig{
			Storage:          strings.ToLower(v.GetString("LEDGER_STORAGE")),
			RetryAttempts:    v.GetInt("LEDGER_RETRY_ATTEMPTS"),
			RetryBaseDelay:   v.GetDuration("LEDGER_RETRY_BASE_DELAY"),
			MovementPageSize: v.GetInt("LEDGER_MOVEMENT_PAGE_SIZE"),
			SyncMode:         strings.ToLower(v.GetString("LEDGER_SYNC_MODE")),
			SyncConcurrency:  v.GetInt("LEDGER_SYNC_CONCURRENCY"),
		},
		Jobs: JobsConfig{
			Concurrency:      v.GetInt("JOBS_CONCURRENCY"),
			SyncUniqueness:   v.GetDuration("JOBS_SYNC_UNIQUENESS"),
			ResyncCron:       v.GetString("JOBS_RESYNC_CRON"),
			ExpiryCron:       v.GetString("JOBS_EXPIRY_CRON"),
			ExpiryWindowDays: v.GetInt("JOBS_EXPIRY_WINDOW_DAYS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "stockledger")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_STATEMENT_TIMEOUT", 30*time.Second)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("HTTP_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_SUMMARY_TTL", 10*time.Minute)

	v.SetDefault("LEDGER_STORAGE", StoragePostgres)
	v.SetDefault("LEDGER_RETRY_ATTEMPTS", 5)
	v.SetDefault("LEDGER_RETRY_BASE_DELAY", 10*time.Millisecond)
	v.SetDefault("LEDGER_MOVEMENT_PAGE_SIZE", 500)
	v.SetDefault("LEDGER_SYNC_MODE", SyncInline)
	v.SetDefault("LEDGER_SYNC_CONCURRENCY", 8)

	v.SetDefault("JOBS_CONCURRENCY", 5)
	v.SetDefault("JOBS_SYNC_UNIQUENESS", 30*time.Second)
	v.SetDefault("JOBS_RESYNC_CRON", "30 2 * * *")
	v.SetDefault("JOBS_EXPIRY_CRON", "0 6 * * *")
	v.SetDefault("JOBS_EXPIRY_WINDOW_DAYS", 3)
}

// Validate checks required values and their combinations.
func (c *Config) Validate() error {
	var errs []error

	switch c.Ledger.Storage {
	case StoragePostgres:
		if c.DB.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when LEDGER_STORAGE=postgres"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("LEDGER_STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Ledger.Storage))
	}

	switch c.Ledger.SyncMode {
	case SyncInline:
	case SyncQueue:
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("REDIS_ADDR is required when LEDGER_SYNC_MODE=queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("LEDGER_SYNC_MODE must be %q or %q, got %q", SyncInline, SyncQueue, c.Ledger.SyncMode))
	}

	if c.Ledger.RetryAttempts < 1 {
		errs = append(errs, errors.New("LEDGER_RETRY_ATTEMPTS must be at least 1"))
	}
	if c.Ledger.MovementPageSize < 1 {
		errs = append(errs, errors.New("LEDGER_MOVEMENT_PAGE_SIZE must be at least 1"))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT out of range: %d", c.HTTP.Port))
	}
	if c.DB.MinConns > c.DB.MaxConns {
		errs = append(errs, errors.New("DB_MIN_CONNS exceeds DB_MAX_CONNS"))
	}
	if c.Jobs.ExpiryWindowDays < 0 {
		errs = append(errs, errors.New("JOBS_EXPIRY_WINDOW_DAYS must not be negative"))
	}

	return errors.Join(errs...)
}
