/*
Package config loads the server configuration.

PRECEDENCE (lowest to highest):
  1. Defaults (defaults.go)
  2. .env file in the working directory (github.com/joho/godotenv)
  3. Process environment
  4. Command-line flags (-port, -store, -db, -database-url)

  Validate collects every problem instead of stopping at the first one,
  so a misconfigured deployment reports everything in one go.
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	Port string

	Store       string
	SQLitePath  string
	DatabaseURL string
	DBMaxConns  int

	RedisAddr     string
	RedisPassword string
	SweepLockKey  string
	SweepLockTTL  time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	HoldTTL       time.Duration
	SweepInterval time.Duration
	SweepBatch    int
	LockWait      time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	CheckInHour   int
	MaxStayNights int
	TimeZone      string
	Currency      string
	NightlyRate   decimal.Decimal
	PoliciesFile  string

	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load applies defaults, .env, the environment and then args. A missing
// .env file is not an error.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnvStr(EnvPort, DefaultPort),

		Store:       getEnvStr(EnvStore, DefaultStore),
		SQLitePath:  getEnvStr(EnvSQLitePath, DefaultSQLitePath),
		DatabaseURL: getEnvStr(EnvDatabaseURL, ""),
		DBMaxConns:  getEnvNum(EnvDBMaxConns, DefaultDBMaxConns),

		RedisAddr:     getEnvStr(EnvRedisAddr, ""),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		SweepLockKey:  getEnvStr(EnvSweepLockKey, DefaultSweepLockKey),
		SweepLockTTL:  getEnvDuration(EnvSweepLockTTL, DefaultSweepLockTTL),

		KafkaBrokers: splitCSV(getEnvStr(EnvKafkaBrokers, "")),
		KafkaTopic:   getEnvStr(EnvKafkaTopic, DefaultKafkaTopic),

		HoldTTL:       getEnvDuration(EnvHoldTTL, DefaultHoldTTL),
		SweepInterval: getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		SweepBatch:    getEnvNum(EnvSweepBatch, DefaultSweepBatch),
		LockWait:      getEnvDuration(EnvLockWait, DefaultLockWait),
		RetryAttempts: getEnvNum(EnvRetryAttempts, DefaultRetryAttempts),
		RetryBackoff:  getEnvDuration(EnvRetryBackoff, DefaultRetryBackoff),
		CheckInHour:   getEnvNum(EnvCheckInHour, DefaultCheckInHour),
		MaxStayNights: getEnvNum(EnvMaxStayNights, DefaultMaxStayNights),
		TimeZone:      getEnvStr(EnvTimeZone, DefaultTimeZone),
		Currency:      getEnvStr(EnvCurrency, DefaultCurrency),
		NightlyRate:   getEnvDecimal(EnvNightlyRate, decimal.RequireFromString(DefaultNightlyRate)),
		PoliciesFile:  getEnvStr(EnvPoliciesFile, ""),

		CORSOrigins:     splitCSV(getEnvStr(EnvCORSOrigins, DefaultCORSOrigins)),
		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		LogLevel:  getEnvStr(EnvLogLevel, DefaultLogLevel),
		LogFormat: getEnvStr(EnvLogFormat, DefaultLogFormat),
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "store driver: memory, sqlite or postgres")
	fs.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path (\":memory:\" for in-memory)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres connection string")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		add("port must be between 1 and 65535, got: %s", cfg.Port)
	}
	switch cfg.Store {
	case StoreMemory:
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			add("sqlite store needs a database path")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			add("postgres store needs %s", EnvDatabaseURL)
		}
	default:
		add("store must be memory, sqlite or postgres, got: %s", cfg.Store)
	}
	if cfg.DBMaxConns <= 0 {
		add("db max conns must be positive, got: %d", cfg.DBMaxConns)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		add("kafka topic cannot be empty when brokers are set")
	}
	if cfg.RedisAddr != "" && cfg.SweepLockTTL <= 0 {
		add("sweep lock ttl must be positive, got: %s", cfg.SweepLockTTL)
	}

	for name, d := range map[string]time.Duration{
		"hold ttl":         cfg.HoldTTL,
		"sweep interval":   cfg.SweepInterval,
		"lock wait":        cfg.LockWait,
		"read timeout":     cfg.ReadTimeout,
		"write timeout":    cfg.WriteTimeout,
		"shutdown timeout": cfg.ShutdownTimeout,
	} {
		if d <= 0 {
			add("%s must be positive, got: %s", name, d)
		}
	}
	if cfg.RetryBackoff < 0 {
		add("retry backoff cannot be negative, got: %s", cfg.RetryBackoff)
	}
	if cfg.SweepBatch <= 0 {
		add("sweep batch must be positive, got: %d", cfg.SweepBatch)
	}
	if cfg.RetryAttempts < 1 {
		add("retry attempts must be at least 1, got: %d", cfg.RetryAttempts)
	}
	if cfg.CheckInHour < 0 || cfg.CheckInHour > 23 {
		add("check-in hour must be between 0 and 23, got: %d", cfg.CheckInHour)
	}
	if cfg.MaxStayNights < 1 || cfg.MaxStayNights > 3660 {
		add("max stay nights must be between 1 and 3660, got: %d", cfg.MaxStayNights)
	}
	if _, err := time.LoadLocation(cfg.TimeZone); err != nil {
		add("unknown time zone %q", cfg.TimeZone)
	}
	if !cfg.NightlyRate.IsPositive() {
		add("nightly rate must be positive, got: %s", cfg.NightlyRate)
	}
	if len(cfg.Currency) != 3 {
		add("currency must be a 3-letter code, got: %s", cfg.Currency)
	}

	if len(problems) == 0 {
		return nil
	}
	// map iteration above is unordered
	sort.Strings(problems)
	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for i, p := range problems {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, p)
	}
	return errors.New(b.String())
}

// Location returns the property time zone. Validate has already checked it.
func (cfg *Config) Location() *time.Location {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (cfg *Config) LogConfiguration(log *slog.Logger) {
	log.Info("configuration loaded",
		"port", cfg.Port,
		"store", cfg.Store,
		"sqlite_path", cfg.SQLitePath,
		"database_url_set", cfg.DatabaseURL != "",
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", strings.Join(cfg.KafkaBrokers, ","),
		"kafka_topic", cfg.KafkaTopic,
		"hold_ttl", cfg.HoldTTL,
		"sweep_interval", cfg.SweepInterval,
		"sweep_batch", cfg.SweepBatch,
		"lock_wait", cfg.LockWait,
		"retry_attempts", cfg.RetryAttempts,
		"check_in_hour", cfg.CheckInHour,
		"max_stay_nights", cfg.MaxStayNights,
		"time_zone", cfg.TimeZone,
		"currency", cfg.Currency,
		"nightly_rate", cfg.NightlyRate.String(),
		"log_level", cfg.LogLevel,
	)
}

// =============================================================================
// ENV HELPERS
// =============================================================================

func getEnvStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvNum(key string, def int) int {
	v := getEnvStr(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnvStr(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := getEnvStr(key, "")
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
