package config

import "time"

const (
	EnvPort          = "PORT"
	EnvStore         = "STORE"
	EnvSQLitePath    = "SQLITE_PATH"
	EnvDatabaseURL   = "DATABASE_URL"
	EnvDBMaxConns    = "DB_MAX_CONNS"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvSweepLockKey  = "SWEEP_LOCK_KEY"
	EnvSweepLockTTL  = "SWEEP_LOCK_TTL"
	EnvKafkaBrokers  = "KAFKA_BROKERS"
	EnvKafkaTopic    = "KAFKA_TOPIC"

	EnvHoldTTL       = "HOLD_TTL"
	EnvSweepInterval = "SWEEP_INTERVAL"
	EnvSweepBatch    = "SWEEP_BATCH"
	EnvLockWait      = "LOCK_WAIT"
	EnvRetryAttempts = "RETRY_ATTEMPTS"
	EnvRetryBackoff  = "RETRY_BACKOFF"
	EnvCheckInHour   = "CHECK_IN_HOUR"
	EnvMaxStayNights = "MAX_STAY_NIGHTS"
	EnvTimeZone      = "PROPERTY_TIME_ZONE"
	EnvCurrency      = "CURRENCY"
	EnvNightlyRate   = "NIGHTLY_RATE"
	EnvPoliciesFile  = "POLICIES_FILE"

	EnvCORSOrigins     = "CORS_ORIGINS"
	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"
)

const (
	DefaultPort         = "8080"
	DefaultStore        = StoreSQLite
	DefaultSQLitePath   = "lodging.db"
	DefaultDBMaxConns   = 8
	DefaultSweepLockKey = "lodging:sweep-lock"
	DefaultSweepLockTTL = 30 * time.Second
	DefaultKafkaTopic   = "booking-events"

	DefaultHoldTTL       = 15 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultSweepBatch    = 100
	DefaultLockWait      = 2 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 25 * time.Millisecond
	DefaultCheckInHour   = 15
	DefaultMaxStayNights = 365
	DefaultTimeZone      = "UTC"
	DefaultCurrency      = "EUR"
	DefaultNightlyRate   = "100.00"

	DefaultCORSOrigins     = "*"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)
