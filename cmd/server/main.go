/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the lodging booking engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, .env, environment, flags)
  2. Open the store (memory, SQLite or Postgres + migrations)
  3. Load cancellation policies (presets, then POLICIES_FILE)
  4. Optional: Kafka event publisher, Redis sweep lock
  5. Build the engine, sweep scheduler and HTTP router
  6. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -port          HTTP server port (default: 8080)
  -store         memory | sqlite | postgres (default: sqlite)
  -db            SQLite database path (default: lodging.db)
                 Use ":memory:" for in-memory database
  -database-url  Postgres connection string

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler (waits for an in-flight pass)
  2. Stop accepting new connections
  3. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  4. Flush the event publisher and close the store

EXAMPLES:
  ./server -db="./data/lodging.db"
  ./server -store=memory -port=3000
  DATABASE_URL=postgres://... REDIS_ADDR=redis:6379 KAFKA_BROKERS=kafka:9092 ./server -store=postgres

SEE ALSO:
  - config/config.go: Every knob and its environment variable
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/lodging-engine/api"
	"github.com/warp/lodging-engine/booking"
	"github.com/warp/lodging-engine/cancellation"
	"github.com/warp/lodging-engine/config"
	"github.com/warp/lodging-engine/core"
	"github.com/warp/lodging-engine/core/store"
	"github.com/warp/lodging-engine/events"
	"github.com/warp/lodging-engine/factory"
	"github.com/warp/lodging-engine/inventory"
	"github.com/warp/lodging-engine/lock"
	"github.com/warp/lodging-engine/logger"
	"github.com/warp/lodging-engine/payment"
	"github.com/warp/lodging-engine/store/postgres"
	"github.com/warp/lodging-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.New(logger.Config{Service: "lodging-engine"}).Fatal("invalid configuration", "error", err)
	}
	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "lodging-engine",
	})
	cfg.LogConfiguration(log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize store", "store", cfg.Store, "error", err)
	}
	defer closeStore()

	// Policies
	policies := cancellation.NewCatalog()
	if cfg.PoliciesFile != "" {
		loaded, err := factory.NewPolicyFactory().LoadFile(cfg.PoliciesFile)
		if err != nil {
			log.Fatal("failed to load policies", "file", cfg.PoliciesFile, "error", err)
		}
		for _, p := range loaded {
			if err := policies.Put(p); err != nil {
				log.Fatal("invalid policy", "policy_id", p.ID, "error", err)
			}
		}
		log.Info("cancellation policies loaded", "count", len(loaded))
	}

	opts := []booking.Option{
		booking.WithLogger(log.Logger),
		booking.WithRates(booking.NewRateCard(cfg.Currency, cfg.NightlyRate)),
		booking.WithPolicies(policies),
		booking.WithGateway(payment.NewManualGateway()),
		booking.WithHoldTTL(cfg.HoldTTL),
		booking.WithLockWait(cfg.LockWait),
		booking.WithRetry(core.RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}),
		booking.WithCheckInHour(cfg.CheckInHour),
		booking.WithMaxStayNights(cfg.MaxStayNights),
		booking.WithLocation(cfg.Location()),
	}

	// Events
	var publisher *events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewPublisher(events.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic), log.Logger)
		opts = append(opts, booking.WithNotifier(publisher))
		log.Info("publishing lifecycle events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	engine := booking.NewEngine(st, opts...)

	// Sweep
	sweepOpts := []inventory.SweeperOption{inventory.WithSweepBatch(cfg.SweepBatch)}
	if cfg.RedisAddr != "" {
		rdb := lock.NewClient(cfg.RedisAddr, cfg.RedisPassword, 0)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to reach redis", "addr", cfg.RedisAddr, "error", err)
		}
		sweepOpts = append(sweepOpts, inventory.WithSweepLock(lock.NewRedisLock(rdb, cfg.SweepLockKey, cfg.SweepLockTTL)))
	}
	scheduler := api.NewSweepScheduler(engine.NewSweeper(sweepOpts...), cfg.SweepInterval, log.Logger)
	scheduler.Start()

	// HTTP
	handler := api.NewHandler(engine, policies, scheduler, log.Logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error("event publisher close failed", "error", err)
		}
	}
	log.Info("server stopped")
}

// openStore returns the configured store and its cleanup.
func openStore(ctx context.Context, cfg *config.Config) (core.Store, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemory(), func() {}, nil

	case config.StorePostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := postgres.Connect(connectCtx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(connectCtx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.New(pool), pool.Close, nil

	default:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}
