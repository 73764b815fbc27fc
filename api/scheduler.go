/*
scheduler.go - Periodic hold-expiry sweep

PURPOSE:
  Runs the inventory sweep on a ticker so that holds nobody confirmed are
  released without waiting for a request to touch them. The sweep itself
  (inventory.Sweeper) owns locking and per-hold error handling; this type
  only owns the cadence.

DESIGN:
  - One background goroutine with a configurable interval
  - Runs once immediately on Start
  - RunNow triggers an out-of-band pass (POST /api/admin/sweep)
  - Stop waits for an in-flight pass to finish

USAGE:
  scheduler := NewSweepScheduler(sweeper, time.Minute, log)
  scheduler.Start()
  defer scheduler.Stop()

SEE ALSO:
  - inventory/sweeper.go: Sweeper, SweepLock
  - lock/redis.go: Cross-process sweep lock
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/lodging-engine/inventory"
)

// Sweeper is the part of *inventory.Sweeper the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (inventory.SweepResult, error)
}

type SweepScheduler struct {
	Sweeper  Sweeper
	Interval time.Duration
	Enabled  bool

	log    *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	runMu  sync.Mutex
	resMu  sync.Mutex
	last   inventory.SweepResult
	lastAt time.Time
}

func NewSweepScheduler(sweeper Sweeper, interval time.Duration, log *slog.Logger) *SweepScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &SweepScheduler{
		Sweeper:  sweeper,
		Interval: interval,
		Enabled:  true,
		log:      log,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("sweep scheduler disabled", "component", "sweeper")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run(ctx, s.ticker.C, s.stop)

	s.log.Info("sweep scheduler started", "component", "sweeper", "interval", s.Interval)
}

// Stop halts the ticker and waits for the running pass.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.cancel()
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("sweep scheduler stopped", "component", "sweeper")
}

// RunNow runs one sweep pass synchronously. Passes never overlap within
// a process.
func (s *SweepScheduler) RunNow(ctx context.Context) (inventory.SweepResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res, err := s.Sweeper.Sweep(ctx)
	if err != nil {
		return res, err
	}
	s.resMu.Lock()
	s.last = res
	s.lastAt = time.Now()
	s.resMu.Unlock()
	return res, nil
}

// Last returns the result of the most recent successful pass.
func (s *SweepScheduler) Last() (inventory.SweepResult, time.Time) {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	return s.last, s.lastAt
}

func (s *SweepScheduler) run(ctx context.Context, ticks <-chan time.Time, stop <-chan struct{}) {
	defer s.wg.Done()

	s.tick(ctx)
	for {
		select {
		case <-ticks:
			s.tick(ctx)
		case <-stop:
			return
		}
	}
}

func (s *SweepScheduler) tick(ctx context.Context) {
	if _, err := s.RunNow(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("hold sweep failed", "component", "sweeper", "error", err)
	}
}
