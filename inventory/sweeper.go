package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/warp/lodging-engine/core"
)

// =============================================================================
// SWEEPER - Periodic release of expired holds
// =============================================================================

// DefaultSweepBatch caps how many expired holds one pass processes.
const DefaultSweepBatch = 500

// ExpiryHandler expires a single hold together with whatever owns it. The
// booking engine implements it so that the hold and its booking move to
// EXPIRED in the same transaction. It reports false when the hold was
// consumed or released before the handler got to it.
type ExpiryHandler interface {
	ExpireHold(ctx context.Context, hold core.HoldRecord) (bool, error)
}

// SweepLock guarantees a single sweeper across processes. TryLock never
// blocks: ok is false when another sweeper is running.
type SweepLock interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// LocalLock is a SweepLock for a single process.
type LocalLock struct {
	mu sync.Mutex
}

func (l *LocalLock) TryLock(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Scanned   int  `json:"scanned"`
	Expired   int  `json:"expired"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	Contended bool `json:"contended"`
}

type Sweeper struct {
	holds   *Holds
	store   core.HoldStore
	handler ExpiryHandler
	lock    SweepLock
	batch   int
	log     *slog.Logger
}

type SweeperOption func(*Sweeper)

func WithSweepLock(lock SweepLock) SweeperOption {
	return func(s *Sweeper) { s.lock = lock }
}

func WithSweepBatch(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithSweepLogger(log *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.log = log }
}

func NewSweeper(holds *Holds, store core.HoldStore, handler ExpiryHandler, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		holds:   holds,
		store:   store,
		handler: handler,
		lock:    &LocalLock{},
		batch:   DefaultSweepBatch,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep expires up to one batch of due holds. A failure on one hold is
// logged and counted; the pass continues with the next. When another
// sweeper holds the SweepLock the pass does nothing and reports Contended.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	unlock, ok, err := s.lock.TryLock(ctx)
	if err != nil {
		return res, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		res.Contended = true
		return res, nil
	}
	defer unlock()

	due, err := s.holds.Due(ctx, s.store, s.batch)
	if err != nil {
		return res, fmt.Errorf("list expired holds: %w", err)
	}

	for _, hold := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Scanned++
		expired, err := s.handler.ExpireHold(ctx, hold)
		switch {
		case err != nil:
			res.Failed++
			s.log.Warn("hold expiry failed",
				"component", "sweeper",
				"token", hold.Token,
				"booking_id", hold.BookingID,
				"error", err,
			)
		case expired:
			res.Expired++
		default:
			res.Skipped++
		}
	}

	if res.Scanned > 0 {
		s.log.Info("hold sweep finished",
			"component", "sweeper",
			"scanned", res.Scanned,
			"expired", res.Expired,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
	return res, nil
}
