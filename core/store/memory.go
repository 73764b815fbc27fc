// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/lodging-engine/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every table in maps guarded by one RWMutex. The mutex is held
// only while reading or while applying a committed write set; transactions
// stage their writes privately, so concurrent transactions on different
// inventory keys never wait on each other.
type Memory struct {
	mu             sync.RWMutex
	bookings       map[string]core.Booking
	order          []string // booking ids in insertion order
	days           map[dayKey]core.InventoryDay
	holds          map[string]core.HoldRecord
	payments       map[string][]core.Payment
	paymentBooking map[string]string // payment id -> booking id
	audit          map[string][]core.AuditEntry
}

type dayKey struct {
	RoomTypeID string
	Date       core.Date
}

func NewMemory() *Memory {
	return &Memory{
		bookings:       make(map[string]core.Booking),
		days:           make(map[dayKey]core.InventoryDay),
		holds:          make(map[string]core.HoldRecord),
		payments:       make(map[string][]core.Payment),
		paymentBooking: make(map[string]string),
		audit:          make(map[string][]core.AuditEntry),
	}
}

var _ core.Store = (*Memory)(nil)

// =============================================================================
// READS
// =============================================================================

func (m *Memory) GetBooking(_ context.Context, id string) (core.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return core.Booking{}, core.NotFound("booking", id)
	}
	return cloneBooking(b), nil
}

func (m *Memory) ListBookings(_ context.Context, filter core.BookingFilter) ([]core.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]core.Booking, 0, len(m.order))
	for _, id := range m.order {
		all = append(all, cloneBooking(m.bookings[id]))
	}
	return applyFilter(all, filter), nil
}

func (m *Memory) LoadDays(_ context.Context, roomTypeID string, dates []core.Date) (map[core.Date]core.InventoryDay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[core.Date]core.InventoryDay, len(dates))
	for _, d := range dates {
		if day, ok := m.days[dayKey{RoomTypeID: roomTypeID, Date: d}]; ok {
			out[d] = day
		}
	}
	return out, nil
}

func (m *Memory) GetHold(_ context.Context, token string) (core.HoldRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holds[token]
	if !ok {
		return core.HoldRecord{}, core.NotFound("hold", token)
	}
	return h, nil
}

func (m *Memory) ListExpiredHolds(_ context.Context, now time.Time, limit int) ([]core.HoldRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]core.HoldRecord, 0)
	for _, h := range m.holds {
		all = append(all, h)
	}
	return expiredHolds(all, now, limit), nil
}

func (m *Memory) GetPayment(_ context.Context, id string) (core.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPaymentLocked(id)
}

func (m *Memory) getPaymentLocked(id string) (core.Payment, error) {
	bookingID, ok := m.paymentBooking[id]
	if !ok {
		return core.Payment{}, core.NotFound("payment", id)
	}
	for _, p := range m.payments[bookingID] {
		if p.ID == id {
			return p, nil
		}
	}
	return core.Payment{}, core.NotFound("payment", id)
}

func (m *Memory) ListPayments(_ context.Context, bookingID string) ([]core.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.Payment(nil), m.payments[bookingID]...), nil
}

func (m *Memory) ListAudit(_ context.Context, bookingID string) ([]core.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.AuditEntry(nil), m.audit[bookingID]...), nil
}

// =============================================================================
// WRITES OUTSIDE A TRANSACTION - each is a single-statement transaction
// =============================================================================

func (m *Memory) InsertBooking(ctx context.Context, b core.Booking) error {
	return m.WithTx(ctx, func(tx core.Tx) error { return tx.InsertBooking(ctx, b) })
}

func (m *Memory) UpdateBooking(ctx context.Context, b core.Booking) error {
	return m.WithTx(ctx, func(tx core.Tx) error { return tx.UpdateBooking(ctx, b) })
}

func (m *Memory) SaveDays(ctx context.Context, days []core.InventoryDay) error {
	return m.WithTx(ctx, func(tx core.Tx) error { return tx.SaveDays(ctx, days) })
}

func (m *Memory) InsertHold(ctx context.Context, h core.HoldRecord) error {
	return m.WithTx(ctx, func(tx core.Tx) error { return tx.InsertHold(ctx, h) })
}

func (m *Memory) UpdateHold(ctx context.Context, h core.HoldRecord) error {
	return m.WithTx(ctx, func(tx core.Tx) error { return tx.UpdateHold(ctx, h) })
}

func (m *Memory) AppendPayment(ctx context.Context, p core.Payment) error {
	return m.WithTx(ctx, func(tx core.Tx) error { return tx.AppendPayment(ctx, p) })
}

func (m *Memory) AppendAudit(ctx context.Context, e core.AuditEntry) error {
	return m.WithTx(ctx, func(tx core.Tx) error { return tx.AppendAudit(ctx, e) })
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// staged is a pending write plus the version it was based on.
type staged[T any] struct {
	val   T
	base  int  // stored version when first staged (0 = absent)
	fresh bool // inserted by this transaction
}

type memTx struct {
	m        *Memory
	bookings map[string]*staged[core.Booking]
	newOrder []string
	days     map[dayKey]*staged[core.InventoryDay]
	holds    map[string]*staged[core.HoldRecord]
	payments []core.Payment
	audit    []core.AuditEntry
}

// WithTx executes fn within a transaction.
// Writes are staged in the transaction and applied under the store mutex
// only after fn returns nil. At commit every staged row's base version is
// re-checked, so a concurrent writer that slipped in surfaces as
// ErrConcurrencyConflict instead of a lost update.
func (m *Memory) WithTx(ctx context.Context, fn func(core.Tx) error) error {
	tx := &memTx{
		m:        m,
		bookings: make(map[string]*staged[core.Booking]),
		days:     make(map[dayKey]*staged[core.InventoryDay]),
		holds:    make(map[string]*staged[core.HoldRecord]),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.commit(tx)
}

func (m *Memory) commit(tx *memTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate everything first so the apply phase cannot fail halfway.
	for id, s := range tx.bookings {
		cur, exists := m.bookings[id]
		if s.fresh && exists {
			return core.ErrDuplicate
		}
		if !s.fresh && (!exists || cur.Version != s.base) {
			return core.Conflict("booking %s changed concurrently", id)
		}
	}
	for k, s := range tx.days {
		if m.days[k].Version != s.base {
			return core.Conflict("inventory %s/%s changed concurrently", k.RoomTypeID, k.Date)
		}
	}
	for token, s := range tx.holds {
		cur, exists := m.holds[token]
		if s.fresh && exists {
			return core.ErrDuplicate
		}
		if !s.fresh && (!exists || cur.Version != s.base) {
			return core.Conflict("hold %s changed concurrently", token)
		}
	}
	for _, p := range tx.payments {
		if _, exists := m.paymentBooking[p.ID]; exists {
			return core.ErrDuplicate
		}
	}

	for id, s := range tx.bookings {
		m.bookings[id] = s.val
	}
	m.order = append(m.order, tx.newOrder...)
	for k, s := range tx.days {
		m.days[k] = s.val
	}
	for token, s := range tx.holds {
		m.holds[token] = s.val
	}
	for _, p := range tx.payments {
		m.payments[p.BookingID] = append(m.payments[p.BookingID], p)
		m.paymentBooking[p.ID] = p.BookingID
	}
	for _, e := range tx.audit {
		m.audit[e.BookingID] = append(m.audit[e.BookingID], e)
	}
	return nil
}

// --- bookings ---

func (t *memTx) GetBooking(ctx context.Context, id string) (core.Booking, error) {
	if s, ok := t.bookings[id]; ok {
		return cloneBooking(s.val), nil
	}
	return t.m.GetBooking(ctx, id)
}

func (t *memTx) InsertBooking(ctx context.Context, b core.Booking) error {
	if _, ok := t.bookings[b.ID]; ok {
		return core.ErrDuplicate
	}
	if _, err := t.m.GetBooking(ctx, b.ID); err == nil {
		return core.ErrDuplicate
	}
	t.bookings[b.ID] = &staged[core.Booking]{val: cloneBooking(b), fresh: true}
	t.newOrder = append(t.newOrder, b.ID)
	return nil
}

func (t *memTx) UpdateBooking(ctx context.Context, b core.Booking) error {
	cur, err := t.GetBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	if cur.Version != b.Version-1 {
		return core.Conflict("booking %s: stored version %d, update carries %d", b.ID, cur.Version, b.Version)
	}
	if s, ok := t.bookings[b.ID]; ok {
		s.val = cloneBooking(b)
		return nil
	}
	t.bookings[b.ID] = &staged[core.Booking]{val: cloneBooking(b), base: cur.Version}
	return nil
}

func (t *memTx) ListBookings(ctx context.Context, filter core.BookingFilter) ([]core.Booking, error) {
	t.m.mu.RLock()
	all := make([]core.Booking, 0, len(t.m.order)+len(t.newOrder))
	for _, id := range t.m.order {
		b := t.m.bookings[id]
		if s, ok := t.bookings[id]; ok {
			b = s.val
		}
		all = append(all, cloneBooking(b))
	}
	t.m.mu.RUnlock()
	for _, id := range t.newOrder {
		all = append(all, cloneBooking(t.bookings[id].val))
	}
	return applyFilter(all, filter), nil
}

// --- inventory ---

func (t *memTx) LoadDays(ctx context.Context, roomTypeID string, dates []core.Date) (map[core.Date]core.InventoryDay, error) {
	out, err := t.m.LoadDays(ctx, roomTypeID, dates)
	if err != nil {
		return nil, err
	}
	for _, d := range dates {
		if s, ok := t.days[dayKey{RoomTypeID: roomTypeID, Date: d}]; ok {
			out[d] = s.val
		}
	}
	return out, nil
}

func (t *memTx) SaveDays(ctx context.Context, days []core.InventoryDay) error {
	for _, day := range days {
		k := dayKey{RoomTypeID: day.RoomTypeID, Date: day.Date}
		current, err := t.LoadDays(ctx, day.RoomTypeID, []core.Date{day.Date})
		if err != nil {
			return err
		}
		curVersion := current[day.Date].Version
		if curVersion != day.Version-1 {
			return core.Conflict("inventory %s/%s: stored version %d, update carries %d",
				day.RoomTypeID, day.Date, curVersion, day.Version)
		}
		if s, ok := t.days[k]; ok {
			s.val = day
			continue
		}
		t.days[k] = &staged[core.InventoryDay]{val: day, base: curVersion}
	}
	return nil
}

// --- holds ---

func (t *memTx) GetHold(ctx context.Context, token string) (core.HoldRecord, error) {
	if s, ok := t.holds[token]; ok {
		return s.val, nil
	}
	return t.m.GetHold(ctx, token)
}

func (t *memTx) InsertHold(ctx context.Context, h core.HoldRecord) error {
	if _, err := t.GetHold(ctx, h.Token); err == nil {
		return core.ErrDuplicate
	}
	t.holds[h.Token] = &staged[core.HoldRecord]{val: h, fresh: true}
	return nil
}

func (t *memTx) UpdateHold(ctx context.Context, h core.HoldRecord) error {
	cur, err := t.GetHold(ctx, h.Token)
	if err != nil {
		return err
	}
	if cur.Version != h.Version-1 {
		return core.Conflict("hold %s: stored version %d, update carries %d", h.Token, cur.Version, h.Version)
	}
	if s, ok := t.holds[h.Token]; ok {
		s.val = h
		return nil
	}
	t.holds[h.Token] = &staged[core.HoldRecord]{val: h, base: cur.Version}
	return nil
}

func (t *memTx) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]core.HoldRecord, error) {
	t.m.mu.RLock()
	all := make([]core.HoldRecord, 0, len(t.m.holds)+len(t.holds))
	for token, h := range t.m.holds {
		if _, ok := t.holds[token]; !ok {
			all = append(all, h)
		}
	}
	t.m.mu.RUnlock()
	for _, s := range t.holds {
		all = append(all, s.val)
	}
	return expiredHolds(all, now, limit), nil
}

// --- payments ---

func (t *memTx) AppendPayment(ctx context.Context, p core.Payment) error {
	if _, err := t.GetPayment(ctx, p.ID); err == nil {
		return core.ErrDuplicate
	}
	t.payments = append(t.payments, p)
	return nil
}

func (t *memTx) GetPayment(ctx context.Context, id string) (core.Payment, error) {
	for _, p := range t.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return t.m.GetPayment(ctx, id)
}

func (t *memTx) ListPayments(ctx context.Context, bookingID string) ([]core.Payment, error) {
	out, err := t.m.ListPayments(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	for _, p := range t.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- audit ---

func (t *memTx) AppendAudit(_ context.Context, e core.AuditEntry) error {
	t.audit = append(t.audit, e)
	return nil
}

func (t *memTx) ListAudit(ctx context.Context, bookingID string) ([]core.AuditEntry, error) {
	out, err := t.m.ListAudit(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	for _, e := range t.audit {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func cloneBooking(b core.Booking) core.Booking {
	if b.RoomAssignments != nil {
		b.RoomAssignments = append([]string(nil), b.RoomAssignments...)
	}
	return b
}

func applyFilter(all []core.Booking, filter core.BookingFilter) []core.Booking {
	out := make([]core.Booking, 0)
	for _, b := range all {
		if filter.Matches(b) {
			out = append(out, b)
		}
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []core.Booking{}
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func expiredHolds(all []core.HoldRecord, now time.Time, limit int) []core.HoldRecord {
	out := make([]core.HoldRecord, 0)
	for _, h := range all {
		if h.Status == core.HoldActive && h.ExpiresAt.Before(now) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
