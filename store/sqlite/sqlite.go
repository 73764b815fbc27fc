/*
Package sqlite provides a SQLite-backed implementation of core.Store.

PURPOSE:
  Implements every persistence interface (bookings, inventory days, hold
  records, payments, audit entries) using SQLite, for single-node
  deployments and local development. The Postgres store (store/postgres)
  follows the same schema with native types.

KEY TABLES:
  bookings:       One row per booking. Filterable columns plus the full
                  record in booking_json.
  inventory_days: Counters per (room_type_id, date). CHECK constraints keep
                  every counter non-negative.
  holds:          Hold records keyed by token.
  payments:       APPEND-ONLY money movements, ordered by seq.
  audit_log:      APPEND-ONLY audit entries, ordered by seq.

APPEND-ONLY ENFORCEMENT:
  There is no UPDATE or DELETE statement against payments or audit_log.
  Refunds are new negative rows.

VERSIONING:
  Updates are "UPDATE ... WHERE key = ? AND version = ?" with the previous
  version. Zero affected rows means someone else wrote first and the
  store returns core.ErrConcurrencyConflict.

CONCURRENCY:
  SQLite allows one writer at a time. The pool is capped at a single
  connection, so transactions are serialized by database/sql itself and
  ":memory:" databases stay on the connection that migrated them.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

TIMESTAMPS:
  Stored as INTEGER unix nanoseconds (UTC) so that range scans such as
  ListExpiredHolds compare numerically. Dates are TEXT YYYY-MM-DD.

USAGE:
  store, err := sqlite.New("./data/lodging.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := booking.NewEngine(store)

SEE ALSO:
  - core/store.go: Interface definitions
  - core/store/memory.go: In-memory implementation for testing
  - store/postgres: Production backend
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/core"
)

// Store implements core.Store using SQLite.
type Store struct {
	queries
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bookings (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		property_id TEXT NOT NULL,
		room_type_id TEXT NOT NULL,
		guest_id TEXT NOT NULL,
		status TEXT NOT NULL,
		source TEXT NOT NULL,
		stay_start TEXT NOT NULL,
		stay_end TEXT NOT NULL,
		version INTEGER NOT NULL,
		booking_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);
	CREATE INDEX IF NOT EXISTS idx_bookings_guest ON bookings(guest_id);

	-- Overlap queries: stay_start < :end AND stay_end > :start
	CREATE INDEX IF NOT EXISTS idx_bookings_room_type_stay
		ON bookings(room_type_id, stay_start, stay_end);

	CREATE TABLE IF NOT EXISTS inventory_days (
		room_type_id TEXT NOT NULL,
		date TEXT NOT NULL,
		total_capacity INTEGER NOT NULL CHECK (total_capacity >= 0),
		holds INTEGER NOT NULL CHECK (holds >= 0),
		confirmed INTEGER NOT NULL CHECK (confirmed >= 0),
		version INTEGER NOT NULL,
		PRIMARY KEY (room_type_id, date)
	);

	CREATE TABLE IF NOT EXISTS holds (
		token TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL,
		property_id TEXT NOT NULL,
		room_type_id TEXT NOT NULL,
		stay_start TEXT NOT NULL,
		stay_end TEXT NOT NULL,
		rooms INTEGER NOT NULL,
		status TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Sweep hot path
	CREATE INDEX IF NOT EXISTS idx_holds_active_expiry
		ON holds(expires_at) WHERE status = 'ACTIVE';

	CREATE TABLE IF NOT EXISTS payments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		booking_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		external_txn_id TEXT,
		refund_of TEXT,
		reason TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_booking ON payments(booking_id, seq);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		booking_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor TEXT NOT NULL,
		ts INTEGER NOT NULL,
		metadata_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_booking ON audit_log(booking_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a SQLite transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx core.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

var _ core.Store = (*Store)(nil)

// =============================================================================
// QUERIES - core.Tx over a *sql.DB or *sql.Tx
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// --- bookings ---

func (q queries) GetBooking(ctx context.Context, id string) (core.Booking, error) {
	var data string
	err := q.db.QueryRowContext(ctx, "SELECT booking_json FROM bookings WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Booking{}, core.NotFound("booking", id)
	}
	if err != nil {
		return core.Booking{}, fmt.Errorf("failed to get booking: %w", err)
	}
	return decodeBooking(data)
}

func (q queries) InsertBooking(ctx context.Context, b core.Booking) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode booking: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO bookings
		(id, property_id, room_type_id, guest_id, status, source, stay_start, stay_end,
		 version, booking_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.PropertyID, b.RoomTypeID, b.Guest.ID, string(b.Status), string(b.Source),
		b.Stay.Start.String(), b.Stay.End.String(),
		b.Version, string(data), nanos(b.CreatedAt), nanos(b.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return core.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (q queries) UpdateBooking(ctx context.Context, b core.Booking) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode booking: %w", err)
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE bookings
		SET property_id = ?, room_type_id = ?, guest_id = ?, status = ?, source = ?,
		    stay_start = ?, stay_end = ?, version = ?, booking_json = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		b.PropertyID, b.RoomTypeID, b.Guest.ID, string(b.Status), string(b.Source),
		b.Stay.Start.String(), b.Stay.End.String(), b.Version, string(data), nanos(b.UpdatedAt),
		b.ID, b.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	return q.checkVersioned(ctx, res, "booking", "SELECT version FROM bookings WHERE id = ?", b.ID)
}

func (q queries) ListBookings(ctx context.Context, filter core.BookingFilter) ([]core.Booking, error) {
	var where []string
	var args []any
	add := func(clause string, vals ...any) {
		where = append(where, clause)
		args = append(args, vals...)
	}
	if filter.PropertyID != "" {
		add("property_id = ?", filter.PropertyID)
	}
	if filter.RoomTypeID != "" {
		add("room_type_id = ?", filter.RoomTypeID)
	}
	if filter.GuestID != "" {
		add("guest_id = ?", filter.GuestID)
	}
	if filter.Source != "" {
		add("source = ?", string(filter.Source))
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		vals := make([]any, len(filter.Statuses))
		for i, s := range filter.Statuses {
			marks[i] = "?"
			vals[i] = string(s)
		}
		add("status IN ("+strings.Join(marks, ", ")+")", vals...)
	}
	if r := filter.StayOverlaps; r != nil {
		add("stay_start < ? AND stay_end > ?", r.End.String(), r.Start.String())
	}

	query := "SELECT booking_json FROM bookings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	out := make([]core.Booking, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		b, err := decodeBooking(data)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- inventory ---

func (q queries) LoadDays(ctx context.Context, roomTypeID string, dates []core.Date) (map[core.Date]core.InventoryDay, error) {
	out := make(map[core.Date]core.InventoryDay, len(dates))
	if len(dates) == 0 {
		return out, nil
	}
	marks := make([]string, len(dates))
	args := []any{roomTypeID}
	for i, d := range dates {
		marks[i] = "?"
		args = append(args, d.String())
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT date, total_capacity, holds, confirmed, version
		FROM inventory_days
		WHERE room_type_id = ? AND date IN (`+strings.Join(marks, ", ")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date string
		day := core.InventoryDay{RoomTypeID: roomTypeID}
		if err := rows.Scan(&date, &day.TotalCapacity, &day.Holds, &day.Confirmed, &day.Version); err != nil {
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		if day.Date, err = core.ParseDate(date); err != nil {
			return nil, err
		}
		out[day.Date] = day
	}
	return out, rows.Err()
}

func (q queries) SaveDays(ctx context.Context, days []core.InventoryDay) error {
	for _, day := range days {
		if day.Version == 1 {
			_, err := q.db.ExecContext(ctx, `
				INSERT INTO inventory_days (room_type_id, date, total_capacity, holds, confirmed, version)
				VALUES (?, ?, ?, ?, ?, 1)`,
				day.RoomTypeID, day.Date.String(), day.TotalCapacity, day.Holds, day.Confirmed,
			)
			if isUniqueConstraintError(err) {
				return core.Conflict("inventory %s/%s was created concurrently", day.RoomTypeID, day.Date)
			}
			if err != nil {
				return fmt.Errorf("failed to insert inventory day: %w", err)
			}
			continue
		}
		res, err := q.db.ExecContext(ctx, `
			UPDATE inventory_days
			SET total_capacity = ?, holds = ?, confirmed = ?, version = ?
			WHERE room_type_id = ? AND date = ? AND version = ?`,
			day.TotalCapacity, day.Holds, day.Confirmed, day.Version,
			day.RoomTypeID, day.Date.String(), day.Version-1,
		)
		if err != nil {
			return fmt.Errorf("failed to update inventory day: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.Conflict("inventory %s/%s changed concurrently", day.RoomTypeID, day.Date)
		}
	}
	return nil
}

// --- holds ---

const holdColumns = `token, booking_id, property_id, room_type_id, stay_start, stay_end,
	rooms, status, expires_at, version, created_at, updated_at`

func (q queries) GetHold(ctx context.Context, token string) (core.HoldRecord, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+holdColumns+" FROM holds WHERE token = ?", token)
	h, err := scanHold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.HoldRecord{}, core.NotFound("hold", token)
	}
	return h, err
}

func (q queries) InsertHold(ctx context.Context, h core.HoldRecord) error {
	_, err := q.db.ExecContext(ctx, "INSERT INTO holds ("+holdColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		h.Token, h.BookingID, h.PropertyID, h.RoomTypeID, h.Stay.Start.String(), h.Stay.End.String(),
		h.Rooms, string(h.Status), nanos(h.ExpiresAt), h.Version, nanos(h.CreatedAt), nanos(h.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return core.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert hold: %w", err)
	}
	return nil
}

func (q queries) UpdateHold(ctx context.Context, h core.HoldRecord) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE holds
		SET status = ?, expires_at = ?, version = ?, updated_at = ?
		WHERE token = ? AND version = ?`,
		string(h.Status), nanos(h.ExpiresAt), h.Version, nanos(h.UpdatedAt),
		h.Token, h.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update hold: %w", err)
	}
	return q.checkVersioned(ctx, res, "hold", "SELECT version FROM holds WHERE token = ?", h.Token)
}

func (q queries) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]core.HoldRecord, error) {
	query := "SELECT " + holdColumns + " FROM holds WHERE status = 'ACTIVE' AND expires_at < ? ORDER BY expires_at ASC, token ASC"
	args := []any{nanos(now)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired holds: %w", err)
	}
	defer rows.Close()

	out := make([]core.HoldRecord, 0)
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- payments ---

const paymentColumns = `id, booking_id, amount, currency, method, status,
	external_txn_id, refund_of, reason, created_at`

func (q queries) AppendPayment(ctx context.Context, p core.Payment) error {
	_, err := q.db.ExecContext(ctx, "INSERT INTO payments ("+paymentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.BookingID, p.Amount.String(), p.Currency, string(p.Method), string(p.Status),
		nullString(p.ExternalTxnID), nullString(p.RefundOf), nullString(p.Reason), nanos(p.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return core.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

func (q queries) GetPayment(ctx context.Context, id string) (core.Payment, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Payment{}, core.NotFound("payment", id)
	}
	return p, err
}

func (q queries) ListPayments(ctx context.Context, bookingID string) ([]core.Payment, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE booking_id = ? ORDER BY seq ASC", bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	out := make([]core.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- audit ---

func (q queries) AppendAudit(ctx context.Context, e core.AuditEntry) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, booking_id, action, actor, ts, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.BookingID, string(e.Action), e.Actor, nanos(e.Timestamp), string(metadataJSON),
	)
	if isUniqueConstraintError(err) {
		return core.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (q queries) ListAudit(ctx context.Context, bookingID string) ([]core.AuditEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, booking_id, action, actor, ts, metadata_json
		FROM audit_log WHERE booking_id = ? ORDER BY seq ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]core.AuditEntry, 0)
	for rows.Next() {
		var e core.AuditEntry
		var action string
		var ts int64
		var metadataJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.BookingID, &action, &e.Actor, &ts, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = core.AuditAction(action)
		e.Timestamp = fromNanos(ts)
		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// checkVersioned turns a zero-row versioned UPDATE into NotFound or Conflict.
func (q queries) checkVersioned(ctx context.Context, res sql.Result, kind, versionQuery, id string) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var version int
	err := q.db.QueryRowContext(ctx, versionQuery, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NotFound(kind, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s version: %w", kind, err)
	}
	return core.Conflict("%s %s: stored version %d changed concurrently", kind, id, version)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHold(row scanner) (core.HoldRecord, error) {
	var h core.HoldRecord
	var start, end, status string
	var expiresAt, createdAt, updatedAt int64
	if err := row.Scan(&h.Token, &h.BookingID, &h.PropertyID, &h.RoomTypeID, &start, &end,
		&h.Rooms, &status, &expiresAt, &h.Version, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.HoldRecord{}, err
		}
		return core.HoldRecord{}, fmt.Errorf("failed to scan hold: %w", err)
	}
	stay, err := parseStay(start, end)
	if err != nil {
		return core.HoldRecord{}, err
	}
	h.Stay = stay
	h.Status = core.HoldStatus(status)
	h.ExpiresAt = fromNanos(expiresAt)
	h.CreatedAt = fromNanos(createdAt)
	h.UpdatedAt = fromNanos(updatedAt)
	return h, nil
}

func scanPayment(row scanner) (core.Payment, error) {
	var p core.Payment
	var amount, method, status string
	var externalTxnID, refundOf, reason sql.NullString
	var createdAt int64
	if err := row.Scan(&p.ID, &p.BookingID, &amount, &p.Currency, &method, &status,
		&externalTxnID, &refundOf, &reason, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Payment{}, err
		}
		return core.Payment{}, fmt.Errorf("failed to scan payment: %w", err)
	}
	v, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Payment{}, fmt.Errorf("failed to parse payment amount %q: %w", amount, err)
	}
	p.Amount = v
	p.Method = core.PaymentMethod(method)
	p.Status = core.PaymentStatus(status)
	p.ExternalTxnID = externalTxnID.String
	p.RefundOf = refundOf.String
	p.Reason = reason.String
	p.CreatedAt = fromNanos(createdAt)
	return p, nil
}

func decodeBooking(data string) (core.Booking, error) {
	var b core.Booking
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return core.Booking{}, fmt.Errorf("failed to decode booking: %w", err)
	}
	return b, nil
}

func parseStay(start, end string) (core.DateRange, error) {
	s, err := core.ParseDate(start)
	if err != nil {
		return core.DateRange{}, err
	}
	e, err := core.ParseDate(end)
	if err != nil {
		return core.DateRange{}, err
	}
	return core.DateRange{Start: s, End: e}, nil
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
