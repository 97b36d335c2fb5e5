/*
Package sqlite provides a SQLite-backed implementation of loyalty.TxStore.

PURPOSE:
  Durable storage for users, the transaction ledger, events and promotions.
  The engines see only loyalty.TxStore; this package and loyalty/store
  (memory) are interchangeable.

APPEND-ONLY ENFORCEMENT:
  The transactions table is never DELETEd from. The only UPDATEs are the
  suspicious flag and the processed flag, and the engines pair each with a
  balance change in the same WithTx.

KEY TABLES:
  users:             accounts and their cached point balance
  transactions:      the ledger
  purchase_details:  spend and comment, one row per purchase
  promotion_usages:  (user, promotion, transaction), one row per applied promotion
  events:            event details and budget
  event_organizers:  organizer membership
  event_guests:      guest membership
  promotions:        promotion definitions
  reset_tokens:      single-use activation and password reset tokens

CONCURRENCY:
  The pool holds one connection, so WithTx serializes every writer and a
  capacity or budget check can never race its write. Reads outside WithTx
  wait for the connection like everyone else.

TIMES:
  Stored as fixed-width UTC text so string comparison orders them.

USAGE:
  store, err := sqlite.New("./data/rewards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store)

SEE ALSO:
  - loyalty/store.go: interface definitions
  - loyalty/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/campus/rewards-engine/loyalty"
)

// Store implements loyalty.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
}

var _ loyalty.TxStore = (*Store)(nil)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
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

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		utorid TEXT NOT NULL UNIQUE COLLATE NOCASE,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		name TEXT NOT NULL,
		role INTEGER NOT NULL DEFAULT 0,
		points INTEGER NOT NULL DEFAULT 0,
		verified INTEGER NOT NULL DEFAULT 0,
		suspicious INTEGER NOT NULL DEFAULT 0,
		password_hash TEXT NOT NULL DEFAULT '',
		last_login TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		location TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		capacity INTEGER,
		points_remain INTEGER NOT NULL CHECK (points_remain >= 0),
		points_awarded INTEGER NOT NULL DEFAULT 0,
		published INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time, id);

	CREATE TABLE IF NOT EXISTS event_organizers (
		event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id),
		PRIMARY KEY (event_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS event_guests (
		event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id),
		confirmed INTEGER NOT NULL DEFAULT 1,
		confirmed_at TEXT,
		PRIMARY KEY (event_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS promotions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		type TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		min_spending TEXT,
		rate TEXT,
		points INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_promotions_window ON promotions(type, start_time, end_time);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		user_id INTEGER NOT NULL REFERENCES users(id),
		created_by_id INTEGER NOT NULL REFERENCES users(id),
		remark TEXT NOT NULL DEFAULT '',
		event_id INTEGER REFERENCES events(id),
		related_tx_id INTEGER REFERENCES transactions(id),
		suspicious INTEGER NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		processed_by_id INTEGER REFERENCES users(id),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, id);
	CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(type);

	CREATE TABLE IF NOT EXISTS purchase_details (
		transaction_id INTEGER PRIMARY KEY REFERENCES transactions(id),
		spent_cents INTEGER NOT NULL,
		comment TEXT NOT NULL DEFAULT ''
	);

	-- One row per applied promotion; position keeps application order
	CREATE TABLE IF NOT EXISTS promotion_usages (
		user_id INTEGER NOT NULL REFERENCES users(id),
		promotion_id INTEGER NOT NULL REFERENCES promotions(id),
		transaction_id INTEGER NOT NULL REFERENCES transactions(id),
		position INTEGER NOT NULL,
		PRIMARY KEY (transaction_id, promotion_id)
	);

	CREATE INDEX IF NOT EXISTS idx_usages_user_promotion ON promotion_usages(user_id, promotion_id);

	CREATE TABLE IF NOT EXISTS reset_tokens (
		token TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		user_id INTEGER NOT NULL REFERENCES users(id),
		expires_at TEXT NOT NULL,
		consumed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reset_tokens_user ON reset_tokens(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (loyalty.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(loyalty.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements loyalty.Store against either the pool or an open
// transaction. Rows are always drained before a follow-up query runs, since
// the pool has a single connection.
type queries struct {
	q querier
}

var _ loyalty.Store = (*queries)(nil)

// =============================================================================
// HELPERS
// =============================================================================

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func like(s string) string {
	return "%" + s + "%"
}

// where accumulates AND-ed conditions and their arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (q *queries) count(ctx context.Context, from string, w *where) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+from+w.String(), w.args...).Scan(&n)
	return n, err
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	return n > 0, err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}

func isCheckConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}
