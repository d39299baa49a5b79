// Package session implements the data server's session and subscription
// audit log: which strategy connected when, what it subscribed to, and
// the orders it routed, persisted to SQLite for later inspection. This
// is explicitly not the historical archive (spec §4.D mandates a
// memory-mapped binary store for that); it is an audit trail alongside
// it.
//
// Adapted from the teacher's database/marketdata.go: a *sql.DB wrapped
// with prepared statements for the hot insert paths, the same
// WAL-mode connection string, and the same schema-init-then-prepare
// constructor shape.
package session

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fundforge/fundforge/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	account         TEXT NOT NULL,
	connection_type TEXT NOT NULL,
	remote_addr     TEXT NOT NULL,
	connected_at    DATETIME NOT NULL,
	disconnected_at DATETIME
);

CREATE TABLE IF NOT EXISTS subscription_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	resolution  TEXT NOT NULL,
	data_type   TEXT NOT NULL,
	action      TEXT NOT NULL,
	at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS order_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	order_id   TEXT NOT NULL,
	account    TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	action     TEXT NOT NULL,
	status     TEXT NOT NULL,
	quantity   TEXT NOT NULL,
	price      TEXT NOT NULL,
	at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subscription_events_session ON subscription_events(session_id);
CREATE INDEX IF NOT EXISTS idx_order_events_session ON order_events(session_id);
`

// Store is the data server's audit log, one SQLite file per server
// process.
type Store struct {
	db *sql.DB

	stmtSessionStart *sql.Stmt
	stmtSessionEnd   *sql.Stmt
	stmtSubscription *sql.Stmt
	stmtOrder        *sql.Stmt
}

// Open opens (creating if absent) the audit database at dbPath and
// prepares every hot-path insert statement once, matching the teacher's
// NewMarketDataDb shape.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("session: open database: %w", err)
	}

	s := &Store{db: db}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session: init schema: %w", err)
	}

	if s.stmtSessionStart, err = db.Prepare(`INSERT INTO sessions (id, account, connection_type, remote_addr, connected_at) VALUES (?, ?, ?, ?, ?)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session: prepare session-start statement: %w", err)
	}
	if s.stmtSessionEnd, err = db.Prepare(`UPDATE sessions SET disconnected_at = ? WHERE id = ?`); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("session: prepare session-end statement: %w", err)
	}
	if s.stmtSubscription, err = db.Prepare(`INSERT INTO subscription_events (session_id, symbol, resolution, data_type, action, at) VALUES (?, ?, ?, ?, ?, ?)`); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("session: prepare subscription statement: %w", err)
	}
	if s.stmtOrder, err = db.Prepare(`INSERT INTO order_events (session_id, order_id, account, symbol, action, status, quantity, price, at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("session: prepare order statement: %w", err)
	}
	return s, nil
}

// Close releases every prepared statement and the underlying database
// handle. Errors closing individual statements are ignored, as in the
// teacher's Close — the process is shutting down regardless.
func (s *Store) Close() error {
	if s.stmtSessionStart != nil {
		_ = s.stmtSessionStart.Close()
	}
	if s.stmtSessionEnd != nil {
		_ = s.stmtSessionEnd.Close()
	}
	if s.stmtSubscription != nil {
		_ = s.stmtSubscription.Close()
	}
	if s.stmtOrder != nil {
		_ = s.stmtOrder.Close()
	}
	return s.db.Close()
}

// NewSessionID mints a fresh session identifier, used once per
// connection registration.
func NewSessionID() string {
	return uuid.NewString()
}

// RecordSessionStart logs a new connection's Register request.
func (s *Store) RecordSessionStart(id, account, connectionType, remoteAddr string, at time.Time) error {
	_, err := s.stmtSessionStart.Exec(id, account, connectionType, remoteAddr, at.UTC())
	if err != nil {
		return fmt.Errorf("session: record session start: %w", err)
	}
	return nil
}

// RecordSessionEnd marks a session's disconnection time, once its TLS
// connection task exits.
func (s *Store) RecordSessionEnd(id string, at time.Time) error {
	_, err := s.stmtSessionEnd.Exec(at.UTC(), id)
	if err != nil {
		return fmt.Errorf("session: record session end: %w", err)
	}
	return nil
}

// SubscriptionAction distinguishes a Subscribe from an Unsubscribe audit
// row.
type SubscriptionAction string

const (
	Subscribed   SubscriptionAction = "subscribe"
	Unsubscribed SubscriptionAction = "unsubscribe"
)

// RecordSubscription logs one StreamSubscribe/StreamUnsubscribe request
// against sessionID.
func (s *Store) RecordSubscription(sessionID string, sub domain.DataSubscription, action SubscriptionAction, at time.Time) error {
	_, err := s.stmtSubscription.Exec(sessionID, sub.Symbol.String(), sub.Resolution.String(), sub.BaseDataType.String(), string(action), at.UTC())
	if err != nil {
		return fmt.Errorf("session: record subscription: %w", err)
	}
	return nil
}

// RecordOrder logs one OrderRequest/OrderUpdateEvent pair against
// sessionID — action is the request's OrderAction, status the resulting
// OrderUpdateEvent's OrderStatus, stored by its name.
func (s *Store) RecordOrder(sessionID string, req domain.OrderRequest, status domain.OrderStatus, at time.Time) error {
	_, err := s.stmtOrder.Exec(sessionID, req.OrderID, req.Account, req.Symbol.String(), req.Action.String(), status.String(), req.Quantity.String(), req.LimitPrice.String(), at.UTC())
	if err != nil {
		return fmt.Errorf("session: record order: %w", err)
	}
	return nil
}

// SessionRecord is one row of the sessions table, returned by
// RecentSessions for operator inspection (spec §4 "Data-server session
// audit").
type SessionRecord struct {
	ID             string
	Account        string
	ConnectionType string
	RemoteAddr     string
	ConnectedAt    time.Time
	DisconnectedAt *time.Time
}

// RecentSessions returns up to limit sessions, most recently connected
// first.
func (s *Store) RecentSessions(limit int) ([]SessionRecord, error) {
	rows, err := s.db.Query(`SELECT id, account, connection_type, remote_addr, connected_at, disconnected_at FROM sessions ORDER BY connected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("session: query recent sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var disconnected sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Account, &rec.ConnectionType, &rec.RemoteAddr, &rec.ConnectedAt, &disconnected); err != nil {
			return nil, fmt.Errorf("session: scan session row: %w", err)
		}
		if disconnected.Valid {
			rec.DisconnectedAt = &disconnected.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SubscriptionEventCount reports how many subscription_events rows exist
// for sessionID, a cheap sanity check used in tests and operator
// diagnostics.
func (s *Store) SubscriptionEventCount(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM subscription_events WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("session: count subscription events: %w", err)
	}
	return n, nil
}
