package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS opportunities (
		fingerprint       TEXT PRIMARY KEY,
		text              TEXT NOT NULL,
		source_channel    TEXT NOT NULL DEFAULT '',
		source_message_id TEXT NOT NULL DEFAULT '',
		score             REAL NOT NULL DEFAULT 0,
		contacts_json     TEXT NOT NULL DEFAULT '{}',
		created_at        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_opportunities_created ON opportunities (created_at)`,
	`CREATE TABLE IF NOT EXISTS delivery_records (
		id                      INTEGER PRIMARY KEY AUTOINCREMENT,
		normalized_contact      TEXT NOT NULL,
		opportunity_fingerprint TEXT NOT NULL,
		sent_at                 TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_contact ON delivery_records (normalized_contact, sent_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id                      INTEGER PRIMARY KEY AUTOINCREMENT,
		opportunity_fingerprint TEXT NOT NULL,
		notification_message_id TEXT NOT NULL UNIQUE,
		target_operator         TEXT NOT NULL,
		status                  TEXT NOT NULL DEFAULT 'pending',
		created_at              TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_fp ON notifications (opportunity_fingerprint, target_operator)`,
}

// SQLiteStore holds opportunities, delivery records and operator notifications.
// It implements model.OpportunityStore, model.DeliveryLedger and
// model.NotificationLedger.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection serializes writers; SQLite would otherwise answer
	// concurrent inserts with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return newWithDB(db), nil
}

func newWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
