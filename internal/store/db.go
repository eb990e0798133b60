// Package store persists contacts, tickets, messages, channels,
// queues and settings in SQLite.  The idempotency and
// single-open-ticket invariants are enforced here with unique
// constraints rather than in the pipeline, so concurrent sessions can
// write safely without explicit locking.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle and exposes the typed stores.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if needed) the helpdesk database at path.
// PRAGMAs reduce SQLITE_BUSY errors and improve concurrency across
// session handlers.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids most
	// SQLITE_BUSY churn under concurrent session handlers.
	db.SetMaxOpenConns(1)
	s := &DB{sql: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying handle.
func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			number TEXT NOT NULL,
			profile_pic_url TEXT NOT NULL DEFAULT '',
			is_group INTEGER NOT NULL DEFAULT 0,
			extra_info TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(number, is_group)
		)`,
		`CREATE TABLE IF NOT EXISTS channels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			greeting_message TEXT NOT NULL DEFAULT '',
			is_default INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS queues (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id INTEGER NOT NULL REFERENCES channels(id),
			name TEXT NOT NULL,
			greeting_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			status TEXT NOT NULL DEFAULT 'pending',
			contact_id INTEGER NOT NULL REFERENCES contacts(id),
			channel_id INTEGER NOT NULL REFERENCES channels(id),
			queue_id INTEGER NOT NULL DEFAULT 0,
			user_id INTEGER NOT NULL DEFAULT 0,
			is_group INTEGER NOT NULL DEFAULT 0,
			unread INTEGER NOT NULL DEFAULT 0,
			last_message TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		// At most one open-or-pending ticket per (contact, channel).
		`CREATE UNIQUE INDEX IF NOT EXISTS tickets_active_uniq
			ON tickets(contact_id, channel_id)
			WHERE status IN ('open', 'pending')`,
		`CREATE INDEX IF NOT EXISTS tickets_contact_channel
			ON tickets(contact_id, channel_id, updated_at)`,
		// The protocol message ID is the idempotency key.
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			ticket_id INTEGER NOT NULL REFERENCES tickets(id),
			contact_id INTEGER NOT NULL DEFAULT 0,
			body TEXT NOT NULL DEFAULT '',
			from_me INTEGER NOT NULL DEFAULT 0,
			read INTEGER NOT NULL DEFAULT 0,
			ack INTEGER NOT NULL DEFAULT 0,
			media_url TEXT NOT NULL DEFAULT '',
			media_type TEXT NOT NULL DEFAULT '',
			quoted_msg_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_ticket ON messages(ticket_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return d.seedSettings(ctx)
}

// seedSettings installs the default business-hours policy once.
// Operator edits afterwards survive restarts.
func (d *DB) seedSettings(ctx context.Context) error {
	defaults := map[string]string{
		"outOfHours":          "disabled",
		"outOfHoursMessage":   "Kami di luar jam kerja. Kami akan membalas di jam operasional berikutnya.",
		"businessHoursStart":  "08:00",
		"businessHoursEnd":    "17:00",
		"businessDays":        "1,2,3,4,5",
		"businessTzOffsetMin": "0",
	}
	for k, v := range defaults {
		if _, err := d.sql.ExecContext(ctx,
			`INSERT INTO settings(key, value) VALUES(?, ?) ON CONFLICT(key) DO NOTHING`, k, v); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
	}
	return nil
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
