// Package db provides SQLite storage for the ledger snapshot, the sync
// configuration and the sync and export history.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Opaque records
-- Each record holds one JSON document rewritten in full on every change
CREATE TABLE IF NOT EXISTS records (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Sync attempts
-- One row per finished push or pull
CREATE TABLE IF NOT EXISTS sync_attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    direction TEXT NOT NULL,           -- 'push' or 'pull'
    outcome TEXT NOT NULL,             -- 'success', 'failure', 'declined', 'discarded'
    transactions INTEGER NOT NULL,
    accounts INTEGER NOT NULL,
    error TEXT,
    occurred_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_attempts_occurred
    ON sync_attempts(occurred_at);

-- Export history
-- Tracks which ledger transactions have been written to Beancount
CREATE TABLE IF NOT EXISTS export_history (
    transaction_id TEXT PRIMARY KEY,
    month TEXT NOT NULL,               -- YYYY-MM
    amount TEXT NOT NULL,              -- decimal string
    beancount_file TEXT NOT NULL,
    exported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_export_history_month
    ON export_history(month);
`

// InitializeSchema initializes the database schema.
// It creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.Exec(Schema); err != nil {
		return err
	}
	return nil
}
