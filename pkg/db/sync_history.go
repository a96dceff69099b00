package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shunichi-ikebuchi/smartspend/pkg/syncer"
)

// ExportRecord represents one ledger transaction written to Beancount.
type ExportRecord struct {
	TransactionID string
	Month         string
	Amount        string
	BeancountFile string
	ExportedAt    time.Time
}

// SyncHistory manages sync attempt and export history.
type SyncHistory struct {
	conn *Connection
}

var _ syncer.History = (*SyncHistory)(nil)

// NewSyncHistory creates a new SyncHistory instance.
func NewSyncHistory(conn *Connection) *SyncHistory {
	return &SyncHistory{conn: conn}
}

// RecordAttempt implements syncer.History.
func (s *SyncHistory) RecordAttempt(a syncer.Attempt) error {
	query := `
		INSERT INTO sync_attempts (direction, outcome, transactions, accounts, error, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var errText sql.NullString
	if a.Error != "" {
		errText = sql.NullString{String: a.Error, Valid: true}
	}

	_, err := s.conn.Exec(query,
		a.Direction,
		a.Outcome,
		a.Transactions,
		a.Accounts,
		errText,
		a.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record sync attempt: %w", err)
	}

	return nil
}

// RecentAttempts returns up to limit attempts, newest first.
func (s *SyncHistory) RecentAttempts(limit int) ([]syncer.Attempt, error) {
	query := `
		SELECT direction, outcome, transactions, accounts, error, occurred_at
		FROM sync_attempts
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync attempts: %w", err)
	}
	defer rows.Close()

	var attempts []syncer.Attempt
	for rows.Next() {
		var a syncer.Attempt
		var errText sql.NullString

		if err := rows.Scan(
			&a.Direction,
			&a.Outcome,
			&a.Transactions,
			&a.Accounts,
			&errText,
			&a.At,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync attempt: %w", err)
		}

		a.Error = errText.String
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

// RecordExports records exported transactions in one database transaction.
// Re-exporting a transaction updates its record.
func (s *SyncHistory) RecordExports(records []ExportRecord) error {
	query := `
		INSERT INTO export_history (transaction_id, month, amount, beancount_file)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			month = excluded.month,
			amount = excluded.amount,
			beancount_file = excluded.beancount_file,
			exported_at = CURRENT_TIMESTAMP
	`

	return s.conn.Transaction(func(tx *sql.Tx) error {
		for _, r := range records {
			if _, err := tx.Exec(query, r.TransactionID, r.Month, r.Amount, r.BeancountFile); err != nil {
				return fmt.Errorf("failed to record export of %s: %w", r.TransactionID, err)
			}
		}
		return nil
	})
}

// IsExported checks if a transaction has been exported.
func (s *SyncHistory) IsExported(transactionID string) (bool, error) {
	query := `SELECT COUNT(*) FROM export_history WHERE transaction_id = ?`

	var count int
	if err := s.conn.QueryRow(query, transactionID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check if exported: %w", err)
	}

	return count > 0, nil
}

// GetExportedIDs retrieves all exported transaction IDs.
// This is useful for bulk filtering.
func (s *SyncHistory) GetExportedIDs() (map[string]bool, error) {
	rows, err := s.conn.Query(`SELECT transaction_id FROM export_history`)
	if err != nil {
		return nil, fmt.Errorf("failed to get exported IDs: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction ID: %w", err)
		}
		ids[id] = true
	}

	return ids, rows.Err()
}

// DeleteExportRecord deletes an export record.
// Use case: force re-export of a specific transaction.
func (s *SyncHistory) DeleteExportRecord(transactionID string) (bool, error) {
	result, err := s.conn.Exec(`DELETE FROM export_history WHERE transaction_id = ?`, transactionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete export record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// Stats represents sync statistics.
type Stats struct {
	TotalPushes      int
	FailedPushes     int
	TotalPulls       int
	ExportedTxs      int
	LastSuccessfulAt sql.NullTime
}

// GetStats retrieves sync statistics.
func (s *SyncHistory) GetStats() (*Stats, error) {
	var stats Stats

	// Get push counts
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM sync_attempts WHERE direction = 'push'`).Scan(&stats.TotalPushes)
	if err != nil {
		return nil, fmt.Errorf("failed to get push count: %w", err)
	}
	err = s.conn.QueryRow(`SELECT COUNT(*) FROM sync_attempts WHERE direction = 'push' AND outcome = 'failure'`).Scan(&stats.FailedPushes)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed push count: %w", err)
	}

	// Get pull count
	err = s.conn.QueryRow(`SELECT COUNT(*) FROM sync_attempts WHERE direction = 'pull'`).Scan(&stats.TotalPulls)
	if err != nil {
		return nil, fmt.Errorf("failed to get pull count: %w", err)
	}

	// Get export count
	err = s.conn.QueryRow(`SELECT COUNT(*) FROM export_history`).Scan(&stats.ExportedTxs)
	if err != nil {
		return nil, fmt.Errorf("failed to get export count: %w", err)
	}

	// Get last successful sync time
	var last sql.NullString
	err = s.conn.QueryRow(`SELECT MAX(occurred_at) FROM sync_attempts WHERE outcome = 'success'`).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last sync time: %w", err)
	}
	if last.Valid {
		t, err := parseTimestamp(last.String)
		if err != nil {
			return nil, err
		}
		stats.LastSuccessfulAt = sql.NullTime{Time: t, Valid: true}
	}

	return &stats, nil
}

// parseTimestamp parses the text form go-sqlite3 stores for time.Time values.
func parseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", s)
}
