package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
	"github.com/shunichi-ikebuchi/smartspend/pkg/syncer"
)

// Stable record keys.
const (
	LedgerKey     = "smartspend_ledger_v1"
	SyncConfigKey = "smartspend_sheets_sync_v1"
)

// Records stores opaque JSON documents under stable keys.
type Records struct {
	conn *Connection
}

// NewRecords creates a new Records instance.
func NewRecords(conn *Connection) *Records {
	return &Records{conn: conn}
}

// Get returns the raw value stored under key and whether it exists.
func (r *Records) Get(key string) ([]byte, bool, error) {
	query := `SELECT value FROM records WHERE key = ?`

	var value string
	err := r.conn.QueryRow(query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get record %s: %w", key, err)
	}

	return []byte(value), true, nil
}

// Put replaces the value stored under key.
func (r *Records) Put(key string, value []byte) error {
	query := `
		INSERT INTO records (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := r.conn.Exec(query, key, string(value)); err != nil {
		return fmt.Errorf("failed to put record %s: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *Records) Delete(key string) error {
	if _, err := r.conn.Exec(`DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	return nil
}

// getJSON decodes the record under key into v.
func (r *Records) getJSON(key string, v interface{}) (bool, error) {
	raw, ok, err := r.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return true, nil
}

func (r *Records) putJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", key, err)
	}
	return r.Put(key, raw)
}

// LedgerStore persists the ledger snapshot as a single record.
type LedgerStore struct {
	records *Records
}

var _ ledger.Persister = (*LedgerStore)(nil)

// NewLedgerStore creates a ledger persister backed by conn.
func NewLedgerStore(conn *Connection) *LedgerStore {
	return &LedgerStore{records: NewRecords(conn)}
}

// LoadSnapshot implements ledger.Persister.
func (s *LedgerStore) LoadSnapshot() (ledger.Snapshot, bool, error) {
	var snap ledger.Snapshot
	ok, err := s.records.getJSON(LedgerKey, &snap)
	if err != nil || !ok {
		return ledger.Snapshot{}, false, err
	}
	return snap.Clone(), true, nil
}

// SaveSnapshot implements ledger.Persister.
func (s *LedgerStore) SaveSnapshot(snap ledger.Snapshot) error {
	return s.records.putJSON(LedgerKey, snap.Clone())
}

// SyncConfigStore persists the sync configuration as a single record.
type SyncConfigStore struct {
	records *Records
}

var _ syncer.ConfigStore = (*SyncConfigStore)(nil)

// NewSyncConfigStore creates a sync config store backed by conn.
func NewSyncConfigStore(conn *Connection) *SyncConfigStore {
	return &SyncConfigStore{records: NewRecords(conn)}
}

// LoadConfig implements syncer.ConfigStore.
func (s *SyncConfigStore) LoadConfig() (*syncer.Config, error) {
	var cfg syncer.Config
	ok, err := s.records.getJSON(SyncConfigKey, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig implements syncer.ConfigStore.
func (s *SyncConfigStore) SaveConfig(cfg syncer.Config) error {
	return s.records.putJSON(SyncConfigKey, cfg)
}

// ClearConfig implements syncer.ConfigStore.
func (s *SyncConfigStore) ClearConfig() error {
	return s.records.Delete(SyncConfigKey)
}
