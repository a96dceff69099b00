package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/shunichi-ikebuchi/smartspend/emulator/internal/models"
)

// ErrNoSheet is returned when a sheet was never written.
var ErrNoSheet = errors.New("sheet not found")

// Store keeps one bbolt bucket per spreadsheet sheet. Rows are keyed by
// their position, the header being row 0.
type Store struct {
	db *bolt.DB
}

// New creates a new Store instance.
func New(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sheet is a named grid of rows written as a unit.
type Sheet struct {
	Name   string
	Header []string
	Rows   []models.Row
}

// ReplaceSheets clears every given sheet and rewrites it, header first, in a
// single transaction. Readers never observe a half-written sheet.
func (s *Store) ReplaceSheets(sheets ...Sheet) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, sheet := range sheets {
			if err := replaceSheet(tx, sheet); err != nil {
				return err
			}
		}
		return nil
	})
}

func replaceSheet(tx *bolt.Tx, sheet Sheet) error {
	name := []byte(sheet.Name)
	if tx.Bucket(name) != nil {
		if err := tx.DeleteBucket(name); err != nil {
			return fmt.Errorf("failed to clear sheet %s: %w", sheet.Name, err)
		}
	}

	b, err := tx.CreateBucket(name)
	if err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet.Name, err)
	}

	rows := append([]models.Row{models.HeaderRow(sheet.Header)}, sheet.Rows...)
	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal row %d of %s: %w", i, sheet.Name, err)
		}
		if err := b.Put(itob(int64(i)), data); err != nil {
			return err
		}
	}
	return nil
}

// ReadSheet returns the data rows of a sheet, header excluded.
func (s *Store) ReadSheet(name string) ([]models.Row, error) {
	var rows []models.Row
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rows, err = readSheet(tx, name)
		return err
	})
	return rows, err
}

// ReadSheets reads several sheets from one consistent view. Sheets that were
// never written are absent from the result.
func (s *Store) ReadSheets(names ...string) (map[string][]models.Row, error) {
	sheets := make(map[string][]models.Row, len(names))
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range names {
			rows, err := readSheet(tx, name)
			if errors.Is(err, ErrNoSheet) {
				continue
			}
			if err != nil {
				return err
			}
			sheets[name] = rows
		}
		return nil
	})
	return sheets, err
}

func readSheet(tx *bolt.Tx, name string) ([]models.Row, error) {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, ErrNoSheet
	}

	var rows []models.Row
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if binary.BigEndian.Uint64(k) == 0 {
			continue
		}
		var row models.Row
		if err := json.Unmarshal(v, &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row of %s: %w", name, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// itob converts an int64 to a byte slice for use as a bbolt key.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}
