package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Persister stores the whole snapshot as a single record.
type Persister interface {
	// LoadSnapshot returns the stored snapshot. found is false when nothing
	// has been stored yet.
	LoadSnapshot() (snap Snapshot, found bool, err error)

	// SaveSnapshot overwrites the stored snapshot.
	SaveSnapshot(snap Snapshot) error
}

// IDGenerator returns a fresh globally-unique transaction id.
type IDGenerator func() string

// ChangeKind identifies the mutation behind a Change.
type ChangeKind string

const (
	ChangeAdd      ChangeKind = "add"
	ChangeUpdate   ChangeKind = "update"
	ChangeDelete   ChangeKind = "delete"
	ChangeAccounts ChangeKind = "accounts"
	ChangeReplace  ChangeKind = "replace"
)

// Origin tells subscribers whether a change was made locally or applied from
// the remote replica.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Change is the dirty notification emitted after every successful mutation.
type Change struct {
	Kind   ChangeKind
	Origin Origin
	ID     string // transaction id for add/update/delete
}

// Store holds the current snapshot in memory and persists it on every change.
type Store struct {
	persister Persister
	newID     IDGenerator
	logger    *slog.Logger

	mu   sync.RWMutex
	snap Snapshot

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the uuid-based id generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open creates a Store and loads the persisted snapshot, if any.
func Open(p Persister, opts ...Option) (*Store, error) {
	s := &Store{
		persister: p,
		newID:     uuid.NewString,
		logger:    slog.Default(),
		subs:      make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}

	snap, found, err := p.LoadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if found {
		s.snap = snap.Clone()
	} else {
		s.snap = Snapshot{}.Clone()
	}

	s.logger.Debug("ledger loaded",
		"accounts", len(s.snap.Accounts),
		"transactions", len(s.snap.Transactions),
	)
	return s, nil
}

// Subscribe registers fn for dirty notifications. Notifications are
// delivered synchronously after the mutation is persisted and the store lock
// is released. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// AddTransaction validates the draft, assigns a fresh id and stores it as the
// newest transaction.
func (s *Store) AddTransaction(d Draft) (Transaction, error) {
	s.mu.Lock()
	tx := d.withID(s.newID())
	if err := ValidateTransaction(tx, s.snap.AccountIDs()); err != nil {
		s.mu.Unlock()
		return Transaction{}, err
	}

	next := Snapshot{
		Accounts:     s.snap.Accounts,
		Transactions: append([]Transaction{tx}, s.snap.Transactions...),
	}
	if err := s.commitLocked(next); err != nil {
		s.mu.Unlock()
		return Transaction{}, err
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAdd, Origin: OriginLocal, ID: tx.ID})
	return tx, nil
}

// UpdateTransaction replaces the transaction with the same id.
func (s *Store) UpdateTransaction(tx Transaction) error {
	s.mu.Lock()
	idx := s.indexLocked(tx.ID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("transaction %q: %w", tx.ID, ErrNotFound)
	}
	if err := ValidateTransaction(tx, s.snap.AccountIDs()); err != nil {
		s.mu.Unlock()
		return err
	}

	txs := make([]Transaction, len(s.snap.Transactions))
	copy(txs, s.snap.Transactions)
	txs[idx] = tx

	if err := s.commitLocked(Snapshot{Accounts: s.snap.Accounts, Transactions: txs}); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpdate, Origin: OriginLocal, ID: tx.ID})
	return nil
}

// DeleteTransaction removes the transaction with the given id. It returns
// ErrNotFound when the id is unknown and emits no notification in that case.
func (s *Store) DeleteTransaction(id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("transaction %q: %w", id, ErrNotFound)
	}

	txs := make([]Transaction, 0, len(s.snap.Transactions)-1)
	txs = append(txs, s.snap.Transactions[:idx]...)
	txs = append(txs, s.snap.Transactions[idx+1:]...)

	if err := s.commitLocked(Snapshot{Accounts: s.snap.Accounts, Transactions: txs}); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeDelete, Origin: OriginLocal, ID: id})
	return nil
}

// SetAccounts replaces the account list. Transactions referencing removed
// accounts are kept; they simply stop contributing to any balance.
func (s *Store) SetAccounts(accounts []Account) error {
	if err := ValidateAccounts(accounts); err != nil {
		return err
	}

	s.mu.Lock()
	next := Snapshot{Accounts: accounts, Transactions: s.snap.Transactions}
	if err := s.commitLocked(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAccounts, Origin: OriginLocal})
	return nil
}

// ReplaceSnapshot swaps the whole ledger for snap. It is the apply step of a
// pull, so the remote content is taken as-is.
func (s *Store) ReplaceSnapshot(snap Snapshot) error {
	s.mu.Lock()
	if err := s.commitLocked(snap); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReplace, Origin: OriginRemote})
	return nil
}

// Reload re-reads the persisted snapshot and adopts it when another writer
// changed it. Subscribers see a local replace, so the new content is synced.
func (s *Store) Reload() (bool, error) {
	snap, found, err := s.persister.LoadSnapshot()
	if err != nil {
		return false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if !found {
		return false, nil
	}

	s.mu.Lock()
	same, err := sameContent(s.snap, snap)
	if err != nil || same {
		s.mu.Unlock()
		return false, err
	}
	s.snap = snap.Clone()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReplace, Origin: OriginLocal})
	return true, nil
}

func sameContent(a, b Snapshot) (bool, error) {
	ja, err := json.Marshal(a.Clone())
	if err != nil {
		return false, err
	}
	jb, err := json.Marshal(b.Clone())
	if err != nil {
		return false, err
	}
	return bytes.Equal(ja, jb), nil
}

// Snapshot returns a deep copy of the current ledger.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Accounts returns a copy of the account list.
func (s *Store) Accounts() []Account {
	return s.Snapshot().Accounts
}

// Transactions returns a copy of the transaction list, newest first.
func (s *Store) Transactions() []Transaction {
	return s.Snapshot().Transactions
}

// Transaction returns the transaction with the given id.
func (s *Store) Transaction(id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return Transaction{}, fmt.Errorf("transaction %q: %w", id, ErrNotFound)
	}
	return s.snap.Transactions[idx], nil
}

// commitLocked persists next and, only on success, makes it current.
func (s *Store) commitLocked(next Snapshot) error {
	next = next.Clone()
	if err := s.persister.SaveSnapshot(next); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	s.snap = next
	return nil
}

func (s *Store) indexLocked(id string) int {
	for i, tx := range s.snap.Transactions {
		if tx.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.subMu.Unlock()

	s.logger.Debug("ledger changed", "kind", c.Kind, "origin", c.Origin, "id", c.ID)
	for _, fn := range fns {
		fn(c)
	}
}
