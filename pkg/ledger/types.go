// Package ledger provides the account/transaction model and the Ledger Store,
// the only legal mutation path for the local ledger.
package ledger

import "time"

// CashAccountID is the synthetic cash account. It may be referenced by
// transactions without being declared.
const CashAccountID = "cash"

// TxType encodes the direction of a transaction. Amounts are never signed.
type TxType string

const (
	TypeIncome   TxType = "income"
	TypeExpense  TxType = "expense"
	TypeTransfer TxType = "transfer"
)

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer:
		return true
	}
	return false
}

// Account represents a user-defined place money is kept.
type Account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// Transaction represents a single money movement.
type Transaction struct {
	ID              string    `json:"id"`
	Date            time.Time `json:"date"`
	Amount          float64   `json:"amount"`
	Type            TxType    `json:"type"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	AccountID       string    `json:"accountId"`
	TargetAccountID string    `json:"targetAccountId,omitempty"` // transfers only
}

// Draft is a transaction before the store has assigned it an id.
type Draft struct {
	Date            time.Time
	Amount          float64
	Type            TxType
	Category        string
	Description     string
	AccountID       string
	TargetAccountID string
}

func (d Draft) withID(id string) Transaction {
	return Transaction{
		ID:              id,
		Date:            d.Date,
		Amount:          d.Amount,
		Type:            d.Type,
		Category:        d.Category,
		Description:     d.Description,
		AccountID:       d.AccountID,
		TargetAccountID: d.TargetAccountID,
	}
}

// Snapshot is the full (accounts, transactions) pair. It is persisted and
// synced as one unit, never partially.
type Snapshot struct {
	Accounts     []Account     `json:"accounts"`
	Transactions []Transaction `json:"transactions"`
}

// Clone returns a deep copy of the snapshot. Nil slices become empty slices
// so the JSON form always carries both collections.
func (s Snapshot) Clone() Snapshot {
	accounts := make([]Account, len(s.Accounts))
	copy(accounts, s.Accounts)
	txs := make([]Transaction, len(s.Transactions))
	copy(txs, s.Transactions)
	return Snapshot{Accounts: accounts, Transactions: txs}
}

// AccountIDs returns the set of declared account ids.
func (s Snapshot) AccountIDs() map[string]bool {
	ids := make(map[string]bool, len(s.Accounts))
	for _, a := range s.Accounts {
		ids[a.ID] = true
	}
	return ids
}
