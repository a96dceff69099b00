package integration

import (
	"fmt"
	"time"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

// SnapshotBuilder provides helper methods for building test snapshots.
type SnapshotBuilder struct {
	snap ledger.Snapshot
	seq  int
}

// NewSnapshotBuilder creates a builder seeded with the given accounts.
func NewSnapshotBuilder(accounts ...ledger.Account) *SnapshotBuilder {
	b := &SnapshotBuilder{}
	b.snap.Accounts = append(b.snap.Accounts, accounts...)
	return b
}

// Income adds an income transaction to the cash account.
func (b *SnapshotBuilder) Income(amount float64, date string) *SnapshotBuilder {
	return b.add(ledger.Transaction{
		Date:      mustDate(date),
		Amount:    amount,
		Type:      ledger.TypeIncome,
		Category:  "Salary",
		AccountID: ledger.CashAccountID,
	})
}

// Expense adds an expense paid from accountID.
func (b *SnapshotBuilder) Expense(amount float64, category, accountID, date string) *SnapshotBuilder {
	return b.add(ledger.Transaction{
		Date:        mustDate(date),
		Amount:      amount,
		Type:        ledger.TypeExpense,
		Category:    category,
		Description: fmt.Sprintf("%s purchase", category),
		AccountID:   accountID,
	})
}

// Transfer adds a transfer between two accounts.
func (b *SnapshotBuilder) Transfer(amount float64, from, to, date string) *SnapshotBuilder {
	return b.add(ledger.Transaction{
		Date:            mustDate(date),
		Amount:          amount,
		Type:            ledger.TypeTransfer,
		Category:        "Transfer",
		AccountID:       from,
		TargetAccountID: to,
	})
}

// Build returns a copy of the snapshot built so far.
func (b *SnapshotBuilder) Build() ledger.Snapshot {
	return b.snap.Clone()
}

func (b *SnapshotBuilder) add(tx ledger.Transaction) *SnapshotBuilder {
	b.seq++
	tx.ID = GenerateTxID("tx", b.seq)
	b.snap.Transactions = append(b.snap.Transactions, tx)
	return b
}

// GenerateTxID generates a transaction id for testing.
func GenerateTxID(prefix string, seq int) string {
	return fmt.Sprintf("%s-%04d", prefix, seq)
}

// GenerateDateSequence generates a sequence of dates for testing.
func GenerateDateSequence(start time.Time, count int) []string {
	dates := make([]string, count)
	for i := 0; i < count; i++ {
		dates[i] = start.AddDate(0, 0, i).Format("2006-01-02")
	}
	return dates
}

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

var (
	walletAccount = ledger.Account{ID: "wallet", Name: "Wallet", Emoji: "👛"}
	bankAccount   = ledger.Account{ID: "bank", Name: "Bank", Emoji: "🏦"}
)
