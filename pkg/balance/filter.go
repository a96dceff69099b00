package balance

import (
	"time"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

// Predicate selects transactions for an aggregate.
type Predicate func(ledger.Transaction) bool

// All accepts every transaction.
func All(ledger.Transaction) bool { return true }

// ByType accepts transactions of the given type.
func ByType(t ledger.TxType) Predicate {
	return func(tx ledger.Transaction) bool { return tx.Type == t }
}

// ByCategory accepts transactions in the given category.
func ByCategory(category string) Predicate {
	return func(tx ledger.Transaction) bool { return tx.Category == category }
}

// ByAccount accepts transactions touching the account as source or target.
func ByAccount(id string) Predicate {
	return func(tx ledger.Transaction) bool {
		return tx.AccountID == id || tx.TargetAccountID == id
	}
}

// InMonth accepts transactions whose local date falls in the given month.
func InMonth(year int, month time.Month, loc *time.Location) Predicate {
	loc = orLocal(loc)
	return func(tx ledger.Transaction) bool {
		d := tx.Date.In(loc)
		return d.Year() == year && d.Month() == month
	}
}

// InYear accepts transactions whose local date falls in the given year.
func InYear(year int, loc *time.Location) Predicate {
	loc = orLocal(loc)
	return func(tx ledger.Transaction) bool {
		return tx.Date.In(loc).Year() == year
	}
}

// And accepts transactions accepted by every predicate.
func And(preds ...Predicate) Predicate {
	return func(tx ledger.Transaction) bool {
		for _, p := range preds {
			if p != nil && !p(tx) {
				return false
			}
		}
		return true
	}
}

// Filter returns the transactions accepted by pred, in their original order.
func Filter(txs []ledger.Transaction, pred Predicate) []ledger.Transaction {
	var out []ledger.Transaction
	for _, tx := range txs {
		if pred == nil || pred(tx) {
			out = append(out, tx)
		}
	}
	return out
}

func orLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
