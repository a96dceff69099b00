// Package balance derives account balances and period/category aggregates
// from a set of transactions. Every function is pure and deterministic.
package balance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

// Amount converts a transaction amount to a decimal. Amounts are summed as
// decimals so the fold does not depend on the order of the transactions.
func Amount(tx ledger.Transaction) decimal.Decimal {
	return decimal.NewFromFloat(tx.Amount)
}

// ComputeBalances returns the balance of every known account. Only
// transactions dated at or before asOf are applied; a nil asOf applies all of
// them. References to undeclared accounts contribute nothing.
func ComputeBalances(accounts []ledger.Account, txs []ledger.Transaction, asOf *time.Time) map[string]decimal.Decimal {
	balances := make(map[string]decimal.Decimal, len(accounts))
	for _, a := range accounts {
		balances[a.ID] = decimal.Zero
	}

	credit := func(id string, amount decimal.Decimal) {
		if cur, ok := balances[id]; ok {
			balances[id] = cur.Add(amount)
		}
	}

	for _, tx := range txs {
		if asOf != nil && tx.Date.After(*asOf) {
			continue
		}
		amount := Amount(tx)

		switch tx.Type {
		case ledger.TypeIncome:
			credit(tx.AccountID, amount)
		case ledger.TypeExpense:
			credit(tx.AccountID, amount.Neg())
		case ledger.TypeTransfer:
			credit(tx.AccountID, amount.Neg())
			if tx.TargetAccountID != "" {
				credit(tx.TargetAccountID, amount)
			}
		}
	}
	return balances
}

// Total sums a balance map.
func Total(balances map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b)
	}
	return total
}

// Summary is the income/expense headline for a set of transactions.
type Summary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal // Income - Expense; transfers excluded
}

// Totals computes the Summary for txs.
func Totals(txs []ledger.Transaction) Summary {
	s := Summary{Income: decimal.Zero, Expense: decimal.Zero}
	for _, tx := range txs {
		switch tx.Type {
		case ledger.TypeIncome:
			s.Income = s.Income.Add(Amount(tx))
		case ledger.TypeExpense:
			s.Expense = s.Expense.Add(Amount(tx))
		}
	}
	s.Balance = s.Income.Sub(s.Expense)
	return s
}
