package balance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

// Report is the full monthly report: account positions at the end of the
// month plus the month's flows.
type Report struct {
	Year  int
	Month time.Month

	// EndOfMonth is the cut-off used for Balances.
	EndOfMonth time.Time
	Balances   map[string]decimal.Decimal

	Income  decimal.Decimal
	Expense decimal.Decimal
	NetFlow decimal.Decimal

	// Withdrawals is money moved into cash from any other account.
	Withdrawals decimal.Decimal

	// ExpensesByCategory covers expense transactions of the month only.
	ExpensesByCategory []CategoryGroup
}

// EndOfMonth returns the last second of the given month in loc.
func EndOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	return time.Date(year, month+1, 0, 23, 59, 59, 0, orLocal(loc))
}

// MonthlyReport builds the Report for year/month in loc.
func MonthlyReport(accounts []ledger.Account, txs []ledger.Transaction, year int, month time.Month, loc *time.Location) Report {
	end := EndOfMonth(year, month, loc)
	monthTxs := Filter(txs, InMonth(year, month, loc))
	summary := Totals(monthTxs)

	withdrawals := decimal.Zero
	for _, tx := range monthTxs {
		if tx.Type == ledger.TypeTransfer &&
			tx.TargetAccountID == ledger.CashAccountID &&
			tx.AccountID != ledger.CashAccountID {
			withdrawals = withdrawals.Add(Amount(tx))
		}
	}

	return Report{
		Year:               year,
		Month:              month,
		EndOfMonth:         end,
		Balances:           ComputeBalances(accounts, txs, &end),
		Income:             summary.Income,
		Expense:            summary.Expense,
		NetFlow:            summary.Balance,
		Withdrawals:        withdrawals,
		ExpensesByCategory: AggregateByCategory(Filter(monthTxs, ByType(ledger.TypeExpense))),
	}
}
