package cmd

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/smartspend/pkg/balance"
	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

var (
	balancesAsOf string

	reportMonth       string
	reportGranularity string
	reportCategory    string
	reportType        string
)

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Show account balances",
	Long: `Show the balance of every account, derived from all transactions.

Example:
  smartspend balances
  smartspend balances --as-of 2024-06-30`,
	Args: cobra.NoArgs,
	Run:  runBalances,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summaries of the ledger",
}

var reportMonthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Full report for one month",
	Args:  cobra.NoArgs,
	Run:   runReportMonthly,
}

var reportPeriodCmd = &cobra.Command{
	Use:   "period",
	Short: "Totals grouped by day or month",
	Long: `Group transactions by calendar day or month, newest first.

Example:
  smartspend report period --by month --type expense
  smartspend report period --by day --category Bazar --month 2024-06`,
	Args: cobra.NoArgs,
	Run:  runReportPeriod,
}

var reportCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Totals per category for one month",
	Args:  cobra.NoArgs,
	Run:   runReportCategories,
}

func init() {
	balancesCmd.Flags().StringVar(&balancesAsOf, "as-of", "", "only count transactions up to this date (YYYY-MM-DD)")

	reportMonthlyCmd.Flags().StringVar(&reportMonth, "month", "", "YYYY-MM (default current month)")

	reportPeriodCmd.Flags().StringVar(&reportGranularity, "by", string(balance.Month), "day or month")
	reportPeriodCmd.Flags().StringVar(&reportCategory, "category", "", "only this category")
	reportPeriodCmd.Flags().StringVar(&reportType, "type", "", "only this type")
	reportPeriodCmd.Flags().StringVar(&reportMonth, "month", "", "only YYYY-MM")

	reportCategoriesCmd.Flags().StringVar(&reportMonth, "month", "", "YYYY-MM (default current month)")
	reportCategoriesCmd.Flags().StringVar(&reportType, "type", string(ledger.TypeExpense), "income or expense")

	reportCmd.AddCommand(reportMonthlyCmd, reportPeriodCmd, reportCategoriesCmd)
}

func runBalances(cmd *cobra.Command, args []string) {
	var asOf *time.Time
	if balancesAsOf != "" {
		d, err := parseDate(balancesAsOf)
		exitOnError(err, "invalid flags")
		end := d.Add(24*time.Hour - time.Second)
		asOf = &end
	}

	a := openApp()
	defer a.close()

	accounts := a.ledger.Accounts()
	balances := balance.ComputeBalances(accounts, a.ledger.Transactions(), asOf)
	printBalances(accounts, balances, a.cfg.Currency)
}

func printBalances(accounts []ledger.Account, balances map[string]decimal.Decimal, currency string) {
	w := newTable()
	fmt.Fprintln(w, "ACCOUNT\tBALANCE")
	for _, acc := range accounts {
		if b, ok := balances[acc.ID]; ok {
			fmt.Fprintf(w, "%s\t%s\n", accountLabel(accounts, acc.ID), formatMoney(b, currency))
		}
	}
	fmt.Fprintf(w, "Total\t%s\n", formatMoney(balance.Total(balances), currency))
	w.Flush()
}

func runReportMonthly(cmd *cobra.Command, args []string) {
	year, month, err := parseMonth(reportMonth)
	exitOnError(err, "invalid flags")

	a := openApp()
	defer a.close()

	accounts := a.ledger.Accounts()
	report := balance.MonthlyReport(accounts, a.ledger.Transactions(), year, month, time.Local)
	cur := a.cfg.Currency

	fmt.Printf("\n=== %s %d ===\n", month, year)
	fmt.Printf("Income:       %s\n", formatMoney(report.Income, cur))
	fmt.Printf("Expense:      %s\n", formatMoney(report.Expense, cur))
	fmt.Printf("Net flow:     %s\n", formatMoney(report.NetFlow, cur))
	fmt.Printf("Withdrawals:  %s\n", formatMoney(report.Withdrawals, cur))

	fmt.Printf("\nBalances at %s\n", report.EndOfMonth.Format(dateLayout))
	printBalances(accounts, report.Balances, cur)

	if len(report.ExpensesByCategory) > 0 {
		fmt.Println("\nExpenses by category")
		printCategories(report.ExpensesByCategory, cur)
	}
	fmt.Println()
}

func runReportPeriod(cmd *cobra.Command, args []string) {
	g, err := balance.ParseGranularity(reportGranularity)
	exitOnError(err, "invalid flags")

	pred := []balance.Predicate{balance.All}
	if reportMonth != "" {
		year, month, err := parseMonth(reportMonth)
		exitOnError(err, "invalid flags")
		pred = append(pred, balance.InMonth(year, month, time.Local))
	}
	if reportCategory != "" {
		pred = append(pred, balance.ByCategory(reportCategory))
	}
	if reportType != "" {
		pred = append(pred, balance.ByType(ledger.TxType(reportType)))
	}

	a := openApp()
	defer a.close()

	groups := balance.AggregateByPeriod(a.ledger.Transactions(), g, balance.And(pred...), time.Local)
	if len(groups) == 0 {
		fmt.Println("No transactions")
		return
	}

	w := newTable()
	fmt.Fprintln(w, "PERIOD\tCOUNT\tTOTAL")
	for _, grp := range groups {
		fmt.Fprintf(w, "%s\t%d\t%s\n", grp.Key, len(grp.Items), formatMoney(grp.Total, a.cfg.Currency))
	}
	w.Flush()
}

func runReportCategories(cmd *cobra.Command, args []string) {
	year, month, err := parseMonth(reportMonth)
	exitOnError(err, "invalid flags")

	a := openApp()
	defer a.close()

	txs := balance.Filter(a.ledger.Transactions(), balance.And(
		balance.InMonth(year, month, time.Local),
		balance.ByType(ledger.TxType(reportType)),
	))
	groups := balance.AggregateByCategory(txs)
	if len(groups) == 0 {
		fmt.Println("No transactions")
		return
	}
	printCategories(groups, a.cfg.Currency)
}

func printCategories(groups []balance.CategoryGroup, currency string) {
	w := newTable()
	fmt.Fprintln(w, "CATEGORY\tCOUNT\tTOTAL")
	for _, grp := range groups {
		fmt.Fprintf(w, "%s\t%d\t%s\n", grp.Category, len(grp.Items), formatMoney(grp.Total, currency))
	}
	w.Flush()
}
