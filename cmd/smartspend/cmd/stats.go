package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/smartspend/pkg/balance"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display ledger and sync statistics",
	Long: `Display statistics about the ledger, sync attempts and exports.

Shows:
- Number of accounts and transactions
- Total income, expense and balance
- Push, failed push and pull counts
- Number of exported transactions
- Last successful sync timestamp

Example:
  smartspend stats`,
	Args: cobra.NoArgs,
	Run:  runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	a := openApp()
	defer a.close()

	snap := a.ledger.Snapshot()
	summary := balance.Totals(snap.Transactions)

	stats, err := a.history.GetStats()
	exitOnError(err, "failed to get statistics")

	// Display statistics
	fmt.Println("\n=== Ledger ===")
	fmt.Printf("Accounts:              %d\n", len(snap.Accounts))
	fmt.Printf("Transactions:          %d\n", len(snap.Transactions))
	fmt.Printf("Total income:          %s\n", formatMoney(summary.Income, a.cfg.Currency))
	fmt.Printf("Total expense:         %s\n", formatMoney(summary.Expense, a.cfg.Currency))
	fmt.Printf("Balance:               %s\n", formatMoney(summary.Balance, a.cfg.Currency))

	fmt.Println("\n=== Sync Statistics ===")
	fmt.Printf("Total pushes:          %d\n", stats.TotalPushes)
	fmt.Printf("Failed pushes:         %d\n", stats.FailedPushes)
	fmt.Printf("Total pulls:           %d\n", stats.TotalPulls)
	fmt.Printf("Exported transactions: %d\n", stats.ExportedTxs)

	if stats.LastSuccessfulAt.Valid {
		fmt.Printf("Last sync:             %s\n", stats.LastSuccessfulAt.Time.Local().Format(time.RFC1123))
	} else {
		fmt.Printf("Last sync:             (never)\n")
	}

	fmt.Println()

	slog.Debug("Statistics displayed successfully")
}
