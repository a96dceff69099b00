package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/smartspend/pkg/balance"
	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

var (
	txType        string
	txAmount      float64
	txCategory    string
	txDescription string
	txAccount     string
	txTarget      string
	txDate        string

	listMonth    string
	listCategory string
	listAccount  string
	listType     string
)

// txCmd groups the transaction commands.
var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Record, change and list transactions",
}

var txAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a transaction",
	Long: `Record an income, expense or transfer.

Transfers need --to. The account "cash" always exists.

Example:
  smartspend tx add --type income --amount 50000 --category Salary --account bank
  smartspend tx add --type expense --amount 120 --category Food --account cash --desc "lunch"
  smartspend tx add --type transfer --amount 1000 --account bank --to cash`,
	Args: cobra.NoArgs,
	Run:  runTxAdd,
}

var txUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a transaction",
	Args:  cobra.ExactArgs(1),
	Run:   runTxUpdate,
}

var txDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a transaction",
	Args:  cobra.ExactArgs(1),
	Run:   runTxDelete,
}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions, newest first",
	Args:  cobra.NoArgs,
	Run:   runTxList,
}

func init() {
	for _, c := range []*cobra.Command{txAddCmd, txUpdateCmd} {
		c.Flags().StringVar(&txType, "type", string(ledger.TypeExpense), "income, expense or transfer")
		c.Flags().Float64Var(&txAmount, "amount", 0, "amount (never negative)")
		c.Flags().StringVar(&txCategory, "category", "", "category")
		c.Flags().StringVar(&txDescription, "desc", "", "description")
		c.Flags().StringVar(&txAccount, "account", ledger.CashAccountID, "source account id")
		c.Flags().StringVar(&txTarget, "to", "", "target account id (transfers)")
		c.Flags().StringVar(&txDate, "date", "", "date YYYY-MM-DD (default today)")
	}
	txAddCmd.MarkFlagRequired("amount")

	txListCmd.Flags().StringVar(&listMonth, "month", "", "only YYYY-MM")
	txListCmd.Flags().StringVar(&listCategory, "category", "", "only this category")
	txListCmd.Flags().StringVar(&listAccount, "account", "", "only transactions touching this account")
	txListCmd.Flags().StringVar(&listType, "type", "", "only this type")

	txCmd.AddCommand(txAddCmd, txUpdateCmd, txDeleteCmd, txListCmd)
}

func runTxAdd(cmd *cobra.Command, args []string) {
	date, err := parseDate(txDate)
	exitOnError(err, "invalid flags")

	a := openApp()
	a.startSync(context.Background(), nil)
	defer a.close()

	tx, err := a.ledger.AddTransaction(ledger.Draft{
		Date:            date,
		Amount:          txAmount,
		Type:            ledger.TxType(txType),
		Category:        txCategory,
		Description:     txDescription,
		AccountID:       txAccount,
		TargetAccountID: txTarget,
	})
	if err != nil {
		a.close()
		exitOnError(err, "failed to add transaction")
	}

	slog.Debug("Transaction added", "id", tx.ID)
	fmt.Printf("Added %s %s (%s)\n", tx.Type, formatAmount(tx.Amount, a.cfg.Currency), tx.ID)
}

func runTxUpdate(cmd *cobra.Command, args []string) {
	a := openApp()
	a.startSync(context.Background(), nil)
	defer a.close()

	tx, err := a.ledger.Transaction(args[0])
	if err != nil {
		a.close()
		exitOnError(err, "failed to find transaction")
	}

	flags := cmd.Flags()
	if flags.Changed("date") {
		date, err := parseDate(txDate)
		if err != nil {
			a.close()
			exitOnError(err, "invalid flags")
		}
		tx.Date = date
	}
	if flags.Changed("amount") {
		tx.Amount = txAmount
	}
	if flags.Changed("type") {
		tx.Type = ledger.TxType(txType)
		if tx.Type != ledger.TypeTransfer && !flags.Changed("to") {
			tx.TargetAccountID = ""
		}
	}
	if flags.Changed("category") {
		tx.Category = txCategory
	}
	if flags.Changed("desc") {
		tx.Description = txDescription
	}
	if flags.Changed("account") {
		tx.AccountID = txAccount
	}
	if flags.Changed("to") {
		tx.TargetAccountID = txTarget
	}

	if err := a.ledger.UpdateTransaction(tx); err != nil {
		a.close()
		exitOnError(err, "failed to update transaction")
	}

	fmt.Printf("Updated %s\n", tx.ID)
}

func runTxDelete(cmd *cobra.Command, args []string) {
	a := openApp()
	a.startSync(context.Background(), nil)
	defer a.close()

	if err := a.ledger.DeleteTransaction(args[0]); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			fmt.Printf("No transaction %s\n", args[0])
			return
		}
		a.close()
		exitOnError(err, "failed to delete transaction")
	}

	fmt.Printf("Deleted %s\n", args[0])
}

func runTxList(cmd *cobra.Command, args []string) {
	a := openApp()
	defer a.close()

	pred := []balance.Predicate{balance.All}
	if listMonth != "" {
		year, month, err := parseMonth(listMonth)
		if err != nil {
			a.close()
			exitOnError(err, "invalid flags")
		}
		pred = append(pred, balance.InMonth(year, month, time.Local))
	}
	if listCategory != "" {
		pred = append(pred, balance.ByCategory(listCategory))
	}
	if listAccount != "" {
		pred = append(pred, balance.ByAccount(listAccount))
	}
	if listType != "" {
		pred = append(pred, balance.ByType(ledger.TxType(listType)))
	}

	accounts := a.ledger.Accounts()
	groups := balance.AggregateByPeriod(a.ledger.Transactions(), balance.Day, balance.And(pred...), time.Local)
	if len(groups) == 0 {
		fmt.Println("No transactions")
		return
	}

	w := newTable()
	fmt.Fprintln(w, "DATE\tTYPE\tAMOUNT\tCATEGORY\tACCOUNT\tDESCRIPTION\tID")
	for _, g := range groups {
		for _, tx := range g.Items {
			account := accountLabel(accounts, tx.AccountID)
			if tx.Type == ledger.TypeTransfer {
				account += " → " + accountLabel(accounts, tx.TargetAccountID)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				g.Key, tx.Type, formatAmount(tx.Amount, a.cfg.Currency),
				tx.Category, account, tx.Description, tx.ID)
		}
	}
	w.Flush()
}
