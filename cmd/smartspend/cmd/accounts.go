package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

// accountsFile is the YAML layout read by "accounts set".
//
//	accounts:
//	  - id: bank
//	    name: City Bank
//	    emoji: 🏦
type accountsFile struct {
	Accounts []struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Emoji string `yaml:"emoji"`
	} `yaml:"accounts"`
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage accounts",
}

var accountsSetCmd = &cobra.Command{
	Use:   "set <accounts.yaml>",
	Short: "Replace the account list from a YAML file",
	Long: `Replace the whole account list. Transactions referring to removed
accounts are kept and still count toward their balances.

Example file:
  accounts:
    - id: bank
      name: City Bank
      emoji: "🏦"
    - id: bkash
      name: bKash
      emoji: "📱"`,
	Args: cobra.ExactArgs(1),
	Run:  runAccountsSet,
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	Run:   runAccountsList,
}

func init() {
	accountsCmd.AddCommand(accountsSetCmd, accountsListCmd)
}

func loadAccountsFile(path string) ([]ledger.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var file accountsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	accounts := make([]ledger.Account, 0, len(file.Accounts))
	for _, a := range file.Accounts {
		accounts = append(accounts, ledger.Account{ID: a.ID, Name: a.Name, Emoji: a.Emoji})
	}
	return accounts, nil
}

func runAccountsSet(cmd *cobra.Command, args []string) {
	accounts, err := loadAccountsFile(args[0])
	exitOnError(err, "failed to load accounts")

	a := openApp()
	a.startSync(context.Background(), nil)
	defer a.close()

	if err := a.ledger.SetAccounts(accounts); err != nil {
		a.close()
		exitOnError(err, "failed to set accounts")
	}

	fmt.Printf("Stored %d accounts\n", len(accounts))
}

func runAccountsList(cmd *cobra.Command, args []string) {
	a := openApp()
	defer a.close()

	w := newTable()
	fmt.Fprintln(w, "ID\tNAME")
	fmt.Fprintf(w, "%s\t%s\n", ledger.CashAccountID, accountLabel(nil, ledger.CashAccountID))
	for _, acc := range a.ledger.Accounts() {
		fmt.Fprintf(w, "%s\t%s\n", acc.ID, accountLabel([]ledger.Account{acc}, acc.ID))
	}
	w.Flush()
}
