package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
	"github.com/shunichi-ikebuchi/smartspend/pkg/syncer"
)

var (
	assumeYes    bool
	pullAfterSet bool
	historyLimit int
)

// syncCmd groups the spreadsheet sync commands.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the ledger with a spreadsheet script",
	Long: `Mirror the whole ledger to a spreadsheet web app.

Local changes are pushed automatically once no further change arrives for the
debounce window (SMARTSPEND_SYNC_DEBOUNCE, default 2s), and before a command
exits. Pulling replaces the local ledger and always asks for confirmation.

Example:
  smartspend sync config https://script.google.com/macros/s/XXXX/exec
  smartspend sync status
  smartspend sync pull`,
}

var syncConfigCmd = &cobra.Command{
	Use:   "config <url>",
	Short: "Set the spreadsheet script URL",
	Long: `Set the spreadsheet script URL. A new URL receives the current ledger
unless --pull is given, in which case the remote ledger is fetched first.`,
	Args: cobra.ExactArgs(1),
	Run:  runSyncConfig,
}

var syncClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the sync configuration",
	Args:  cobra.NoArgs,
	Run:   runSyncClear,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync configuration and last attempt",
	Args:  cobra.NoArgs,
	Run:   runSyncStatus,
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the whole ledger now",
	Args:  cobra.NoArgs,
	Run:   runSyncPush,
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the local ledger with the remote one",
	Args:  cobra.NoArgs,
	Run:   runSyncPull,
}

var syncHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sync attempts",
	Args:  cobra.NoArgs,
	Run:   runSyncHistory,
}

func init() {
	syncConfigCmd.Flags().BoolVar(&pullAfterSet, "pull", false, "pull the remote ledger instead of pushing the local one")
	syncConfigCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask before replacing the local ledger")
	syncPullCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask before replacing the local ledger")
	syncHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of attempts to show")

	syncCmd.AddCommand(syncConfigCmd, syncClearCmd, syncStatusCmd, syncPushCmd, syncPullCmd, syncHistoryCmd)
}

func runSyncConfig(cmd *cobra.Command, args []string) {
	a := openApp()
	a.startSync(context.Background(), nil)
	defer a.close()

	if err := a.engine.SetConfig(syncer.Config{URL: args[0]}); err != nil {
		a.close()
		exitOnError(err, "failed to configure sync")
	}
	fmt.Printf("Sync configured: %s\n", args[0])

	if pullAfterSet {
		pull(a)
	}
}

func runSyncClear(cmd *cobra.Command, args []string) {
	a := openApp()
	a.startSync(context.Background(), nil)
	defer a.close()

	if err := a.engine.ClearConfig(); err != nil {
		a.close()
		exitOnError(err, "failed to clear sync configuration")
	}
	fmt.Println("Sync disabled, the ledger stays local")
}

func runSyncStatus(cmd *cobra.Command, args []string) {
	a := openApp()
	a.startSync(context.Background(), nil)
	defer a.close()

	status := a.engine.Status()
	fmt.Println("\n=== Sync Status ===")
	if status.Config == nil {
		fmt.Println("State:        inactive (no URL configured)")
		fmt.Println()
		return
	}

	fmt.Printf("URL:          %s\n", status.Config.URL)
	fmt.Printf("Online:       %t\n", status.Online)
	if status.Config.LastSynced != nil {
		fmt.Printf("Last synced:  %s\n", status.Config.LastSynced.Local().Format(time.RFC1123))
	} else {
		fmt.Printf("Last synced:  (never)\n")
	}

	attempts, err := a.history.RecentAttempts(1)
	exitOnError(err, "failed to read sync history")
	if len(attempts) > 0 {
		last := attempts[0]
		fmt.Printf("Last attempt: %s %s at %s\n", last.Direction, last.Outcome, last.At.Local().Format(time.RFC1123))
		if last.Error != "" {
			fmt.Printf("Last error:   %s\n", last.Error)
		}
	}
	fmt.Println()
}

func runSyncPush(cmd *cobra.Command, args []string) {
	a := openApp()
	a.startSync(context.Background(), nil)
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Sync.HTTPTimeout+5*time.Second)
	defer cancel()

	if err := a.engine.Push(ctx); err != nil {
		a.close()
		exitOnError(err, "push failed")
	}

	snap := a.ledger.Snapshot()
	fmt.Printf("Pushed %d transactions and %d accounts\n", len(snap.Transactions), len(snap.Accounts))
}

func runSyncPull(cmd *cobra.Command, args []string) {
	a := openApp()
	a.startSync(context.Background(), nil)
	defer a.close()

	pull(a)
}

// pull fetches the remote ledger and replaces the local one once confirmed.
func pull(a *app) {
	local := a.ledger.Snapshot()

	confirm := func(ctx context.Context, remote ledger.Snapshot) (bool, error) {
		fmt.Printf("Remote has %d transactions and %d accounts, local has %d and %d.\n",
			len(remote.Transactions), len(remote.Accounts),
			len(local.Transactions), len(local.Accounts))
		if assumeYes {
			return true, nil
		}
		return askYesNo(os.Stdin, "Replace the local ledger with the remote one?")
	}

	result, err := a.engine.Pull(context.Background(), confirm)
	if err != nil {
		if errors.Is(err, syncer.ErrNotConfigured) {
			fmt.Println("Sync is not configured, run: smartspend sync config <url>")
			return
		}
		a.close()
		exitOnError(err, "pull failed")
	}

	if !result.Applied {
		fmt.Println("Pull cancelled, local ledger unchanged")
		return
	}
	fmt.Printf("Local ledger replaced: %d transactions, %d accounts\n",
		len(result.Remote.Transactions), len(result.Remote.Accounts))
}

func runSyncHistory(cmd *cobra.Command, args []string) {
	a := openApp()
	defer a.close()

	attempts, err := a.history.RecentAttempts(historyLimit)
	exitOnError(err, "failed to read sync history")

	if len(attempts) == 0 {
		fmt.Println("No sync attempts yet")
		return
	}

	w := newTable()
	fmt.Fprintln(w, "TIME\tDIRECTION\tOUTCOME\tTRANSACTIONS\tACCOUNTS\tERROR")
	for _, at := range attempts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			at.At.Local().Format("2006-01-02 15:04:05"), at.Direction, at.Outcome,
			at.Transactions, at.Accounts, at.Error)
	}
	w.Flush()
}
