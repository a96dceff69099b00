// Package cmd provides CLI commands for smartspend.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "smartspend",
	Short: "Offline-first personal ledger with spreadsheet sync",
	Long: `smartspend tracks income, expenses and transfers across your accounts.

It supports:
- Recording transactions offline in a local SQLite ledger
- Balances and monthly, period and category reports
- Debounced sync of the whole ledger to a spreadsheet script
- Restoring the ledger from the spreadsheet after confirmation
- Exporting to Beancount plain-text accounting files

Example:
  smartspend tx add --type expense --amount 120 --category Food --account wallet
  smartspend balances
  smartspend sync config https://script.google.com/macros/s/.../exec`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logging
		logLevel := slog.LevelInfo
		if debug || os.Getenv("DEBUG") == "true" {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(balancesCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
}

// Helper function to get config file path.
func getConfigFile() string {
	return cfgFile
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
