package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/smartspend/pkg/beancount"
	"github.com/shunichi-ikebuchi/smartspend/pkg/converter"
)

var (
	exportMonth  string
	exportForce  bool
	exportDryRun bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ledger to other formats",
}

// exportBeancountCmd represents the export beancount command.
var exportBeancountCmd = &cobra.Command{
	Use:   "beancount",
	Short: "Export transactions to Beancount files",
	Long: `Export ledger transactions to monthly Beancount files.

This command:
1. Filters out transactions exported before (unless --force)
2. Converts them using the account mapping file
3. Opens any new Beancount accounts in accounts.beancount
4. Appends entries to YYYY/YYYY-MM.beancount files
5. Records export history in SQLite

Example:
  smartspend export beancount
  smartspend export beancount --month 2024-06 --dry-run`,
	Args: cobra.NoArgs,
	Run:  runExportBeancount,
}

func init() {
	exportBeancountCmd.Flags().StringVar(&exportMonth, "month", "", "only export YYYY-MM")
	exportBeancountCmd.Flags().BoolVar(&exportForce, "force", false, "export again transactions already exported")
	exportBeancountCmd.Flags().BoolVar(&exportDryRun, "dry-run", false, "Dry run mode (no file writes)")

	exportCmd.AddCommand(exportBeancountCmd)
}

func runExportBeancount(cmd *cobra.Command, args []string) {
	a := openApp()
	defer a.close()

	slog.Info("Starting export", "month", exportMonth, "dry_run", exportDryRun)

	// Initialize account mapper
	mappingFile := a.paths.GetMappingFile()
	var mapper *converter.Mapper
	var err error
	if a.paths.FileExists(mappingFile) {
		mapper, err = converter.NewMapper(mappingFile)
	} else {
		slog.Info("No mapping file, using default accounts", "path", mappingFile)
		mapper, err = converter.NewMapperFromConfig(converter.MappingConfig{})
	}
	exitOnError(err, "failed to load account mapping")

	cvtr := converter.NewConverter(mapper, a.cfg.Currency, time.Local)
	repo := beancount.NewFileSystemRepository(a.paths)
	exporter := converter.NewExporter(cvtr, repo, a.paths, a.history, slog.Default())

	result, err := exporter.Export(a.ledger.Transactions(), converter.ExportOptions{
		Month:  exportMonth,
		Force:  exportForce,
		DryRun: exportDryRun,
	})
	exitOnError(err, "export failed")

	if exportDryRun {
		for _, entry := range result.Entries {
			fmt.Println(entry)
		}
		fmt.Printf("[DRY RUN] Would export %d transactions (%d already exported)\n", result.Exported, result.Skipped)
		return
	}

	if result.Exported == 0 {
		fmt.Println("No new transactions to export")
		return
	}

	for _, acc := range result.Opened {
		fmt.Printf("Opened account %s\n", acc)
	}
	fmt.Printf("Exported %d transactions to %d month files (%d skipped)\n",
		result.Exported, len(result.Months), result.Skipped)
	fmt.Printf("Main file: %s\n", a.paths.GetMainFilePath())

	slog.Info("Export completed",
		"exported", result.Exported,
		"skipped", result.Skipped,
		"months", len(result.Months),
	)
}
