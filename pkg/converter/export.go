package converter

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shunichi-ikebuchi/smartspend/pkg/balance"
	"github.com/shunichi-ikebuchi/smartspend/pkg/beancount"
	"github.com/shunichi-ikebuchi/smartspend/pkg/db"
	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
	"github.com/shunichi-ikebuchi/smartspend/pkg/pathutil"
)

// ExportHistory tracks which transactions were already exported.
type ExportHistory interface {
	GetExportedIDs() (map[string]bool, error)
	RecordExports(records []db.ExportRecord) error
}

// ExportOptions narrows an export.
type ExportOptions struct {
	// Month limits the export to one YYYY-MM period when set.
	Month string
	// Force re-exports transactions already recorded in the history.
	Force bool
	// DryRun converts without writing files or history.
	DryRun bool
}

// ExportResult summarizes an export.
type ExportResult struct {
	Exported int
	Skipped  int
	Months   []string
	Opened   []string
	Entries  []string // formatted transactions, filled on dry runs
}

// Exporter writes ledger transactions into monthly Beancount files.
type Exporter struct {
	converter *Converter
	repo      beancount.Repository
	paths     *pathutil.PathResolver
	history   ExportHistory
	loc       *time.Location
	logger    *slog.Logger
}

// NewExporter creates a new Exporter.
func NewExporter(conv *Converter, repo beancount.Repository, paths *pathutil.PathResolver, history ExportHistory, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		converter: conv,
		repo:      repo,
		paths:     paths,
		history:   history,
		loc:       conv.loc,
		logger:    logger,
	}
}

// Export converts txs month by month, oldest month first and each month in
// chronological order.
func (e *Exporter) Export(txs []ledger.Transaction, opts ExportOptions) (ExportResult, error) {
	var result ExportResult

	exported, err := e.history.GetExportedIDs()
	if err != nil {
		return result, fmt.Errorf("failed to load export history: %w", err)
	}

	var filter balance.Predicate = balance.All
	if opts.Month != "" {
		if _, err := e.paths.GetMonthFilePath(opts.Month); err != nil {
			return result, err
		}
		month := opts.Month
		filter = func(tx ledger.Transaction) bool {
			return balance.Month.Key(tx.Date, e.loc) == month
		}
	}

	groups := balance.AggregateByPeriod(txs, balance.Month, filter, e.loc)
	for i := len(groups) - 1; i >= 0; i-- {
		group := groups[i]

		var pending []beancount.Transaction
		var records []db.ExportRecord
		for j := len(group.Items) - 1; j >= 0; j-- {
			tx := group.Items[j]
			if exported[tx.ID] && !opts.Force {
				result.Skipped++
				continue
			}
			pending = append(pending, e.converter.Convert(tx))
			records = append(records, db.ExportRecord{
				TransactionID: tx.ID,
				Month:         group.Key,
				Amount:        balance.Amount(tx).String(),
			})
		}
		if len(pending) == 0 {
			continue
		}

		if opts.DryRun {
			for _, bt := range pending {
				result.Entries = append(result.Entries, e.converter.FormatTransaction(bt))
			}
		} else if err := e.writeMonth(group.Key, pending, records, &result); err != nil {
			return result, err
		}

		result.Exported += len(pending)
		result.Months = append(result.Months, group.Key)
	}

	if !opts.DryRun && result.Exported > 0 {
		if err := e.repo.WriteMainFile(e.converter.Currency()); err != nil {
			return result, fmt.Errorf("failed to write main file: %w", err)
		}
	}

	return result, nil
}

func (e *Exporter) writeMonth(month string, pending []beancount.Transaction, records []db.ExportRecord, result *ExportResult) error {
	filePath, err := e.paths.GetMonthFilePath(month)
	if err != nil {
		return err
	}

	var accounts []string
	for _, bt := range pending {
		accounts = append(accounts, bt.Accounts()...)
	}
	opened, err := e.repo.EnsureOpened(accounts, e.converter.Currency(), pending[0].Date)
	if err != nil {
		return fmt.Errorf("failed to open accounts: %w", err)
	}
	result.Opened = append(result.Opened, opened...)

	for _, bt := range pending {
		if err := e.repo.AppendTransaction(month, e.converter.FormatTransaction(bt)); err != nil {
			return fmt.Errorf("failed to append transaction %s: %w", bt.Metadata[MetadataIDKey], err)
		}
	}

	for i := range records {
		records[i].BeancountFile = filePath
	}
	if err := e.history.RecordExports(records); err != nil {
		return fmt.Errorf("failed to record exports: %w", err)
	}

	e.logger.Info("exported month", "month", month, "transactions", len(pending), "file", filePath)
	return nil
}
