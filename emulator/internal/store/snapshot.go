package store

import (
	"fmt"

	"github.com/shunichi-ikebuchi/smartspend/emulator/internal/models"
)

// ReplaceSnapshot overwrites both sheets with the pushed collections.
func (s *Store) ReplaceSnapshot(txs []models.Transaction, accounts []models.Account) error {
	txRows := make([]models.Row, len(txs))
	for i, t := range txs {
		txRows[i] = t.ToRow()
	}

	accRows := make([]models.Row, len(accounts))
	for i, a := range accounts {
		accRows[i] = a.ToRow()
	}

	return s.ReplaceSheets(
		Sheet{Name: models.SheetTransactions, Header: models.TransactionHeader, Rows: txRows},
		Sheet{Name: models.SheetAccounts, Header: models.AccountHeader, Rows: accRows},
	)
}

// Snapshot reads both sheets. A sheet that was never written reads as empty.
func (s *Store) Snapshot() (models.PullResponse, error) {
	resp := models.PullResponse{
		Transactions: []models.Transaction{},
		Accounts:     []models.Account{},
	}

	sheets, err := s.ReadSheets(models.SheetTransactions, models.SheetAccounts)
	if err != nil {
		return resp, err
	}

	for _, row := range sheets[models.SheetTransactions] {
		t, err := models.TransactionFromRow(row)
		if err != nil {
			return resp, fmt.Errorf("failed to read transactions: %w", err)
		}
		resp.Transactions = append(resp.Transactions, t)
	}

	for _, row := range sheets[models.SheetAccounts] {
		a, err := models.AccountFromRow(row)
		if err != nil {
			return resp, fmt.Errorf("failed to read accounts: %w", err)
		}
		resp.Accounts = append(resp.Accounts, a)
	}

	return resp, nil
}
