// Package models defines the spreadsheet layout served by the replica emulator.
package models

import (
	"fmt"
	"strconv"
)

// Sheet names.
const (
	SheetTransactions = "Transactions"
	SheetAccounts     = "Accounts"
)

// Header rows written on every push.
var (
	TransactionHeader = []string{"ID", "Date", "Amount", "Type", "Category", "Description", "AccountId", "TargetAccountId"}
	AccountHeader     = []string{"ID", "Name", "Emoji"}
)

// Row is one spreadsheet row.
type Row []interface{}

// Transaction is a transaction as exchanged with the client.
type Transaction struct {
	ID              string  `json:"id"`
	Date            string  `json:"date"`
	Amount          float64 `json:"amount"`
	Type            string  `json:"type"`
	Category        string  `json:"category"`
	Description     string  `json:"description"`
	AccountID       string  `json:"accountId"`
	TargetAccountID string  `json:"targetAccountId,omitempty"`
}

// Account is an account as exchanged with the client.
type Account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// PushRequest is the body of a push.
type PushRequest struct {
	Action       string        `json:"action"`
	Transactions []Transaction `json:"transactions"`
	Accounts     []Account     `json:"accounts"`
}

// PullResponse is the body returned by a pull.
type PullResponse struct {
	Transactions []Transaction `json:"transactions"`
	Accounts     []Account     `json:"accounts"`
}

// StatusResponse is returned by push and on errors.
type StatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ToRow converts a transaction to its sheet row. A missing target is
// stored as an empty cell.
func (t Transaction) ToRow() Row {
	return Row{t.ID, t.Date, t.Amount, t.Type, t.Category, t.Description, t.AccountID, t.TargetAccountID}
}

// TransactionFromRow converts a sheet row back. An empty target cell
// becomes an absent target.
func TransactionFromRow(row Row) (Transaction, error) {
	if len(row) < len(TransactionHeader) {
		return Transaction{}, fmt.Errorf("transaction row has %d cells, want %d", len(row), len(TransactionHeader))
	}

	amount, err := number(row[2])
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %v: %w", row[0], err)
	}

	return Transaction{
		ID:              text(row[0]),
		Date:            text(row[1]),
		Amount:          amount,
		Type:            text(row[3]),
		Category:        text(row[4]),
		Description:     text(row[5]),
		AccountID:       text(row[6]),
		TargetAccountID: text(row[7]),
	}, nil
}

// ToRow converts an account to its sheet row.
func (a Account) ToRow() Row {
	return Row{a.ID, a.Name, a.Emoji}
}

// AccountFromRow converts a sheet row back.
func AccountFromRow(row Row) (Account, error) {
	if len(row) < len(AccountHeader) {
		return Account{}, fmt.Errorf("account row has %d cells, want %d", len(row), len(AccountHeader))
	}
	return Account{ID: text(row[0]), Name: text(row[1]), Emoji: text(row[2])}, nil
}

// HeaderRow converts a header to a row.
func HeaderRow(header []string) Row {
	row := make(Row, len(header))
	for i, h := range header {
		row[i] = h
	}
	return row
}

func text(cell interface{}) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// number mirrors the sheet's Number() coercion.
func number(cell interface{}) (float64, error) {
	switch v := cell.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case string:
		if v == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("amount %q is not a number", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("amount %v is not a number", v)
	}
}
