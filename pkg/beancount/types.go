// Package beancount provides repository pattern for Beancount file operations.
package beancount

import "github.com/shopspring/decimal"

// Transaction represents a Beancount transaction.
type Transaction struct {
	Date      string            // YYYY-MM-DD
	Narration string            // Transaction description
	Payee     string            // Payee name (optional)
	Tags      []string          // Tags (e.g., ["smartspend"])
	Links     []string          // Links (optional)
	Metadata  map[string]string // Metadata key-value pairs
	Postings  []Posting         // Transaction postings
}

// Posting represents a posting in a Beancount transaction.
type Posting struct {
	Account  string          // Account name (e.g., "Assets:Bank:Checking")
	Amount   decimal.Decimal // Amount (positive for debit, negative for credit)
	Currency string          // Currency code (e.g., "BDT")
	Comment  string          // Posting comment (optional)
}

// Accounts returns the distinct accounts referenced by the postings, in
// posting order.
func (t Transaction) Accounts() []string {
	seen := make(map[string]bool, len(t.Postings))
	var accounts []string
	for _, p := range t.Postings {
		if !seen[p.Account] {
			seen[p.Account] = true
			accounts = append(accounts, p.Account)
		}
	}
	return accounts
}
