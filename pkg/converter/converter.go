package converter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/smartspend/pkg/balance"
	"github.com/shunichi-ikebuchi/smartspend/pkg/beancount"
	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

// MetadataIDKey is the metadata key holding the ledger transaction id.
const MetadataIDKey = "smartspend_id"

// Converter converts ledger transactions to Beancount format.
type Converter struct {
	mapper   *Mapper
	currency string
	loc      *time.Location
}

// NewConverter creates a new Converter. An empty currency falls back to the
// mapping file's currency and then to BDT.
func NewConverter(mapper *Mapper, currency string, loc *time.Location) *Converter {
	if currency == "" {
		currency = mapper.Currency()
	}
	if currency == "" {
		currency = "BDT"
	}
	if loc == nil {
		loc = time.Local
	}
	return &Converter{
		mapper:   mapper,
		currency: strings.ToUpper(currency),
		loc:      loc,
	}
}

// Currency returns the currency postings are written in.
func (c *Converter) Currency() string {
	return c.currency
}

// Convert converts a ledger transaction to a balanced Beancount transaction.
func (c *Converter) Convert(tx ledger.Transaction) beancount.Transaction {
	amount := balance.Amount(tx)
	source := c.mapper.GetAccount(tx.AccountID)

	var debit, credit string
	switch tx.Type {
	case ledger.TypeIncome:
		debit, credit = source, c.mapper.GetIncomeAccount(tx.Category)
	case ledger.TypeExpense:
		debit, credit = c.mapper.GetExpenseAccount(tx.Category), source
	case ledger.TypeTransfer:
		debit, credit = c.mapper.GetAccount(tx.TargetAccountID), source
	}

	return beancount.Transaction{
		Date:      tx.Date.In(c.loc).Format("2006-01-02"),
		Narration: buildNarration(tx),
		Tags:      []string{string(tx.Type)},
		Metadata:  map[string]string{MetadataIDKey: tx.ID},
		Postings: []beancount.Posting{
			{Account: debit, Amount: amount, Currency: c.currency},
			{Account: credit, Amount: amount.Neg(), Currency: c.currency},
		},
	}
}

// FormatTransaction formats a Beancount transaction as a string.
func (c *Converter) FormatTransaction(txn beancount.Transaction) string {
	var sb strings.Builder

	// Transaction header
	sb.WriteString(txn.Date)
	sb.WriteString(" *")
	if txn.Payee != "" {
		sb.WriteString(fmt.Sprintf(" %s", quote(txn.Payee)))
	}
	sb.WriteString(fmt.Sprintf(" %s", quote(txn.Narration)))
	for _, tag := range txn.Tags {
		sb.WriteString(" #")
		sb.WriteString(tag)
	}
	for _, link := range txn.Links {
		sb.WriteString(" ^")
		sb.WriteString(link)
	}
	sb.WriteString("\n")

	// Metadata, sorted for stable output
	keys := make([]string, 0, len(txn.Metadata))
	for k := range txn.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %s: %s\n", k, quote(txn.Metadata[k])))
	}

	// Postings
	for _, posting := range txn.Postings {
		sb.WriteString("  ")
		sb.WriteString(posting.Account)

		// Right-align amount (typical Beancount style)
		amount := formatAmount(posting.Amount)
		spaces := 60 - len(posting.Account) - len(amount)
		if spaces < 2 {
			spaces = 2
		}
		sb.WriteString(strings.Repeat(" ", spaces))
		sb.WriteString(fmt.Sprintf("%s %s", amount, posting.Currency))

		if posting.Comment != "" {
			sb.WriteString(fmt.Sprintf(" ; %s", posting.Comment))
		}

		sb.WriteString("\n")
	}

	return sb.String()
}

// Helper functions

func formatAmount(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return d.StringFixed(0)
	}
	return d.StringFixed(2)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func buildNarration(tx ledger.Transaction) string {
	if tx.Description != "" {
		return tx.Description
	}
	if tx.Category != "" {
		return tx.Category
	}

	switch tx.Type {
	case ledger.TypeIncome:
		return "Income"
	case ledger.TypeTransfer:
		return fmt.Sprintf("Transfer %s to %s", tx.AccountID, tx.TargetAccountID)
	default:
		return "Expense"
	}
}
