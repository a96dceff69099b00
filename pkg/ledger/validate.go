package ledger

import (
	"fmt"
	"math"
	"strings"
)

// ValidateTransaction checks tx against the ledger invariants. Account
// references are resolved against known; CashAccountID is always accepted.
func ValidateTransaction(tx Transaction, known map[string]bool) error {
	if !tx.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrValidation, tx.Type)
	}
	if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
		return fmt.Errorf("%w: amount must be a finite number", ErrValidation)
	}
	if tx.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative, got %v", ErrValidation, tx.Amount)
	}
	if tx.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if tx.AccountID == "" {
		return fmt.Errorf("%w: accountId is required", ErrValidation)
	}
	if !isKnownAccount(tx.AccountID, known) {
		return fmt.Errorf("%w: unknown account %q", ErrValidation, tx.AccountID)
	}

	switch tx.Type {
	case TypeTransfer:
		if tx.TargetAccountID == "" {
			return fmt.Errorf("%w: transfer requires a target account", ErrValidation)
		}
		if tx.TargetAccountID == tx.AccountID {
			return fmt.Errorf("%w: transfer target must differ from source %q", ErrValidation, tx.AccountID)
		}
		if !isKnownAccount(tx.TargetAccountID, known) {
			return fmt.Errorf("%w: unknown target account %q", ErrValidation, tx.TargetAccountID)
		}
	default:
		if tx.TargetAccountID != "" {
			return fmt.Errorf("%w: only transfers may set a target account", ErrValidation)
		}
	}
	return nil
}

// ValidateAccounts checks that every account has a non-empty, unique id.
func ValidateAccounts(accounts []Account) error {
	seen := make(map[string]bool, len(accounts))
	for i, a := range accounts {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return fmt.Errorf("%w: account #%d has an empty id", ErrValidation, i)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate account id %q", ErrValidation, id)
		}
		seen[id] = true
	}
	return nil
}

func isKnownAccount(id string, known map[string]bool) bool {
	return id == CashAccountID || known[id]
}
