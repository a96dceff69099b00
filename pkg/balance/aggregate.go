package balance

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

// Granularity is the calendar unit used to group transactions.
type Granularity string

const (
	Day   Granularity = "day"
	Month Granularity = "month"
)

// ParseGranularity parses "day" or "month".
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case Day, Month:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("invalid granularity %q: expected day or month", s)
}

// Key returns the period key of t in loc: YYYY-MM-DD for days, YYYY-MM for months.
func (g Granularity) Key(t time.Time, loc *time.Location) string {
	t = t.In(orLocal(loc))
	if g == Month {
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}

// PeriodGroup is one calendar period of an aggregate.
type PeriodGroup struct {
	Key   string
	Total decimal.Decimal
	Items []ledger.Transaction // newest first
}

// AggregateByPeriod groups the transactions accepted by filter per calendar
// day or month in loc (time.Local when nil). Periods are ordered most recent
// first. The same routine backs the bazar, expense and monthly reports.
func AggregateByPeriod(txs []ledger.Transaction, g Granularity, filter Predicate, loc *time.Location) []PeriodGroup {
	groups := make(map[string]*PeriodGroup)
	for _, tx := range txs {
		if filter != nil && !filter(tx) {
			continue
		}
		key := g.Key(tx.Date, loc)
		grp, ok := groups[key]
		if !ok {
			grp = &PeriodGroup{Key: key, Total: decimal.Zero}
			groups[key] = grp
		}
		grp.Total = grp.Total.Add(Amount(tx))
		grp.Items = append(grp.Items, tx)
	}

	result := make([]PeriodGroup, 0, len(groups))
	for _, grp := range groups {
		sortNewestFirst(grp.Items)
		result = append(result, *grp)
	}
	// Keys are zero-padded, so string order is calendar order.
	sort.Slice(result, func(i, j int) bool { return result[i].Key > result[j].Key })
	return result
}

// UncategorizedLabel is used for transactions with an empty category.
const UncategorizedLabel = "Other"

// CategoryGroup is one category of an aggregate.
type CategoryGroup struct {
	Category string
	Total    decimal.Decimal
	Items    []ledger.Transaction // newest first
}

// AggregateByCategory groups txs by category, ordered by descending total with
// ties broken by category name.
func AggregateByCategory(txs []ledger.Transaction) []CategoryGroup {
	groups := make(map[string]*CategoryGroup)
	for _, tx := range txs {
		cat := tx.Category
		if cat == "" {
			cat = UncategorizedLabel
		}
		grp, ok := groups[cat]
		if !ok {
			grp = &CategoryGroup{Category: cat, Total: decimal.Zero}
			groups[cat] = grp
		}
		grp.Total = grp.Total.Add(Amount(tx))
		grp.Items = append(grp.Items, tx)
	}

	result := make([]CategoryGroup, 0, len(groups))
	for _, grp := range groups {
		sortNewestFirst(grp.Items)
		result = append(result, *grp)
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].Total.Cmp(result[j].Total); c != 0 {
			return c > 0
		}
		return result[i].Category < result[j].Category
	})
	return result
}

// sortNewestFirst orders by date descending; equal dates fall back to id so
// the output does not depend on input order.
func sortNewestFirst(txs []ledger.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
}
