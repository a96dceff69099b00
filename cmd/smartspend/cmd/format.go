package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

const dateLayout = "2006-01-02"

// formatMoney renders value in the currency's display format. Unknown codes
// fall back to go-money's default formatter.
func formatMoney(value decimal.Decimal, currency string) string {
	cur := *money.New(0, currency).Currency()
	minor := value.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

func formatAmount(amount float64, currency string) string {
	return formatMoney(decimal.NewFromFloat(amount), currency)
}

// parseDate accepts YYYY-MM-DD in local time. An empty string means today.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local), nil
	}
	d, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

// parseMonth accepts YYYY-MM. An empty string means the current month.
func parseMonth(s string) (int, time.Month, error) {
	if s == "" {
		now := time.Now()
		return now.Year(), now.Month(), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q, want YYYY-MM", s)
	}
	return t.Year(), t.Month(), nil
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

// accountLabel returns "emoji name" for a known account, the id otherwise.
func accountLabel(accounts []ledger.Account, id string) string {
	if id == "" {
		return ""
	}
	for _, a := range accounts {
		if a.ID == id {
			return strings.TrimSpace(a.Emoji + " " + a.Name)
		}
	}
	if id == ledger.CashAccountID {
		return "💵 Cash"
	}
	return id
}

// askYesNo prints question and reads a y/n answer from in.
func askYesNo(in io.Reader, question string) (bool, error) {
	fmt.Printf("%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
