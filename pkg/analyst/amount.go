package analyst

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// currencyReplacer strips symbols and separators spreadsheets leave in
// formatted money cells.
var currencyReplacer = strings.NewReplacer(
	",", "",
	"₹", "",
	"$", "",
	"€", "",
	"£", "",
	"Rs.", "",
	"Rs", "",
	"INR", "",
	" ", "",
	" ", "",
)

// ParseAmount converts a cell value to an exact decimal. Formatted strings
// such as "₹1,234.50" and "(200)" are accepted; blanks and text are not.
func ParseAmount(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return x, true
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, false
		}
		return *x, true
	case float64:
		return decimal.NewFromFloat(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt32(x), true
	case int64:
		return decimal.NewFromInt(x), true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case string:
		return parseAmountString(x)
	case fmt.Stringer:
		return parseAmountString(x.String())
	default:
		return decimal.Zero, false
	}
}

func parseAmountString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = currencyReplacer.Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// groupKey renders a grouping cell. Missing and blank values share one key.
func groupKey(v any) string {
	switch x := v.(type) {
	case nil:
		return BlankGroup
	case string:
		if s := strings.TrimSpace(x); s != "" {
			return s
		}
		return BlankGroup
	case time.Time:
		return x.Format("2006-01-02")
	default:
		if s := strings.TrimSpace(fmt.Sprint(x)); s != "" {
			return s
		}
		return BlankGroup
	}
}
