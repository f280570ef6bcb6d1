package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/ekaya-insight/pkg/analyst"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/textmatch"
)

// columnAliases maps common headers onto the names the rest of the engine
// expects. "total" is deliberately absent: it names total_amount.
var columnAliases = map[string]string{
	"value":            "amount",
	"date":             "rowdate",
	"transaction_date": "rowdate",
	"txn_date":         "rowdate",
	"desc":             "description",
	"notes":            "remarks",
}

var (
	dateLike   = map[string]bool{"date": true, "rowdate": true, "dt": true, "transaction": true, "txn": true}
	amountLike = map[string]bool{"amount": true, "value": true, "total": true, "gst": true, "tax": true,
		"sum": true, "balance": true, "cgst": true, "sgst": true, "igst": true, "discount": true, "net": true}
)

type columnKind int

const (
	kindText columnKind = iota
	kindDate
	kindAmount
)

func normalizeColumn(h string) string {
	name := textmatch.ColumnName(h)
	if name == "" {
		return "unknown"
	}
	if alias, ok := columnAliases[name]; ok {
		return alias
	}
	return name
}

// normalizeColumns normalizes every header and suffixes repeats: the second
// "amount" becomes "amount_1".
func normalizeColumns(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeColumn(h)
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}

func kindOf(col string) columnKind {
	base, _, _ := strings.Cut(col, "_")
	switch {
	case dateLike[base] || strings.Contains(col, "date"):
		return kindDate
	case amountLike[base] || strings.Contains(col, "amount") || strings.Contains(col, "gst") ||
		strings.Contains(col, "total"):
		return kindAmount
	default:
		return kindText
	}
}

// rowDateColumn is the first column holding the row's own business date.
func rowDateColumn(cols []string) string {
	for _, c := range cols {
		if c == "rowdate" || c == "date" || strings.HasPrefix(c, "date_") || strings.HasPrefix(c, "rowdate_") {
			return c
		}
	}
	for _, c := range cols {
		if kindOf(c) == kindDate {
			return c
		}
	}
	return ""
}

// convert returns nil for blank cells. Dates that do not parse and amounts
// that are not numbers are kept as text rather than dropped.
func convert(cell string, kind columnKind) any {
	if cell == "" {
		return nil
	}
	switch kind {
	case kindDate:
		if d, ok := ParseCellDate(cell); ok {
			return d.Format(models.DateLayout)
		}
	case kindAmount:
		if d, ok := analyst.ParseAmount(cell); ok {
			return exactString(d)
		}
	}
	return cell
}

// exactString keeps the scale the cell was written with: "2500.50" stays
// "2500.50".
func exactString(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

var cellDateLayouts = []string{
	models.DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// maxExcelSerial bounds serial numbers taken as dates (9999-12-31).
const maxExcelSerial = 2958465

// ParseCellDate reads a date cell. Numbers are Excel serial dates; slashed
// and dashed numeric dates are day first.
func ParseCellDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial < 1 || serial > maxExcelSerial {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return models.DateOf(t), true
	}
	for _, layout := range cellDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOf(t), true
		}
	}
	return time.Time{}, false
}
