package analyst

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

const monthLayout = "2006-01"

// Aggregate builds the per-day and per-month totals of metricColumn over
// rows. Rows without an event date count toward Total and UndatedTotal but
// not toward any period. Cells that are not numbers contribute zero.
func Aggregate(rows []models.RowRecord, metricColumn string) *models.Aggregates {
	agg := &models.Aggregates{
		Daily:   []models.PeriodTotal{},
		Monthly: []models.PeriodTotal{},
	}
	daily := make(map[time.Time]*models.PeriodTotal)
	monthly := make(map[time.Time]*models.PeriodTotal)

	for i := range rows {
		row := &rows[i]
		amount, _ := ParseAmount(row.Field(metricColumn))
		agg.Total = agg.Total.Add(amount)
		agg.RowCount++

		if row.RowDate == nil {
			agg.UndatedTotal = agg.UndatedTotal.Add(amount)
			agg.UndatedRows++
			continue
		}

		d := models.DateOf(*row.RowDate)
		addTo(daily, d, d.Format(models.DateLayout), amount)
		m := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		addTo(monthly, m, m.Format(monthLayout), amount)

		if agg.MinDate == nil || d.Before(*agg.MinDate) {
			lo := d
			agg.MinDate = &lo
		}
		if agg.MaxDate == nil || d.After(*agg.MaxDate) {
			hi := d
			agg.MaxDate = &hi
		}
	}

	agg.Daily = sortedPeriods(daily)
	agg.Monthly = sortedPeriods(monthly)
	return agg
}

func addTo(periods map[time.Time]*models.PeriodTotal, start time.Time, label string, amount decimal.Decimal) {
	p, ok := periods[start]
	if !ok {
		p = &models.PeriodTotal{Period: label, Start: start, Total: decimal.Zero}
		periods[start] = p
	}
	p.Total = p.Total.Add(amount)
	p.Rows++
}

func sortedPeriods(periods map[time.Time]*models.PeriodTotal) []models.PeriodTotal {
	out := make([]models.PeriodTotal, 0, len(periods))
	for _, p := range periods {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
