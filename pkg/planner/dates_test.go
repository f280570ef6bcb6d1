package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExtractDates(t *testing.T) {
	ref := date(2025, time.February, 15)

	tests := []struct {
		name  string
		query string
		want  []models.DateRange
	}{
		{"iso date", "GST on 2025-01-12", []models.DateRange{models.SingleDay(date(2025, 1, 12))}},
		{"day month without year uses reference year", "discount amount for 10 Jan", []models.DateRange{models.SingleDay(date(2025, 1, 10))}},
		{"day month year is one day", "gst on 10 Jan 2024", []models.DateRange{models.SingleDay(date(2024, 1, 10))}},
		{"ordinal day", "gst on 3rd march 2025", []models.DateRange{models.SingleDay(date(2025, 3, 3))}},
		{"month year is the whole month", "trend for January 2025", []models.DateRange{models.MonthRange(2025, time.January)}},
		{"february of a leap year", "total for feb 2024", []models.DateRange{models.MonthRange(2024, time.February)}},
		{"us style", "gst on jan 10, 2025", []models.DateRange{models.SingleDay(date(2025, 1, 10))}},
		{"slash date is day first", "gst on 12/01/2025", []models.DateRange{models.SingleDay(date(2025, 1, 12))}},
		{
			"between two days",
			"expenses between 1 jan 2025 and 15 jan 2025",
			[]models.DateRange{models.SingleDay(date(2025, 1, 1)), models.SingleDay(date(2025, 1, 15))},
		},
		{"bare month needs a preposition", "gst for may", []models.DateRange{models.MonthRange(2025, time.May)}},
		{"sept abbreviation", "gst in sept 2024", []models.DateRange{models.MonthRange(2024, time.September)}},
		{"today", "gst today", []models.DateRange{models.SingleDay(ref)}},
		{"yesterday", "gst yesterday", []models.DateRange{models.SingleDay(date(2025, 2, 14))}},
		{"this month", "expenses this month", []models.DateRange{models.MonthRange(2025, time.February)}},
		{"last month", "expenses last month", []models.DateRange{models.MonthRange(2025, time.January)}},
		{"last n days", "gst for the last 7 days", []models.DateRange{models.NewDateRange(date(2025, 2, 9), ref)}},
		{"last year", "revenue last year", []models.DateRange{{From: date(2024, 1, 1), To: date(2024, 12, 31)}}},
		{"invalid calendar day", "gst on 2025-02-30", nil},
		{"no dates", "show the data", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDates(tt.query, ref)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractDates_LastMonthAcrossYear(t *testing.T) {
	got := ExtractDates("last month", date(2025, time.January, 20))
	require.Len(t, got, 1)
	assert.Equal(t, models.MonthRange(2024, time.December), got[0])
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2025-01-12", "12 Jan 2025", "12 January 2025", "12/01/2025", "2025-01-12T10:00:00Z"} {
		got, ok := ParseDate(s)
		require.True(t, ok, s)
		assert.Equal(t, date(2025, 1, 12), got, s)
	}
	_, ok := ParseDate("soon")
	assert.False(t, ok)
}
