package models

import (
	"fmt"
	"time"
)

// DateLayout is the canonical textual form of a calendar date.
const DateLayout = "2006-01-02"

// DateFilterType says which date a plan's range applies to.
type DateFilterType string

const (
	DateFilterEvent  DateFilterType = "event_date"  // the row's own business date
	DateFilterUpload DateFilterType = "upload_date" // the dataset version's creation date
)

// DateRange is an inclusive calendar range. The zero value is unbounded.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SingleDay returns a range covering only the day of t.
func SingleDay(t time.Time) DateRange {
	d := DateOf(t)
	return DateRange{From: d, To: d}
}

// MonthRange returns the range covering the whole calendar month.
func MonthRange(year int, month time.Month) DateRange {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return DateRange{From: from, To: from.AddDate(0, 1, -1)}
}

// NewDateRange orders the bounds so From <= To.
func NewDateRange(a, b time.Time) DateRange {
	a, b = DateOf(a), DateOf(b)
	if b.Before(a) {
		a, b = b, a
	}
	return DateRange{From: a, To: b}
}

// IsZero reports whether the range is unbounded.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// IsSingleDay reports whether the range covers exactly one day.
func (r DateRange) IsSingleDay() bool {
	return !r.IsZero() && r.From.Equal(r.To)
}

// Days returns the number of calendar days covered, inclusive.
func (r DateRange) Days() int {
	if r.IsZero() {
		return 0
	}
	return int(r.To.Sub(r.From).Hours()/24) + 1
}

// Contains reports whether the day of t falls inside the range. An unbounded
// range contains everything.
func (r DateRange) Contains(t time.Time) bool {
	if r.IsZero() {
		return true
	}
	d := DateOf(t)
	return !d.Before(r.From) && !d.After(r.To)
}

// Union returns the smallest range covering both.
func (r DateRange) Union(o DateRange) DateRange {
	if r.IsZero() {
		return o
	}
	if o.IsZero() {
		return r
	}
	from, to := r.From, r.To
	if o.From.Before(from) {
		from = o.From
	}
	if o.To.After(to) {
		to = o.To
	}
	return DateRange{From: from, To: to}
}

// Ptr returns a pointer to a copy of r, or nil when r is unbounded.
func (r DateRange) Ptr() *DateRange {
	if r.IsZero() {
		return nil
	}
	c := r
	return &c
}

func (r DateRange) String() string {
	switch {
	case r.IsZero():
		return "all dates"
	case r.IsSingleDay():
		return r.From.Format(DateLayout)
	default:
		return fmt.Sprintf("%s to %s", r.From.Format(DateLayout), r.To.Format(DateLayout))
	}
}
