package contracts

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// HistoryPoint is one month of observed demand.
type HistoryPoint struct {
	Period    time.Time       `json:"period"`
	ActualQty decimal.Decimal `json:"actual_qty"`
}

// HistorySeries is ordered by period, one point per month.
type HistorySeries []HistoryPoint

// NormalizeSeries truncates periods to month start, sorts ascending and
// drops duplicate months (last value wins).
func NormalizeSeries(points []HistoryPoint) HistorySeries {
	byMonth := make(map[time.Time]decimal.Decimal, len(points))
	for _, p := range points {
		byMonth[MonthStart(p.Period)] = p.ActualQty
	}

	out := make(HistorySeries, 0, len(byMonth))
	for period, qty := range byMonth {
		out = append(out, HistoryPoint{Period: period, ActualQty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out
}

// Len returns the number of months in the series.
func (s HistorySeries) Len() int {
	return len(s)
}

// Values returns the quantities as float64 for numeric work.
func (s HistorySeries) Values() []float64 {
	values := make([]float64, len(s))
	for i, p := range s {
		values[i] = p.ActualQty.InexactFloat64()
	}
	return values
}

// LastPeriod returns the most recent period, or the zero time for an empty series.
func (s HistorySeries) LastPeriod() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Period
}

// Head returns the first n points.
func (s HistorySeries) Head(n int) HistorySeries {
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// HasGaps reports whether any month is missing between the first and last period.
func (s HistorySeries) HasGaps() bool {
	for i := 1; i < len(s); i++ {
		if !AddMonths(s[i-1].Period, 1).Equal(s[i].Period) {
			return true
		}
	}
	return false
}

// MonthStart truncates t to the first day of its month (UTC).
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves a month-start period forward by n months.
func AddMonths(period time.Time, n int) time.Time {
	return MonthStart(period).AddDate(0, n, 0)
}

// FuturePeriods returns the horizon months following last.
func FuturePeriods(last time.Time, horizon int) []time.Time {
	periods := make([]time.Time, horizon)
	for i := range periods {
		periods[i] = AddMonths(last, i+1)
	}
	return periods
}
