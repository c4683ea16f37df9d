package finance

import (
	"fmt"
	"sort"
	"time"

	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/shopspring/decimal"
)

type Granularity string

const (
	Day     Granularity = `day`
	Week    Granularity = `week`
	Month   Granularity = `month`
	Quarter Granularity = `quarter`
	Year    Granularity = `year`
	Custom  Granularity = `custom`
)

var ErrUnknownGranularity = fmt.Errorf("unknown granularity")

func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case Day, Week, Month, Quarter, Year, Custom:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
}

type PeriodTotal struct {
	Period string  `json:"period"`
	Total  float64 `json:"total"`
	Count  int     `json:"count"`
}

// PeriodKey truncates t to the start of its granularity unit and renders
// the bucket label: 2024-01-02, 2024-W05, 2024-01, 2024-Q1, 2024.
func PeriodKey(t time.Time, g Granularity) string {
	switch g {
	case Day:
		return t.Format("2006-01-02")
	case Week:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case Quarter:
		return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case Year:
		return t.Format("2006")
	default:
		return t.Format("2006-01")
	}
}

// GroupByPeriod buckets rows by their accounting date truncated to the
// granularity unit and sums amounts per bucket. Buckets are returned in
// ascending period order. Periods with no rows are not synthesized; the
// series only contains buckets that saw at least one transaction.
func GroupByPeriod(rows []models.Transaction, g Granularity) []PeriodTotal {
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, row := range rows {
		key := PeriodKey(row.Date, g)
		sums[key] = sums[key].Add(row.Amount)
		counts[key]++
	}
	keys := make([]string, 0, len(sums))
	for key := range sums {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]PeriodTotal, 0, len(keys))
	for _, key := range keys {
		out = append(out, PeriodTotal{
			Period: key,
			Total:  sums[key].InexactFloat64(),
			Count:  counts[key],
		})
	}
	return out
}

// PercentChange formats the relative change from previous to current.
// A zero baseline is a policy choice, not math: any growth from zero
// reads +100%, no growth reads 0%.
func PercentChange(current, previous decimal.Decimal) string {
	if previous.IsZero() {
		if current.GreaterThan(decimal.Zero) {
			return "+100%"
		}
		return "0%"
	}
	change := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).InexactFloat64()
	return fmt.Sprintf("%+.1f%%", change)
}

// PreviousPeriod shifts both bounds back by one granularity unit. For
// Custom, both bounds move back by the exact duration of the range.
func PreviousPeriod(start, end time.Time, g Granularity) (time.Time, time.Time) {
	switch g {
	case Day:
		return start.AddDate(0, 0, -1), end.AddDate(0, 0, -1)
	case Week:
		return start.AddDate(0, 0, -7), end.AddDate(0, 0, -7)
	case Month:
		return start.AddDate(0, -1, 0), end.AddDate(0, -1, 0)
	case Quarter:
		return start.AddDate(0, -3, 0), end.AddDate(0, -3, 0)
	case Year:
		return start.AddDate(-1, 0, 0), end.AddDate(-1, 0, 0)
	default:
		d := end.Sub(start)
		return start.Add(-d), end.Add(-d)
	}
}

// SumAmounts folds transaction amounts with decimal precision.
func SumAmounts(rows []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total
}
