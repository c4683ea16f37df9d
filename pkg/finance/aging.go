package finance

import (
	"math"
	"time"

	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/shopspring/decimal"
)

type AgingBucket struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Amount  float64 `json:"amount"`
	Percent float64 `json:"percent"`
}

var agingLabels = []string{`current`, `1-30`, `31-60`, `61-90`, `90+`}

// AgingBuckets classifies outstanding invoices by whole days overdue
// relative to today: current (not yet due), 1-30, 31-60, 61-90, 90+.
// Paid and cancelled invoices are filtered out before bucketing. Every
// remaining invoice lands in exactly one bucket; percents are shares of
// the total outstanding amount.
func AgingBuckets(invoices []models.Invoice, today time.Time) []AgingBucket {
	counts := make([]int, len(agingLabels))
	amounts := make([]decimal.Decimal, len(agingLabels))
	total := decimal.Zero
	for _, inv := range invoices {
		if !inv.Outstanding() {
			continue
		}
		idx := bucketIndex(daysOverdue(inv.DueAt, today))
		counts[idx]++
		amounts[idx] = amounts[idx].Add(inv.Amount)
		total = total.Add(inv.Amount)
	}
	out := make([]AgingBucket, len(agingLabels))
	hundred := decimal.NewFromInt(100)
	for i, label := range agingLabels {
		b := AgingBucket{Label: label, Count: counts[i], Amount: amounts[i].InexactFloat64()}
		if !total.IsZero() {
			b.Percent = amounts[i].Div(total).Mul(hundred).InexactFloat64()
		}
		out[i] = b
	}
	return out
}

func daysOverdue(due, today time.Time) int {
	return int(math.Floor(today.Sub(due).Hours() / 24))
}

func bucketIndex(days int) int {
	switch {
	case days <= 0:
		return 0
	case days <= 30:
		return 1
	case days <= 60:
		return 2
	case days <= 90:
		return 3
	default:
		return 4
	}
}
