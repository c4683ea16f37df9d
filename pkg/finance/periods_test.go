package finance

import (
	"testing"
	"time"

	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func tx(amount float64, date time.Time) models.Transaction {
	return models.Transaction{
		Kind:   models.KindIncome,
		Amount: decimal.NewFromFloat(amount),
		Date:   date,
		Status: models.StatusPaid,
	}
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("month")
	require.NoError(t, err)
	require.Equal(t, Month, g)

	_, err = ParseGranularity("fortnight")
	require.ErrorIs(t, err, ErrUnknownGranularity)
}

func TestPeriodKey(t *testing.T) {
	d := time.Date(2024, 2, 5, 15, 30, 0, 0, time.UTC)
	require.Equal(t, "2024-02-05", PeriodKey(d, Day))
	require.Equal(t, "2024-W06", PeriodKey(d, Week))
	require.Equal(t, "2024-02", PeriodKey(d, Month))
	require.Equal(t, "2024-Q1", PeriodKey(d, Quarter))
	require.Equal(t, "2024", PeriodKey(d, Year))
}

func TestGroupByPeriodMonthly(t *testing.T) {
	rows := []models.Transaction{
		tx(100, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		tx(200, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)),
		tx(300, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)),
		tx(50, time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC)),
	}
	got := GroupByPeriod(rows, Month)
	require.Equal(t, []PeriodTotal{
		{Period: "2024-01", Total: 150, Count: 2},
		{Period: "2024-02", Total: 200, Count: 1},
		{Period: "2024-03", Total: 300, Count: 1},
	}, got)
}

func TestGroupByPeriodSkipsEmptyBuckets(t *testing.T) {
	rows := []models.Transaction{
		tx(100, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		tx(300, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)),
	}
	got := GroupByPeriod(rows, Month)
	require.Len(t, got, 2)
	require.Equal(t, "2024-01", got[0].Period)
	require.Equal(t, "2024-04", got[1].Period)
}

func TestGroupByPeriodEmpty(t *testing.T) {
	got := GroupByPeriod(nil, Month)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestPercentChange(t *testing.T) {
	tc := []struct {
		current, previous float64
		want              string
	}{
		{150, 100, "+50.0%"},
		{50, 100, "-50.0%"},
		{100, 100, "+0.0%"},
		{100, 0, "+100%"},
		{0, 0, "0%"},
	}
	for _, c := range tc {
		got := PercentChange(decimal.NewFromFloat(c.current), decimal.NewFromFloat(c.previous))
		require.Equal(t, c.want, got)
	}
}

func TestPreviousPeriod(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	prevStart, prevEnd := PreviousPeriod(start, end, Month)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), prevStart)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), prevEnd)

	prevStart, prevEnd = PreviousPeriod(start, end, Custom)
	require.Equal(t, end.Sub(start), prevEnd.Sub(prevStart))
	require.Equal(t, start, prevEnd)

	prevStart, prevEnd = PreviousPeriod(start, end, Year)
	require.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), prevStart)
	require.Equal(t, time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), prevEnd)
}

func TestSumAmounts(t *testing.T) {
	rows := []models.Transaction{
		tx(0.1, time.Now()),
		tx(0.2, time.Now()),
	}
	require.True(t, SumAmounts(rows).Equal(decimal.NewFromFloat(0.3)))
}
