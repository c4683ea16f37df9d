package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mediahaus/studiocrm/pkg/finance"
	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/mediahaus/studiocrm/pkg/pgstore"
	"github.com/shopspring/decimal"
)

type ReportRange struct {
	From        time.Time
	To          time.Time
	Granularity finance.Granularity
}

var ErrUnknownPeriod = fmt.Errorf("unknown period keyword")

// ResolvePeriod maps a period keyword to a concrete half-open range
// ending now, plus the granularity used for previous-period comparison.
func ResolvePeriod(keyword string, now time.Time) (ReportRange, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch keyword {
	case "today":
		return ReportRange{From: midnight, To: now, Granularity: finance.Day}, nil
	case "week":
		weekday := (int(now.Weekday()) + 6) % 7 // Monday start
		return ReportRange{From: midnight.AddDate(0, 0, -weekday), To: now, Granularity: finance.Week}, nil
	case "month":
		return ReportRange{
			From:        time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()),
			To:          now,
			Granularity: finance.Month,
		}, nil
	case "quarter":
		qMonth := time.Month((int(now.Month())-1)/3*3 + 1)
		return ReportRange{
			From:        time.Date(now.Year(), qMonth, 1, 0, 0, 0, 0, now.Location()),
			To:          now,
			Granularity: finance.Quarter,
		}, nil
	case "year":
		return ReportRange{
			From:        time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()),
			To:          now,
			Granularity: finance.Year,
		}, nil
	case "last7days":
		return ReportRange{From: now.AddDate(0, 0, -7), To: now, Granularity: finance.Custom}, nil
	}
	return ReportRange{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, keyword)
}

type TrendReport struct {
	Series []finance.PeriodTotal `json:"series"`
	Total  float64               `json:"total"`
	Change string                `json:"change"`
}

func (s *CRMService) RevenueTrend(ctx context.Context, rng ReportRange) (TrendReport, error) {
	return s.trend(ctx, rng, models.KindIncome)
}

func (s *CRMService) ExpenseTrend(ctx context.Context, rng ReportRange) (TrendReport, error) {
	return s.trend(ctx, rng, models.KindExpense)
}

func (s *CRMService) trend(ctx context.Context, rng ReportRange, kind models.TransactionKind) (TrendReport, error) {
	rows, err := s.realized(ctx, rng.From, rng.To, kind)
	if err != nil {
		return TrendReport{}, err
	}
	prevFrom, prevTo := finance.PreviousPeriod(rng.From, rng.To, rng.Granularity)
	prevRows, err := s.realized(ctx, prevFrom, prevTo, kind)
	if err != nil {
		return TrendReport{}, err
	}
	current := finance.SumAmounts(rows)
	return TrendReport{
		Series: finance.GroupByPeriod(rows, rng.Granularity),
		Total:  current.InexactFloat64(),
		Change: finance.PercentChange(current, finance.SumAmounts(prevRows)),
	}, nil
}

func (s *CRMService) realized(ctx context.Context, from, to time.Time, kind models.TransactionKind) ([]models.Transaction, error) {
	rows, err := s.store.TransactionsInRange(ctx, pgstore.TransactionFilter{
		From:         from,
		To:           to,
		Kind:         kind,
		RealizedOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("err getting %s rows from store: %w", kind, err)
	}
	return rows, nil
}

func (s *CRMService) CategoryBreakdown(ctx context.Context, rng ReportRange, kind models.TransactionKind) ([]finance.GroupTotal, error) {
	rows, err := s.realized(ctx, rng.From, rng.To, kind)
	if err != nil {
		return nil, err
	}
	return finance.GroupByCategory(rows), nil
}

func (s *CRMService) ProjectRollups(ctx context.Context, rng ReportRange) ([]finance.ProjectRollup, error) {
	rows, err := s.store.TransactionsInRange(ctx, pgstore.TransactionFilter{
		From:         rng.From,
		To:           rng.To,
		RealizedOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("err getting transactions from store: %w", err)
	}
	projects, err := s.store.GetProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("err getting projects from store: %w", err)
	}
	return finance.RollupProjects(rows, projects), nil
}

func (s *CRMService) ClientRollups(ctx context.Context, rng ReportRange) ([]finance.ClientRollup, error) {
	rows, err := s.realized(ctx, rng.From, rng.To, models.KindIncome)
	if err != nil {
		return nil, err
	}
	clients, err := s.store.GetClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("err getting clients from store: %w", err)
	}
	return finance.RollupClients(rows, clients), nil
}

func (s *CRMService) ProfitabilitySummary(ctx context.Context, rng ReportRange) (finance.Profitability, error) {
	income, err := s.realized(ctx, rng.From, rng.To, models.KindIncome)
	if err != nil {
		return finance.Profitability{}, err
	}
	expenses, err := s.realized(ctx, rng.From, rng.To, models.KindExpense)
	if err != nil {
		return finance.Profitability{}, err
	}
	return finance.Profit(finance.SumAmounts(income), finance.SumAmounts(expenses)), nil
}

// RevenueForecast projects revenue from the trailing 12 months of
// realized income.
func (s *CRMService) RevenueForecast(ctx context.Context, months int, now time.Time) (finance.ForecastResult, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	rows, err := s.realized(ctx, monthStart.AddDate(0, -11, 0), monthStart.AddDate(0, 1, 0), models.KindIncome)
	if err != nil {
		return finance.ForecastResult{}, err
	}
	return finance.Forecast(finance.GroupByPeriod(rows, finance.Month), months), nil
}

func (s *CRMService) ReceivablesAging(ctx context.Context, now time.Time) ([]finance.AgingBucket, error) {
	invoices, err := s.store.OutstandingInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("err getting outstanding invoices from store: %w", err)
	}
	return finance.AgingBuckets(invoices, now), nil
}

type DashboardSummary struct {
	finance.Profitability
	RevenueChange      string  `json:"revenueChange"`
	ExpenseChange      string  `json:"expenseChange"`
	OutstandingAmount  float64 `json:"outstandingAmount"`
	OutstandingCount   int     `json:"outstandingCount"`
	UpcomingEventCount int     `json:"upcomingEventCount"`
}

func (s *CRMService) Dashboard(ctx context.Context, rng ReportRange, now time.Time) (DashboardSummary, error) {
	profit, err := s.ProfitabilitySummary(ctx, rng)
	if err != nil {
		return DashboardSummary{}, err
	}
	revenue, err := s.RevenueTrend(ctx, rng)
	if err != nil {
		return DashboardSummary{}, err
	}
	expenses, err := s.ExpenseTrend(ctx, rng)
	if err != nil {
		return DashboardSummary{}, err
	}
	invoices, err := s.store.OutstandingInvoices(ctx)
	if err != nil {
		return DashboardSummary{}, fmt.Errorf("err getting outstanding invoices from store: %w", err)
	}
	outstanding := decimal.Zero
	for _, inv := range invoices {
		outstanding = outstanding.Add(inv.Amount)
	}
	events, err := s.store.GetEvents(ctx)
	if err != nil {
		return DashboardSummary{}, fmt.Errorf("err getting events from store: %w", err)
	}
	upcoming := 0
	for _, e := range events {
		if e.StartTime.After(now) {
			upcoming++
		}
	}
	return DashboardSummary{
		Profitability:      profit,
		RevenueChange:      revenue.Change,
		ExpenseChange:      expenses.Change,
		OutstandingAmount:  outstanding.InexactFloat64(),
		OutstandingCount:   len(invoices),
		UpcomingEventCount: upcoming,
	}, nil
}
