package finance

import (
	"sort"
	"strconv"

	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/shopspring/decimal"
)

// UnknownKey labels rows without a category, project or client. They get
// their own bucket instead of being dropped.
const UnknownKey = `Unknown`

type GroupTotal struct {
	Key   string  `json:"key"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// GroupByCategory sums and counts rows per category label, descending by
// total. Rows with an empty category land in the Unknown bucket.
func GroupByCategory(rows []models.Transaction) []GroupTotal {
	return groupBy(rows, func(t models.Transaction) string {
		if t.Category == "" {
			return UnknownKey
		}
		return t.Category
	})
}

func groupBy(rows []models.Transaction, key func(models.Transaction) string) []GroupTotal {
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, row := range rows {
		k := key(row)
		sums[k] = sums[k].Add(row.Amount)
		counts[k]++
	}
	out := make([]GroupTotal, 0, len(sums))
	for k := range sums {
		out = append(out, GroupTotal{Key: k, Total: sums[k].InexactFloat64(), Count: counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}

type ProjectRollup struct {
	ProjectID         *int    `json:"projectId"`
	Name              string  `json:"name"`
	Revenue           float64 `json:"revenue"`
	Expenses          float64 `json:"expenses"`
	Profit            float64 `json:"profit"`
	BudgetUsedPercent float64 `json:"budgetUsedPercent"`
	Count             int     `json:"count"`
}

// RollupProjects groups realized transactions per project, joining budgets
// to report budget consumption. Rows without a project roll into an
// Unknown entry with no budget. Ordered descending by revenue.
func RollupProjects(rows []models.Transaction, projects []models.Project) []ProjectRollup {
	type acc struct {
		id       *int
		revenue  decimal.Decimal
		expenses decimal.Decimal
		count    int
	}
	byKey := make(map[string]*acc)
	for i, row := range rows {
		key := UnknownKey
		if row.ProjectID != nil {
			key = strconv.Itoa(*row.ProjectID)
		}
		a, ok := byKey[key]
		if !ok {
			a = &acc{id: rows[i].ProjectID}
			byKey[key] = a
		}
		if row.Kind == models.KindIncome {
			a.revenue = a.revenue.Add(row.Amount)
		} else {
			a.expenses = a.expenses.Add(row.Amount)
		}
		a.count++
	}
	names := make(map[int]string, len(projects))
	budgets := make(map[int]decimal.Decimal, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
		budgets[p.ID] = p.Budget
	}
	out := make([]ProjectRollup, 0, len(byKey))
	for _, a := range byKey {
		r := ProjectRollup{
			ProjectID: a.id,
			Name:      UnknownKey,
			Revenue:   a.revenue.InexactFloat64(),
			Expenses:  a.expenses.InexactFloat64(),
			Profit:    a.revenue.Sub(a.expenses).InexactFloat64(),
			Count:     a.count,
		}
		if a.id != nil {
			if name, ok := names[*a.id]; ok {
				r.Name = name
			}
			if budget, ok := budgets[*a.id]; ok && budget.GreaterThan(decimal.Zero) {
				r.BudgetUsedPercent = a.expenses.Div(budget).Mul(decimal.NewFromInt(100)).InexactFloat64()
			}
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Revenue > out[j].Revenue })
	return out
}

type ClientRollup struct {
	ClientID *int    `json:"clientId"`
	Name     string  `json:"name"`
	Revenue  float64 `json:"revenue"`
	Count    int     `json:"count"`
}

// RollupClients sums income per client, descending by revenue. Rows with
// no client roll into an Unknown entry.
func RollupClients(rows []models.Transaction, clients []models.Client) []ClientRollup {
	type acc struct {
		id      *int
		revenue decimal.Decimal
		count   int
	}
	byKey := make(map[string]*acc)
	for i, row := range rows {
		if row.Kind != models.KindIncome {
			continue
		}
		key := UnknownKey
		if row.ClientID != nil {
			key = strconv.Itoa(*row.ClientID)
		}
		a, ok := byKey[key]
		if !ok {
			a = &acc{id: rows[i].ClientID}
			byKey[key] = a
		}
		a.revenue = a.revenue.Add(row.Amount)
		a.count++
	}
	names := make(map[int]string, len(clients))
	for _, c := range clients {
		names[c.ID] = c.Name
	}
	out := make([]ClientRollup, 0, len(byKey))
	for _, a := range byKey {
		r := ClientRollup{
			ClientID: a.id,
			Name:     UnknownKey,
			Revenue:  a.revenue.InexactFloat64(),
			Count:    a.count,
		}
		if a.id != nil {
			if name, ok := names[*a.id]; ok {
				r.Name = name
			}
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Revenue > out[j].Revenue })
	return out
}

type Profitability struct {
	Revenue       float64 `json:"revenue"`
	Expenses      float64 `json:"expenses"`
	Profit        float64 `json:"profit"`
	MarginPercent float64 `json:"marginPercent"`
	ROIPercent    float64 `json:"roiPercent"`
}

// Profit computes margin and ROI with zero-division guards resolving to 0.
func Profit(revenue, expenses decimal.Decimal) Profitability {
	profit := revenue.Sub(expenses)
	p := Profitability{
		Revenue:  revenue.InexactFloat64(),
		Expenses: expenses.InexactFloat64(),
		Profit:   profit.InexactFloat64(),
	}
	hundred := decimal.NewFromInt(100)
	if !revenue.IsZero() {
		p.MarginPercent = profit.Div(revenue).Mul(hundred).InexactFloat64()
	}
	if !expenses.IsZero() {
		p.ROIPercent = profit.Div(expenses).Mul(hundred).InexactFloat64()
	}
	return p
}
