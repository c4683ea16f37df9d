package finance

import (
	"time"
)

const minForecastPoints = 3

type ForecastPoint struct {
	Period     string  `json:"period"`
	Value      float64 `json:"value"`
	Confidence string  `json:"confidence"`
}

type ForecastResult struct {
	Points     []ForecastPoint `json:"points"`
	Trend      string          `json:"trend"`
	Confidence string          `json:"confidence"`
	Message    string          `json:"message,omitempty"`
}

// Forecast fits an ordinary least squares line over the historical monthly
// series and projects it months buckets forward. History shorter than
// three points yields a low-confidence result with no regression.
// Predicted values are clamped at zero; revenue cannot go negative.
// The first three projected points are labeled high confidence, the
// remainder medium. These labels are product policy, kept as shipped.
func Forecast(history []PeriodTotal, months int) ForecastResult {
	if len(history) < minForecastPoints {
		return ForecastResult{
			Points:     []ForecastPoint{},
			Trend:      "stable",
			Confidence: "low",
			Message:    "insufficient data: at least 3 months of history required",
		}
	}
	slope, intercept := fitLine(history)
	trend := "stable"
	switch {
	case slope > 0:
		trend = "increasing"
	case slope < 0:
		trend = "decreasing"
	}
	points := make([]ForecastPoint, 0, months)
	last := history[len(history)-1].Period
	for i := 0; i < months; i++ {
		value := slope*float64(len(history)+i) + intercept
		if value < 0 {
			value = 0
		}
		confidence := "medium"
		if i < 3 {
			confidence = "high"
		}
		points = append(points, ForecastPoint{
			Period:     nextMonth(last, i+1),
			Value:      value,
			Confidence: confidence,
		})
	}
	return ForecastResult{Points: points, Trend: trend, Confidence: "high"}
}

func fitLine(history []PeriodTotal) (slope, intercept float64) {
	n := float64(len(history))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range history {
		x := float64(i)
		sumX += x
		sumY += p.Total
		sumXY += x * p.Total
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// nextMonth advances a YYYY-MM period label by k months. Unparseable
// labels fall back to empty so a bad key never aborts the forecast.
func nextMonth(period string, k int) string {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return ""
	}
	return t.AddDate(0, k, 0).Format("2006-01")
}
