package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PgErrCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studiocrm",
		Subsystem: "pg",
		Name:      "pg_err_count",
	}, []string{"method"})
	PgDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "studiocrm",
		Subsystem: "pg",
		Name:      "pg_duration",
	}, []string{"method"})
	ConflictsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studiocrm",
		Subsystem: "scheduling",
		Name:      "conflicts_detected_total",
	})
)
