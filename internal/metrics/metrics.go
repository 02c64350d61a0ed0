// Package metrics holds the Prometheus instrumentation for txguard.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EvaluationsTotal counts evaluations by verdict.
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txguard",
			Name:      "evaluations_total",
			Help:      "Transactions evaluated, by verdict.",
		},
		[]string{"verdict"},
	)

	// SignalsTotal counts fired risk signals by flag.
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txguard",
			Name:      "signals_total",
			Help:      "Risk signals triggered, by flag.",
		},
		[]string{"flag"},
	)

	RiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "txguard",
		Name:      "risk_score",
		Help:      "Distribution of composite risk scores.",
		Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
	})

	EvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "txguard",
		Name:      "evaluation_duration_seconds",
		Help:      "Time spent evaluating a single transaction.",
		Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
	})

	// TrackedUsers is the number of users with in-memory history.
	TrackedUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "txguard",
		Name:      "tracked_users",
		Help:      "Users with transaction history held in memory.",
	})

	// IngestDroppedTotal counts transactions dropped because the pipeline was full.
	IngestDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txguard",
			Name:      "ingest_dropped_total",
			Help:      "Transactions dropped at ingest, by source.",
		},
		[]string{"source"},
	)

	// SinkFailuresTotal counts best-effort sink writes that failed.
	SinkFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txguard",
			Name:      "sink_failures_total",
			Help:      "Failed audit/publish writes, by sink.",
		},
		[]string{"sink"},
	)

	ListRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txguard",
			Name:      "list_refresh_total",
			Help:      "Reputation list refreshes, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		EvaluationsTotal,
		SignalsTotal,
		RiskScore,
		EvaluationDuration,
		TrackedUsers,
		IngestDroppedTotal,
		SinkFailuresTotal,
		ListRefreshTotal,
	)
}

// Handler serves the default registry for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
