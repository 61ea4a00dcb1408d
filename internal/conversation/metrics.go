package conversation

import "github.com/prometheus/client_golang/prometheus"

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Processed conversation turns by outcome.",
		},
		[]string{"outcome"},
	)

	turnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "conversation",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end latency of one conversation turn.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	toolRoundsPerTurn = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "conversation",
			Name:      "tool_rounds_per_turn",
			Help:      "Tool-calling rounds the model used within a single turn.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
	)
)

func init() {
	prometheus.MustRegister(turnsTotal, turnDuration, toolRoundsPerTurn)
}

// RegisterMetrics registers the package metrics on a custom registry.
// The default registry is already populated at init time.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(turnsTotal, turnDuration, toolRoundsPerTurn)
}
