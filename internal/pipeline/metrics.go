package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamactl",
			Subsystem: "pipeline",
			Name:      "steps_total",
			Help:      "Install steps executed, by step and result",
		},
		[]string{"step", "result"},
	)
	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "llamactl",
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Install step duration in seconds",
			Buckets:   []float64{0.01, 0.1, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"step"},
	)
)

func init() {
	prometheus.MustRegister(stepsTotal, stepDuration)
}

func observeStep(step, result string, d time.Duration) {
	stepsTotal.WithLabelValues(step, result).Inc()
	stepDuration.WithLabelValues(step).Observe(d.Seconds())
}
