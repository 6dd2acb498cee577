package runner

import "github.com/prometheus/client_golang/prometheus"

var processExitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "llamactl",
		Subsystem: "process",
		Name:      "exits_total",
		Help:      "Processes run through the pseudo-terminal runner, by result",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(processExitsTotal)
}

func observeExit(result string) { processExitsTotal.WithLabelValues(result).Inc() }
