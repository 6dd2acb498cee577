package download

import "github.com/prometheus/client_golang/prometheus"

var bytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "llamactl",
	Subsystem: "download",
	Name:      "bytes_total",
	Help:      "Bytes received by file downloads",
})

func init() {
	prometheus.MustRegister(bytesTotal)
}
