package app

import (
	client_prometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SinkHealthMetric = promauto.NewGauge(client_prometheus.GaugeOpts{
		Name: "analytics_sink_health_status",
		Help: "Health status of the delivery sink (1 = healthy, 0 = unhealthy)",
	})

	SinkInfoMetric = promauto.NewGaugeVec(client_prometheus.GaugeOpts{
		Name: "analytics_sink_info",
		Help: "Delivery sink used by the process",
	}, []string{"sink"})
)

// SetSinkInfo records which sink the process delivers to.
func SetSinkInfo(sink string) {
	SinkInfoMetric.Reset()
	SinkInfoMetric.WithLabelValues(sink).Set(1)
}
