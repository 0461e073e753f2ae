package metrics

import (
	client_prometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tonkeeper/analytics/internal"
)

var (
	EventsTracked = promauto.NewCounter(client_prometheus.CounterOpts{
		Name: "analytics_events_tracked_total",
		Help: "Events passed to Track or Identify",
	})

	EventsDelivered = promauto.NewCounter(client_prometheus.CounterOpts{
		Name: "analytics_events_delivered_total",
		Help: "Events acknowledged by the delivery channel",
	})

	EventsRequeued = promauto.NewCounter(client_prometheus.CounterOpts{
		Name: "analytics_events_requeued_total",
		Help: "Events put back at the head of the buffer after a failed delivery",
	})

	EventsDropped = promauto.NewCounter(client_prometheus.CounterOpts{
		Name: "analytics_events_dropped_total",
		Help: "Events discarded because the buffer was at capacity",
	})

	DeliveryAttempts = promauto.NewCounterVec(client_prometheus.CounterOpts{
		Name: "analytics_delivery_attempts_total",
		Help: "Batch delivery attempts by result",
	}, []string{"result"})

	BufferLength = promauto.NewGauge(client_prometheus.GaugeOpts{
		Name: "analytics_buffer_length",
		Help: "Events waiting in the buffer after the last buffer operation",
	})

	FlushDuration = promauto.NewHistogram(client_prometheus.HistogramOpts{
		Name:    "analytics_flush_duration_seconds",
		Help:    "Time spent delivering one batch",
		Buckets: client_prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	VersionMetric = promauto.NewGaugeVec(client_prometheus.GaugeOpts{
		Name: "analytics_sdk_version_info",
		Help: "Version information of the analytics SDK",
	}, []string{"version"})
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

func init() {
	VersionMetric.WithLabelValues(internal.SDKVersionRevision).Set(1)
}
