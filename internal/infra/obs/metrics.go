package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Connections     prometheus.Gauge
	Frames          *prometheus.CounterVec
	FrameDuration   *prometheus.HistogramVec
	Deliveries      *prometheus.CounterVec
	DroppedDelivery prometheus.Counter
	PublishedEvents *prometheus.CounterVec
	ConsumedEvents  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gigsocket",
			Name:      "connections",
			Help:      "Open websocket connections on this process.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gigsocket",
			Name:      "frames_total",
			Help:      "Inbound frames by event and outcome.",
		}, []string{"event", "outcome"}),
		FrameDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gigsocket",
			Name:      "frame_duration_seconds",
			Help:      "Time spent handling one inbound frame.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gigsocket",
			Name:      "deliveries_total",
			Help:      "Messages published to user channels by type and outcome.",
		}, []string{"type", "outcome"}),
		DroppedDelivery: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gigsocket",
			Name:      "dropped_deliveries_total",
			Help:      "Broker messages for users with no connection on this process.",
		}),
		PublishedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gigsocket",
			Name:      "stream_published_total",
			Help:      "Domain events written to Kafka by outcome.",
		}, []string{"outcome"}),
		ConsumedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gigsocket",
			Name:      "stream_consumed_total",
			Help:      "Kafka events consumed by type and outcome.",
		}, []string{"type", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.Frames,
		m.FrameDuration,
		m.Deliveries,
		m.DroppedDelivery,
		m.PublishedEvents,
		m.ConsumedEvents,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
