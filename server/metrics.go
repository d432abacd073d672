package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Daskott/walkwithme/notify"
	"github.com/Daskott/walkwithme/walk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters exposed on /metrics. Each instance owns its
// registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	signalsTotal        *prometheus.CounterVec
	escalationsTotal    *prometheus.CounterVec
	deliveriesTotal     *prometheus.CounterVec
	signalsDropped      prometheus.GaugeFunc
}

func NewMetrics(hub *walk.Hub) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walkwithme_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "walkwithme_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		signalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walkwithme_signals_total",
				Help: "Signals published by the walk controller",
			},
			[]string{"kind"},
		),

		escalationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walkwithme_escalations_total",
				Help: "Emergency escalations by trigger source",
			},
			[]string{"source"},
		),

		deliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walkwithme_deliveries_total",
				Help: "Alert deliveries by channel and final status",
			},
			[]string{"channel", "status"},
		),
	}

	if hub != nil {
		m.signalsDropped = factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "walkwithme_signals_dropped",
				Help: "Signals dropped because a subscriber was not keeping up",
			},
			func() float64 { return float64(hub.Dropped()) },
		)
	}

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSignal counts signal, and the escalation it announces if any.
func (m *Metrics) RecordSignal(signal walk.Signal) {
	m.signalsTotal.WithLabelValues(string(signal.Kind)).Inc()

	if signal.Kind == walk.SignalShowEmergencyScreen && signal.Alert != nil {
		m.escalationsTotal.WithLabelValues(string(signal.Alert.Source)).Inc()
	}
}

// RecordDelivery is registered as a notify.Service result observer.
func (m *Metrics) RecordDelivery(result *notify.Result) {
	m.deliveriesTotal.WithLabelValues(string(result.Channel), result.Status()).Inc()
}

// Watch counts every signal from hub until the returned function is called.
func (m *Metrics) Watch(hub *walk.Hub) func() {
	signals, cancel := hub.Subscribe(256)
	go func() {
		for signal := range signals {
			m.RecordSignal(signal)
		}
	}()
	return cancel
}
