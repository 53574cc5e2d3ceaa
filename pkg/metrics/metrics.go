package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderflow"

type Saga struct {
	Outcomes      *prometheus.CounterVec
	Compensations *prometheus.CounterVec
	ClosedOrders  *prometheus.CounterVec
	StalledSagas  prometheus.Counter
}

func NewSaga(reg prometheus.Registerer) *Saga {
	m := &Saga{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saga_outcomes_total",
			Help:      "Outcome events handled, by leg and result.",
		}, []string{"leg", "result"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saga_compensations_total",
			Help:      "Compensating commands emitted.",
		}, []string{"command"}),
		ClosedOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saga_orders_closed_total",
			Help:      "Orders moved to a closed status.",
		}, []string{"status"}),
		StalledSagas: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saga_stalled_total",
			Help:      "Payment outcomes whose order never became visible.",
		}),
	}
	reg.MustRegister(m.Outcomes, m.Compensations, m.ClosedOrders, m.StalledSagas)
	return m
}

func (m *Saga) Outcome(leg string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.Outcomes.WithLabelValues(leg, result).Inc()
}

func (m *Saga) Compensation(routingKey string) {
	m.Compensations.WithLabelValues(routingKey).Inc()
}

func (m *Saga) Closed(status string) {
	m.ClosedOrders.WithLabelValues(status).Inc()
}

func (m *Saga) Stalled() {
	m.StalledSagas.Inc()
}

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Observe records one request under a route pattern, not the raw path.
func (m *ServerMetrics) Observe(handler string, status int, elapsed time.Duration) {
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(float64(elapsed.Milliseconds()))
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
