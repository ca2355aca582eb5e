package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	TicksDelivered      *prometheus.CounterVec
	DecodeErrors        prometheus.Counter
	RegistryMisses      prometheus.Counter
	WSReconnects        prometheus.Counter
	WSReconnectsGivenUp prometheus.Counter
	SubscriptionCount   prometheus.Gauge

	OrdersPlaced    *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	OrdersCancelled prometheus.Counter
	APIError        *prometheus.CounterVec
	APILatency      *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_ticks_delivered_total",
			Help: "Total ticks decoded and delivered downstream",
		}, []string{"tick_type"}),

		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_decode_errors_total",
			Help: "Total stream messages that failed to decode",
		}),

		RegistryMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_registry_misses_total",
			Help: "Total stream messages for symbols with no live subscription",
		}),

		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_ws_reconnect_total",
			Help: "Total WebSocket reconnection attempts",
		}),

		WSReconnectsGivenUp: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_ws_reconnect_given_up_total",
			Help: "Total subscriptions dropped after exhausting reconnection attempts",
		}),

		SubscriptionCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_active_subscriptions",
			Help: "Current active market data subscriptions",
		}),

		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Total orders submitted to the venue",
		}, []string{"order_type"}),

		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Total order rejections",
		}, []string{"reason"}),

		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_cancelled_total",
			Help: "Total order cancellations",
		}),

		APIError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_error_total",
			Help: "Total venue API errors",
		}, []string{"endpoint"}),

		APILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_request_latency_ms",
			Help:    "Venue API request latency",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		m.TicksDelivered,
		m.DecodeErrors,
		m.RegistryMisses,
		m.WSReconnects,
		m.WSReconnectsGivenUp,
		m.SubscriptionCount,
		m.OrdersPlaced,
		m.OrdersRejected,
		m.OrdersCancelled,
		m.APIError,
		m.APILatency,
	)

	return m
}

// The following methods expose stream health counters under the interface
// the streaming coordinator records through.

func (m *Metrics) TickDelivered(tickType string) {
	m.TicksDelivered.WithLabelValues(tickType).Inc()
}

func (m *Metrics) DecodeError() {
	m.DecodeErrors.Inc()
}

func (m *Metrics) RegistryMiss() {
	m.RegistryMisses.Inc()
}

func (m *Metrics) Reconnect() {
	m.WSReconnects.Inc()
}

func (m *Metrics) ReconnectExhausted() {
	m.WSReconnectsGivenUp.Inc()
}

func (m *Metrics) ActiveSubscriptions(n int) {
	m.SubscriptionCount.Set(float64(n))
}

// Order flow counters, recorded by the brokerage adapter.

func (m *Metrics) OrderPlaced(orderType string) {
	m.OrdersPlaced.WithLabelValues(orderType).Inc()
}

func (m *Metrics) OrderRejected(reason string) {
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderCancelled() {
	m.OrdersCancelled.Inc()
}

// Venue API counters, recorded by the REST client per endpoint category.

func (m *Metrics) APIRequest(category string, elapsed time.Duration) {
	m.APILatency.WithLabelValues(category).Observe(float64(elapsed) / float64(time.Millisecond))
}

func (m *Metrics) APIFailure(category string) {
	m.APIError.WithLabelValues(category).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
