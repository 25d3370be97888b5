package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentsMetrics records order lifecycle activity: deposits received,
// settlements, refunds, and claims, plus the latency of settlement runs.
type PaymentsMetrics struct {
	ordersCreated  *prometheus.CounterVec
	ordersSettled  *prometheus.CounterVec
	ordersRefunded *prometheus.CounterVec
	claims         *prometheus.CounterVec
	transfers      *prometheus.CounterVec
	settleLatency  *prometheus.HistogramVec
}

type httpMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	throttle *prometheus.CounterVec
}

var (
	paymentsMetricsOnce sync.Once
	paymentsRegistry    *PaymentsMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

// Payments returns the lazily-initialised payments metrics registry.
func Payments() *PaymentsMetrics {
	paymentsMetricsOnce.Do(func() {
		paymentsRegistry = &PaymentsMetrics{
			ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storepay",
				Subsystem: "payments",
				Name:      "orders_created_total",
				Help:      "Pending orders created from incoming deposits, segmented by token.",
			}, []string{"token"}),
			ordersSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storepay",
				Subsystem: "payments",
				Name:      "orders_settled_total",
				Help:      "Orders settled with a fee and recipient distribution, segmented by token.",
			}, []string{"token"}),
			ordersRefunded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storepay",
				Subsystem: "payments",
				Name:      "orders_refunded_total",
				Help:      "Orders converted to refund balances, segmented by token and reason.",
			}, []string{"token", "reason"}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storepay",
				Subsystem: "payments",
				Name:      "claims_total",
				Help:      "Refund claims processed, segmented by outcome.",
			}, []string{"outcome"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storepay",
				Subsystem: "payments",
				Name:      "transfers_total",
				Help:      "Internal value transfers executed during settlement, segmented by kind.",
			}, []string{"kind"}),
			settleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "storepay",
				Subsystem: "payments",
				Name:      "settlement_duration_seconds",
				Help:      "Latency distribution for order settlement runs.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			paymentsRegistry.ordersCreated,
			paymentsRegistry.ordersSettled,
			paymentsRegistry.ordersRefunded,
			paymentsRegistry.claims,
			paymentsRegistry.transfers,
			paymentsRegistry.settleLatency,
		)
	})
	return paymentsRegistry
}

// RecordOrderCreated counts a new pending order for the given token identifier.
func (m *PaymentsMetrics) RecordOrderCreated(token string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(nonEmpty(token)).Inc()
}

// RecordSettlement counts a settled order and observes how long the run took.
func (m *PaymentsMetrics) RecordSettlement(token string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersSettled.WithLabelValues(nonEmpty(token)).Inc()
	m.settleLatency.WithLabelValues("settled").Observe(duration.Seconds())
}

// RecordRefund counts an order that ended as a refund balance. Reasons should
// be stable strings such as "rejected" or "unsupported_token" so dashboards
// stay consistent.
func (m *PaymentsMetrics) RecordRefund(token, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.ordersRefunded.WithLabelValues(nonEmpty(token), reason).Inc()
	m.settleLatency.WithLabelValues("refunded").Observe(duration.Seconds())
}

// RecordClaim counts a claim request. Outcome is "paid" when balances were
// drained and "empty" when there was nothing to pay out.
func (m *PaymentsMetrics) RecordClaim(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(nonEmpty(outcome)).Inc()
}

// RecordTransfer counts an internal transfer by kind ("fee", "payout",
// "remainder", "refund").
func (m *PaymentsMetrics) RecordTransfer(kind string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(nonEmpty(kind)).Inc()
}

// HTTP returns the lazily-initialised HTTP metrics registry used by the API
// server middleware.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storepay",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP API requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storepay",
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total HTTP API errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "storepay",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttle: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storepay",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.errors,
			httpRegistry.latency,
			httpRegistry.throttle,
		)
	})
	return httpRegistry
}

// Observe records the outcome of an API request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = nonEmpty(route)
	method = nonEmpty(method)
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route.
func (m *httpMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	m.throttle.WithLabelValues(nonEmpty(route)).Inc()
}

func nonEmpty(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}
