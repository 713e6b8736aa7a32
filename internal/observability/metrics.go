// Package observability wires Prometheus metrics for the HTTP surface and
// the financial core's business events.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	salesTotal     *prometheus.CounterVec
	salesVoided    prometheus.Counter
	debtPayments   *prometheus.CounterVec
	registerClosed prometheus.Counter
	cashDifference prometheus.Gauge
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tiendafix_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tiendafix_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tiendafix_sales_total",
		Help: "Sales created, by payment method.",
	}, []string{"method"})
	voided := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tiendafix_sales_voided_total",
		Help: "Sales voided.",
	})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tiendafix_debt_payments_total",
		Help: "Standalone debt payments recorded, by method.",
	}, []string{"method"})
	closed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tiendafix_register_closes_total",
		Help: "Register close operations.",
	})
	difference := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tiendafix_register_cash_difference",
		Help: "Cash difference of the most recent register close.",
	})
	registry.MustRegister(requests, duration, sales, voided, payments, closed, difference)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		salesTotal:      sales,
		salesVoided:     voided,
		debtPayments:    payments,
		registerClosed:  closed,
		cashDifference:  difference,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for extra metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// SaleCreated counts one created sale.
func (m *Metrics) SaleCreated(method string) {
	if m != nil {
		m.salesTotal.WithLabelValues(method).Inc()
	}
}

// SaleVoided counts one voided sale.
func (m *Metrics) SaleVoided() {
	if m != nil {
		m.salesVoided.Inc()
	}
}

// DebtPaymentRecorded counts one standalone debt payment.
func (m *Metrics) DebtPaymentRecorded(method string) {
	if m != nil {
		m.debtPayments.WithLabelValues(method).Inc()
	}
}

// RegisterClosed records a register close and its cash difference.
func (m *Metrics) RegisterClosed(difference decimal.Decimal) {
	if m == nil {
		return
	}
	m.registerClosed.Inc()
	f, _ := difference.Float64()
	m.cashDifference.Set(f)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
