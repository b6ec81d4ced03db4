// Package metrics holds the Prometheus collectors the API exports. All
// methods are safe on a nil *Metrics so services can run without them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shopacc"

type Metrics struct {
	otpSent             *prometheus.CounterVec
	otpVerify           *prometheus.CounterVec
	ordersCreated       prometheus.Counter
	webhooks            *prometheus.CounterVec
	fulfillments        *prometheus.CounterVec
	fulfillmentDuration prometheus.Histogram
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	jobRuns             *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		otpSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "otp_sent_total",
			Help: "OTP emails sent, by kind (register, resend).",
		}, []string{"kind"}),
		otpVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "otp_verify_total",
			Help: "OTP verification attempts, by result.",
		}, []string{"result"}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total",
			Help: "Pending orders created.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_webhooks_total",
			Help: "Payment webhooks received, by outcome.",
		}, []string{"outcome"}),
		fulfillments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fulfillments_total",
			Help: "Fulfilment runs, by result and failing step.",
		}, []string{"result", "step"}),
		fulfillmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "fulfillment_duration_seconds",
			Help:    "Time spent delivering one order.",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_runs_total",
			Help: "Background job runs, by job and result.",
		}, []string{"job", "result"}),
	}
	reg.MustRegister(m.otpSent, m.otpVerify, m.ordersCreated, m.webhooks,
		m.fulfillments, m.fulfillmentDuration, m.httpRequests, m.httpDuration, m.jobRuns)
	return m
}

func (m *Metrics) OTPSent(kind string) {
	if m == nil {
		return
	}
	m.otpSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) OTPVerify(result string) {
	if m == nil {
		return
	}
	m.otpVerify.WithLabelValues(result).Inc()
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

// Fulfillment records one delivery run. step is empty on success.
func (m *Metrics) Fulfillment(result, step string, d time.Duration) {
	if m == nil {
		return
	}
	m.fulfillments.WithLabelValues(result, step).Inc()
	m.fulfillmentDuration.Observe(d.Seconds())
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) JobRun(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
