package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Config labels every collector with the service identity.
type Config struct {
	ServiceName string
	Environment string
}

func (c Config) constLabels() prometheus.Labels {
	serviceName := strings.TrimSpace(c.ServiceName)
	if serviceName == "" {
		serviceName = "digiurban-billing"
	}
	environment := strings.TrimSpace(c.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

// BillingMetrics exposes invoice-level instruments.
type BillingMetrics struct {
	invoiceActions   *prometheus.CounterVec
	invoicesCreated  prometheus.Counter
	exports          *prometheus.CounterVec
	remindersSkipped prometheus.Counter
	rateLimitDenied  *prometheus.CounterVec
}

// New registers the billing collectors on the default registerer.
func New(cfg Config) *BillingMetrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer, cfg)
}

func NewWithRegisterer(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := cfg.constLabels()

	m := &BillingMetrics{
		invoiceActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "digiurban_invoice_actions_total",
			Help:        "Invoice actions by action and result.",
			ConstLabels: labels,
		}, []string{"action", "result"}),
		invoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "digiurban_invoices_created_total",
			Help:        "Invoices issued, manually or by the period generator.",
			ConstLabels: labels,
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "digiurban_invoice_exports_total",
			Help:        "Invoice list exports by format.",
			ConstLabels: labels,
		}, []string{"format"}),
		remindersSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "digiurban_invoice_reminders_throttled_total",
			Help:        "Payment reminders skipped because of the cooldown window.",
			ConstLabels: labels,
		}),
		rateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "digiurban_rate_limit_denied_total",
			Help:        "Requests rejected by the mutation rate limiter.",
			ConstLabels: labels,
		}, []string{"route"}),
	}

	registerer.MustRegister(
		m.invoiceActions,
		m.invoicesCreated,
		m.exports,
		m.remindersSkipped,
		m.rateLimitDenied,
	)
	return m
}

func (m *BillingMetrics) RecordAction(action string, count int, err error) {
	if m == nil || count <= 0 {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.invoiceActions.WithLabelValues(action, result).Add(float64(count))
}

func (m *BillingMetrics) RecordInvoiceCreated() {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc()
}

func (m *BillingMetrics) RecordExport(format string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(strings.ToLower(strings.TrimSpace(format))).Inc()
}

func (m *BillingMetrics) RecordReminderThrottled() {
	if m == nil {
		return
	}
	m.remindersSkipped.Inc()
}

func (m *BillingMetrics) RecordRateLimitDenied(route string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.WithLabelValues(route).Inc()
}

// HTTPMetrics instruments inbound requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	httpMetricsOnce sync.Once
	httpMetrics     *HTTPMetrics
)

// NewHTTPMetrics returns the process-wide HTTP collectors.
func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpMetrics = newHTTPMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return httpMetrics
}

func newHTTPMetrics(registerer prometheus.Registerer, cfg Config) *HTTPMetrics {
	labels := cfg.constLabels()
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "digiurban_http_requests_total",
			Help:        "HTTP requests by route and status code.",
			ConstLabels: labels,
		}, []string{"method", "route", "status_code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "digiurban_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"method", "route"}),
	}
	registerer.MustRegister(m.requests, m.duration)
	return m
}

// GinMiddleware records request counts and latency per matched route.
func (m *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
