package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_checkouts_total",
			Help: "Checkout submissions by category and outcome",
		},
		[]string{"category", "outcome"},
	)

	CartMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_cart_mutations_total",
			Help: "Cart mutations by operation",
		},
		[]string{"op"},
	)

	RegistrationsGrantedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_registrations_granted_total",
			Help: "Registrations written by access type",
		},
		[]string{"access_type"},
	)

	PreviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_previews_total",
			Help: "Preview sessions by state reached",
		},
		[]string{"state"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_stripe_webhook_events_total",
			Help: "Stripe webhook events by type and result",
		},
		[]string{"type", "result"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordWebhook(eventType, result string) {
	WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

func RecordPreview(state string) {
	PreviewsTotal.WithLabelValues(state).Inc()
}

// Recorder adapts the package counters to the small recorder interfaces the
// domain services accept.
type Recorder struct{}

func (Recorder) RecordCartMutation(op string) {
	CartMutationsTotal.WithLabelValues(op).Inc()
}

func (Recorder) RecordCheckout(category, outcome string) {
	CheckoutsTotal.WithLabelValues(category, outcome).Inc()
}

func (Recorder) RecordGrant(accessType string) {
	RegistrationsGrantedTotal.WithLabelValues(accessType).Inc()
}

func (Recorder) RecordWebhook(eventType, result string) {
	RecordWebhook(eventType, result)
}

func (Recorder) RecordPreview(state string) {
	RecordPreview(state)
}

// Middleware records count and latency per route template, so path
// parameters do not explode label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
