package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request counter
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status", "service"},
	)

	// HTTP request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	// Admission decisions by outcome (admitted, insufficient_capacity, ...)
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_admissions_total",
			Help: "Total number of purchase admission decisions",
		},
		[]string{"outcome", "service"},
	)

	// Notification publishes by transport and status
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_notifications_total",
			Help: "Total number of notification publish attempts",
		},
		[]string{"transport", "status", "service"},
	)
)

// ServiceName labels every metric emitted by this service.
const ServiceName = "purchases"

// PrometheusMiddleware records HTTP metrics per route.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestsTotal.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
			ServiceName,
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
			ServiceName,
		).Observe(duration)
	}
}
