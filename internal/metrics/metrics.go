package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront_auth"

var (
	CodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "two_factor_codes_issued_total",
		Help:      "Login codes issued",
	})

	// Verifications is labelled by outcome: success or the failure reason.
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "two_factor_verifications_total",
		Help:      "Login code verifications by outcome",
	}, []string{"outcome"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "two_factor_rate_limited_total",
		Help:      "Login code requests refused by the rate limiter",
	}, []string{"identifier_type"})

	MailFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_code_mail_failures_total",
		Help:      "Login code emails that could not be delivered",
	})

	CleanupDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "two_factor_cleanup_deleted_total",
		Help:      "Rows removed by the two-factor cleanup",
	}, []string{"table"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2, 5},
	}, []string{"method", "route", "status"})
)

// Middleware records request latency by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
