// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmgate_http_requests_total",
			Help: "Total number of HTTP requests received.",
		},
		[]string{"route", "method", "code"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarmgate_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	// PairsServed counts records returned by metered pulls.
	PairsServed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmgate_pairs_served_total",
		Help: "Total number of data pairs returned to API keys.",
	})
	// KeysIssued counts newly created key records.
	KeysIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmgate_keys_issued_total",
		Help: "Total number of API keys issued.",
	})
	// PullsRefused counts pulls rejected by the quota enforcer, by reason.
	PullsRefused = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmgate_pulls_refused_total",
			Help: "Total number of data pulls refused, by reason.",
		},
		[]string{"reason"},
	)
	// AskOutcomes counts medical chat requests by outcome.
	AskOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmgate_ask_outcomes_total",
			Help: "Total number of medical chat requests, by outcome.",
		},
		[]string{"outcome"},
	)
	// WebhookEvents counts payment webhook events by type and action.
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmgate_webhook_events_total",
			Help: "Total number of payment webhook events, by type and action.",
		},
		[]string{"type", "action"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, PairsServed, KeysIssued, PullsRefused, AskOutcomes, WebhookEvents)
}

// Middleware records request counts and latencies per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
