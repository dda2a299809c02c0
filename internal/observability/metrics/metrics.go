// Package metrics exposes pipeline counters on the Prometheus registry.
// The detached accept-path continuation reports its failures here rather
// than to the request that scheduled it.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

var Module = fx.Provide(
	NewRegistry,
	New,
)

func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

type Metrics struct {
	BatchesAccepted    prometheus.Counter
	StageFailures      prometheus.Counter
	EnqueueFailures    prometheus.Counter
	BatchesNormalized  prometheus.Counter
	PointsInserted     prometheus.Counter
	PointsDropped      prometheus.Counter
	MessagesRetried    prometheus.Counter
	MessagesParked     prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPDurationSecond *prometheus.HistogramVec
}

func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BatchesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgepulse_batches_accepted_total",
			Help: "Submissions accepted for processing.",
		}),
		StageFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgepulse_stage_failures_total",
			Help: "Detached blob writes that failed after the 202 response.",
		}),
		EnqueueFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgepulse_enqueue_failures_total",
			Help: "Detached dispatch sends that failed after the 202 response.",
		}),
		BatchesNormalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgepulse_batches_normalized_total",
			Help: "Batches committed by the normalizer.",
		}),
		PointsInserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgepulse_datapoints_inserted_total",
			Help: "Datapoint rows written.",
		}),
		PointsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgepulse_datapoints_dropped_total",
			Help: "Points dropped because their metric name did not resolve.",
		}),
		MessagesRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgepulse_messages_retried_total",
			Help: "Deliveries left pending for the queue's retry policy.",
		}),
		MessagesParked: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgepulse_messages_parked_total",
			Help: "Deliveries moved to the dead-letter stream.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edgepulse_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDurationSecond: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgepulse_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDurationSecond.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
