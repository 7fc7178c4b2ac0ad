// Package metrics exposes Prometheus instrumentation for the automation core.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Sequence processor metrics
	ProcessorRuns          *prometheus.CounterVec
	ProcessorRunDuration   prometheus.Histogram
	SubscriptionsProcessed *prometheus.CounterVec
	SubscriptionsEnrolled  prometheus.Counter
	DispatchDuration       prometheus.Histogram

	// Automation metrics
	TriggerRuleOutcomes *prometheus.CounterVec
	FunnelMoves         *prometheus.CounterVec
}

// New creates a new Metrics instance registered on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		ProcessorRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequence_processor_runs_total",
				Help: "Processor invocations by result (completed, skipped_locked, failed)",
			},
			[]string{"result"},
		),
		ProcessorRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sequence_processor_run_duration_seconds",
			Help:    "Wall-clock duration of a processor run",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SubscriptionsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequence_subscriptions_processed_total",
				Help: "Due subscriptions handled by the processor, by outcome",
			},
			[]string{"outcome"},
		),
		SubscriptionsEnrolled: factory.NewCounter(prometheus.CounterOpts{
			Name: "sequence_enrollments_total",
			Help: "Subscriptions created by enrollment",
		}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whatsapp_dispatch_duration_seconds",
			Help:    "Latency of outbound WhatsApp sends",
			Buckets: prometheus.DefBuckets,
		}),

		TriggerRuleOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_rule_outcomes_total",
				Help: "Trigger rule evaluations by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		FunnelMoves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_card_moves_total",
				Help: "Funnel card moves by kind (reorder, stage_change)",
			},
			[]string{"kind"},
		),
	}
}

// Middleware records request counts and latency using the route template
// rather than the raw path to keep label cardinality bounded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
