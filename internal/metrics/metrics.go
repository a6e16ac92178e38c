// Package metrics holds the Prometheus collectors of the concierge service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "concierge"

var (
	// WebhookRequests counts inbound webhook calls by outcome: accepted, no_tenant, invalid, rejected, error.
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_requests_total",
		Help:      "Inbound provider webhook calls by outcome",
	}, []string{"outcome"})

	// TenantResolutions counts which resolver tier matched: inbound_number, phone_routing, oldest_tenant, none.
	TenantResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenant_resolutions_total",
		Help:      "Tenant resolutions by matching tier",
	}, []string{"tier"})

	ReplyGenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reply_generation_duration_seconds",
		Help:      "Time spent generating automated replies",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"result"})

	ReplyFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reply_fallbacks_total",
		Help:      "Automated replies that used a canned message",
	}, []string{"reason"})

	OutboundSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbound_sends_total",
		Help:      "Outbound provider sends by origin and result",
	}, []string{"origin", "result"})

	ReplyQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reply_queue_depth",
		Help:      "Reply jobs waiting for a worker",
	})

	ReplyJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reply_jobs_total",
		Help:      "Reply jobs by final status",
	}, []string{"status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and method",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
