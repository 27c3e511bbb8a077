// Package metrics holds the Prometheus collectors exported by the WhatsApp
// bridge.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	WAIncomingMessages *prometheus.CounterVec
	WAOutgoingMessages *prometheus.CounterVec
	WAReceipts         *prometheus.CounterVec
	RoutingDecisions   *prometheus.CounterVec
	GeminiRequests     *prometheus.CounterVec
	GeminiLatency      *prometheus.HistogramVec
	HTTPRequests       *prometheus.CounterVec
	Errors             *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds the collectors once and registers them with the default
// registerer. Later calls return the same instance whatever the namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WAIncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_incoming_messages_total",
				Help:      "Total incoming WhatsApp messages logged.",
			}, []string{"type"}),
			WAOutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_outgoing_messages_total",
				Help:      "Total outgoing WhatsApp messages by delivery outcome.",
			}, []string{"status"}),
			WAReceipts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_receipts_total",
				Help:      "Delivery and read receipts received, by whether they advanced a message.",
			}, []string{"status", "applied"}),
			RoutingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_decisions_total",
				Help:      "Inbound messages routed, by team and classifier.",
			}, []string{"team", "source"}),
			GeminiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gemini_requests_total",
				Help:      "Total Gemini API requests by outcome.",
			}, []string{"status"}),
			GeminiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gemini_request_duration_seconds",
				Help:      "Latency distribution for Gemini API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Bridge HTTP requests by route and status code.",
			}, []string{"route", "code"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WAIncomingMessages,
			metricsInstance.WAOutgoingMessages,
			metricsInstance.WAReceipts,
			metricsInstance.RoutingDecisions,
			metricsInstance.GeminiRequests,
			metricsInstance.GeminiLatency,
			metricsInstance.HTTPRequests,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
