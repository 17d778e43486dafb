// Package metrics exposes the process-wide Prometheus registry: webhook
// receipt counts, per-node traversal outcomes, message send counts, and
// outbound API Request outcomes, plus a traversal-duration histogram.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every counter/histogram exported by the hub.
type Registry struct {
	registry *prometheus.Registry

	webhooksReceived  *prometheus.CounterVec
	traversalBranches *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	apiRequests       *prometheus.CounterVec
	traversalDuration *prometheus.HistogramVec
}

// New builds a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		webhooksReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tbh",
				Name:      "webhook_received_total",
				Help:      "Total webhook updates received, by bot.",
			},
			[]string{"bot_id"},
		),
		traversalBranches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tbh",
				Name:      "traversal_branch_total",
				Help:      "Total connection-walker branches handled, by bot, node kind, and outcome.",
			},
			[]string{"bot_id", "kind", "result"},
		),
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tbh",
				Name:      "messages_sent_total",
				Help:      "Total messages sent to Telegram, by bot.",
			},
			[]string{"bot_id"},
		),
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tbh",
				Name:      "api_request_total",
				Help:      "Total outbound API Request node calls, by bot and outcome.",
			},
			[]string{"bot_id", "outcome"},
		),
		traversalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tbh",
				Name:      "traversal_duration_seconds",
				Help:      "Time to walk one starting set of connections to exhaustion.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"bot_id"},
		),
	}

	reg.MustRegister(
		r.webhooksReceived,
		r.traversalBranches,
		r.messagesSent,
		r.apiRequests,
		r.traversalDuration,
	)

	return r
}

// Handler returns the HTTP handler serving the text-format exposition.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WebhookReceived records one inbound webhook update for botID.
func (r *Registry) WebhookReceived(botID int64) {
	r.webhooksReceived.WithLabelValues(botIDLabel(botID)).Inc()
}

// TraversalBranch records one handled connection of the given node kind
// and outcome ("ok" or "error").
func (r *Registry) TraversalBranch(botID int64, kind, result string) {
	r.traversalBranches.WithLabelValues(botIDLabel(botID), kind, result).Inc()
}

// MessageSent records one message delivered to Telegram for botID.
func (r *Registry) MessageSent(botID int64) {
	r.messagesSent.WithLabelValues(botIDLabel(botID)).Inc()
}

// APIRequest records one outbound API Request node call and its outcome
// ("success" or "failure").
func (r *Registry) APIRequest(botID int64, outcome string) {
	r.apiRequests.WithLabelValues(botIDLabel(botID), outcome).Inc()
}

// ObserveTraversal records how long one starting-connections walk took,
// in seconds.
func (r *Registry) ObserveTraversal(botID int64, seconds float64) {
	r.traversalDuration.WithLabelValues(botIDLabel(botID)).Observe(seconds)
}

func botIDLabel(botID int64) string {
	return strconv.FormatInt(botID, 10)
}
