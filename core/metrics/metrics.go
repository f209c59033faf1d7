// Package metrics holds the Prometheus collectors shared by the webhook, the bot service
// and the follow-up dispatcher. Collectors register on the default registry at init.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wabot"

var (
	// MessagesReceived counts inbound webhook deliveries.
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Inbound webhook messages accepted",
	})

	// Transitions counts state machine steps by outcome label.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Conversation steps by outcome",
	}, []string{"outcome"})

	// StoreErrors counts failed store operations.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "Conversation store failures by operation",
	}, []string{"op"})

	// FollowUps counts follow-up jobs by how they were scheduled and how they ended.
	FollowUps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "follow_ups_total",
		Help:      "Follow-up jobs by status",
	}, []string{"status"})

	// Sends counts outbound Messages API calls by kind and status.
	Sends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sends_total",
		Help:      "Outbound messages by kind and status",
	}, []string{"kind", "status"})

	// SendDuration tracks outbound call latency.
	SendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "send_duration_seconds",
		Help:      "Outbound Messages API latency in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 9), // 50ms to ~12.8s
	}, []string{"kind"})

	// RequestDuration tracks HTTP handler latency by route pattern.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration by route and status class",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "code"})
)

// ObserveSend records one outbound call.
func ObserveSend(kind string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "fail"
	}
	Sends.WithLabelValues(kind, status).Inc()
	SendDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
