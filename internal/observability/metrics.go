package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sessionConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsess",
			Subsystem: "session",
			Name:      "connects_total",
			Help:      "Connect attempt completions by outcome.",
		},
		[]string{"outcome"},
	)
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsess",
			Subsystem: "session",
			Name:      "messages_sent_total",
			Help:      "Outgoing message completions by outcome.",
		},
		[]string{"outcome"},
	)
	sendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wsess",
			Subsystem: "session",
			Name:      "send_duration_seconds",
			Help:      "Time from dispatch to flush completion in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	messagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wsess",
			Subsystem: "session",
			Name:      "messages_received_total",
			Help:      "Inbound messages delivered to the subscriber.",
		},
	)
	closeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsess",
			Subsystem: "session",
			Name:      "close_events_total",
			Help:      "Session close events by status code.",
		},
		[]string{"code"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsess",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wsess",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionConnects,
			messagesSent,
			sendDuration,
			messagesReceived,
			closeEvents,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordConnect(outcome string) {
	RegisterMetrics()
	sessionConnects.WithLabelValues(outcome).Inc()
}

func RecordSend(outcome string, duration time.Duration) {
	RegisterMetrics()
	messagesSent.WithLabelValues(outcome).Inc()
	sendDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordReceive() {
	RegisterMetrics()
	messagesReceived.Inc()
}

func RecordClose(code int) {
	RegisterMetrics()
	closeEvents.WithLabelValues(strconv.Itoa(code)).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
