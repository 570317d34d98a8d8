package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bikeshare"

var (
	RidesUnlocked = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_unlocked_total", Help: "Rides started"})
	RidesLocked   = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rides_locked_total", Help: "Rides ended, by parking status"},
		[]string{"parking_status"},
	)
	LockRejections = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "lock_rejections_total", Help: "Lock attempts rejected in no-park zones"})
	UnlockFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "unlock_failures_total", Help: "Failed unlock attempts, by reason"},
		[]string{"reason"},
	)
	TelemetrySamples = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "telemetry_samples_total", Help: "Telemetry samples applied"})
	FareCents        = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fare_cents",
		Help:      "Distribution of computed fares",
		Buckets:   prometheus.ExponentialBuckets(50, 2, 10),
	})
	DynamicMultiplier = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "dynamic_multiplier", Help: "Last computed dynamic pricing multiplier"})

	PaymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "payment_transitions_total", Help: "Payment state transitions"},
		[]string{"status"},
	)
	IdempotentReplays = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "idempotent_replays_total", Help: "Responses served from idempotency storage"},
		[]string{"endpoint"},
	)

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notifications_delivered_total", Help: "Notifications delivered, by sink"},
		[]string{"sink"},
	)
	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notifications_failed_total", Help: "Notifications abandoned after retries, by sink"},
		[]string{"sink"},
	)
	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "notifications_dropped_total", Help: "Notifications dropped because the queue was full"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
