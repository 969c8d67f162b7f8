// Package metrics holds the Prometheus collectors of the service.
// All collectors are registered in the default Prometheus registry and
// exposed via the /metrics endpoint.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpRequestsTotal counts all HTTP requests by method, route, and status.
	//
	// Labels: method (GET, POST, etc.), route (/api/v1/tweets/{id}), status (200, 404, 500)
	// Type: Counter
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// httpRequestDuration measures request processing time.
	//
	// Labels: method, route
	// Type: Histogram
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// httpRequestSize tracks request body sizes.
	//
	// Buckets: Exponential from 100 bytes to 1 GB
	httpRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "route"},
	)

	// httpResponseSize tracks response body sizes.
	httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "route"},
	)

	// activeSessions tracks sessions created by this process that have not
	// been destroyed yet.
	//
	// Type: Gauge
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auth_active_sessions",
			Help: "Number of active user sessions",
		},
	)

	// authAttemptsTotal counts login and gate outcomes.
	//
	// Labels: result (success, invalid_credentials, unauthorized, revoked)
	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// sessionsDestroyedTotal counts session destructions by cause.
	//
	// Labels: reason (logout, expired, revoked, password_change, user_deleted)
	sessionsDestroyedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sessions_destroyed_total",
			Help: "Total number of destroyed sessions",
		},
		[]string{"reason"},
	)

	// lifecycleEventsTotal counts lifecycle events delivered to observers.
	//
	// Labels: entity (user, session, tweet, chat, message), kind (created, deleted, ...)
	lifecycleEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_events_total",
			Help: "Total number of lifecycle events processed",
		},
		[]string{"entity", "kind"},
	)

	// lifecycleEventsDropped counts events dropped because the bus buffer
	// was full.
	lifecycleEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecycle_events_dropped_total",
			Help: "Total number of lifecycle events dropped on a full buffer",
		},
	)

	// storeOpsTotal counts store operations by store, operation, and status.
	//
	// Labels: store (mongo, redis), operation, status (success, error)
	storeOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"store", "operation", "status"},
	)

	// storeOpDuration measures store operation time.
	storeOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		httpRequestSize,
		httpResponseSize,
		activeSessions,
		authAttemptsTotal,
		sessionsDestroyedTotal,
		lifecycleEventsTotal,
		lifecycleEventsDropped,
		storeOpsTotal,
		storeOpDuration,
	)
}

// ObserveHTTP records one served request. requestSize is skipped when not
// positive.
func ObserveHTTP(method, route string, status int, duration time.Duration, requestSize, responseSize int64) {
	httpRequestsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	if requestSize > 0 {
		httpRequestSize.WithLabelValues(method, route).Observe(float64(requestSize))
	}
	httpResponseSize.WithLabelValues(method, route).Observe(float64(responseSize))
}

// IncrementAuthAttempts increments the authentication attempts counter.
//
// Example:
//
//	metrics.IncrementAuthAttempts("invalid_credentials")
func IncrementAuthAttempts(result string) {
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// SessionCreated bumps the active sessions gauge.
func SessionCreated() {
	activeSessions.Inc()
}

// SessionDestroyed lowers the active sessions gauge and counts the cause.
// Call it only for the destroyer that actually removed the record.
func SessionDestroyed(reason string) {
	activeSessions.Dec()
	sessionsDestroyedTotal.WithLabelValues(reason).Inc()
}

// RecordEvent counts a delivered lifecycle event.
func RecordEvent(entity, kind string) {
	lifecycleEventsTotal.WithLabelValues(entity, kind).Inc()
}

// EventDropped counts a lifecycle event lost to a full buffer.
func EventDropped() {
	lifecycleEventsDropped.Inc()
}

// RecordStoreOp records a store operation's outcome and duration.
//
// Example:
//
//	start := time.Now()
//	s, err := r.GetSession(ctx, userID, sessionID)
//	metrics.RecordStoreOp("redis", "get_session", err, time.Since(start))
func RecordStoreOp(store, operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	storeOpsTotal.WithLabelValues(store, operation, status).Inc()
	storeOpDuration.WithLabelValues(store, operation).Observe(duration.Seconds())
}

func statusLabel(status int) string {
	if status == 0 {
		status = 200
	}
	return strconv.Itoa(status)
}
