package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_http_requests_total",
			Help: "Total debug API requests by method, route, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_http_request_duration_seconds",
			Help:    "Debug API request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	payloadsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_inapp_enqueued_total",
			Help: "In-app payloads accepted into the queue by trigger source",
		},
		[]string{"source"},
	)

	payloadsFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_inapp_filtered_total",
			Help: "In-app payloads refused because a referenced template is not registered",
		},
	)

	payloadsDequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_inapp_dequeued_total",
			Help: "In-app payloads taken off the queue",
		},
	)

	notificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_inapp_dropped_total",
			Help: "In-app notifications dropped without display by reason",
		},
		[]string{"reason"},
	)

	notificationsDeferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_inapp_deferred_total",
			Help: "In-app notifications moved to the pending backlog by reason",
		},
		[]string{"reason"},
	)

	notificationsDisplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_inapp_displayed_total",
			Help: "In-app notifications handed to a surface by in-app type",
		},
		[]string{"inapp_type"},
	)

	notificationsDismissed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_inapp_dismissed_total",
			Help: "Dismissals received, split by whether they matched the displayed notification",
		},
		[]string{"matched"},
	)

	inflationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_inapp_inflation_failures_total",
			Help: "Notifications that failed parsing or media preparation by reason",
		},
		[]string{"reason"},
	)

	gateRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_inapp_gate_rejections_total",
			Help: "Notifications refused by frequency caps",
		},
	)

	backlogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_inapp_backlog_size",
			Help: "Notifications waiting in the pending backlog",
		},
	)

	queueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_inapp_queue_length",
			Help: "Payloads waiting in the in-app queue",
		},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_fetch_total",
			Help: "Media and file fetches by kind and result",
		},
		[]string{"kind", "result"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_fetch_duration_seconds",
			Help:    "Media fetch latency distribution",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_fetch_breaker_state",
			Help: "Circuit breaker state per media host (0 closed, 1 open, 2 half-open)",
		},
		[]string{"host"},
	)

	analyticsEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_analytics_events_total",
			Help: "Analytics events emitted by sink and result",
		},
		[]string{"sink", "result"},
	)

	feedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_feed_messages_total",
			Help: "Server in-app feed messages consumed by result",
		},
		[]string{"result"},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_rate_limit_rejections_total",
			Help: "Debug API requests rejected by the rate limiter",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEnqueued records n payloads accepted from source.
func RecordEnqueued(source string, n int) {
	payloadsEnqueued.WithLabelValues(source).Add(float64(n))
}

// RecordFiltered records n payloads refused by the template filter.
func RecordFiltered(n int) {
	payloadsFiltered.Add(float64(n))
}

func RecordDequeued() {
	payloadsDequeued.Inc()
}

func RecordDropped(reason string) {
	notificationsDropped.WithLabelValues(reason).Inc()
}

func RecordDeferred(reason string) {
	notificationsDeferred.WithLabelValues(reason).Inc()
}

func RecordDisplayed(inAppType string) {
	notificationsDisplayed.WithLabelValues(inAppType).Inc()
}

// RecordDismissed records a dismissal; matched is false for stale callbacks.
func RecordDismissed(matched bool) {
	notificationsDismissed.WithLabelValues(strconv.FormatBool(matched)).Inc()
}

func RecordInflationFailure(reason string) {
	inflationFailures.WithLabelValues(reason).Inc()
}

func RecordGateRejection() {
	gateRejections.Inc()
}

func SetBacklogSize(n int) {
	backlogSize.Set(float64(n))
}

func SetQueueLength(n int) {
	queueLength.Set(float64(n))
}

// RecordFetch records one fetch of kind (bytes, image) with its result
// (ok, cached, error, open).
func RecordFetch(kind, result string, duration time.Duration) {
	fetchesTotal.WithLabelValues(kind, result).Inc()
	if result == "ok" {
		fetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// SetBreakerState publishes a breaker state for host.
func SetBreakerState(host string, state int) {
	breakerState.WithLabelValues(host).Set(float64(state))
}

func RecordAnalyticsEvent(sink, result string) {
	analyticsEvents.WithLabelValues(sink, result).Inc()
}

func RecordFeedMessage(result string) {
	feedMessages.WithLabelValues(result).Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics. Paths
// are labelled by route pattern so URL parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		RecordRequest(r.Method, path, wrapped.status, time.Since(start))
	})
}
