package observability

import (
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Auth event labels.
const (
	EventRegister     = "register"
	EventLoginSuccess = "login_success"
	EventLoginFailure = "login_failure"
	EventRefresh      = "refresh"
	EventRefreshReuse = "refresh_reuse"
	EventLogout       = "logout"
)

// Metrics holds all Prometheus metrics for the API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	authEvents      *prometheus.CounterVec
	accessDenied    *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_request_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		authEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_auth_events_total",
				Help: "Authentication lifecycle events.",
			},
			[]string{"event"},
		),
		accessDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_access_denied_total",
				Help: "Requests rejected by the ownership policy.",
			},
			[]string{"rule"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_store_errors_total",
				Help: "Total errors from the persistence backend.",
			},
			[]string{"backend", "operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrAuthEvent increments the counter of an auth lifecycle event.
func (m *Metrics) IncrAuthEvent(event string) {
	m.authEvents.WithLabelValues(event).Inc()
}

// IncrAccessDenied increments the denial counter for a policy rule.
func (m *Metrics) IncrAccessDenied(rule string) {
	m.accessDenied.WithLabelValues(rule).Inc()
}

// IncrStoreError increments the persistence error counter of a backend.
func (m *Metrics) IncrStoreError(backend, operation string) {
	m.storeErrors.WithLabelValues(backend, operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// GetAuthSnapshot returns the auth counters for GET /api/metrics/auth.
func (m *Metrics) GetAuthSnapshot() *domain.AuthMetrics {
	loginOK := getCounterValue(m.authEvents, EventLoginSuccess)
	loginFail := getCounterValue(m.authEvents, EventLoginFailure)
	hits := getCounterValue(m.cacheHits, "owner")
	misses := getCounterValue(m.cacheMisses, "owner")

	denied := float64(0)
	for _, rule := range []string{"manage_customers", "access_customer", "access_lead"} {
		denied += getCounterValue(m.accessDenied, rule)
	}

	loginErrorRate := float64(0)
	if loginOK+loginFail > 0 {
		loginErrorRate = loginFail / (loginOK + loginFail)
	}
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	return &domain.AuthMetrics{
		Registrations:  int64(getCounterValue(m.authEvents, EventRegister)),
		LoginSuccess:   int64(loginOK),
		LoginFailure:   int64(loginFail),
		Refreshes:      int64(getCounterValue(m.authEvents, EventRefresh)),
		RefreshReuse:   int64(getCounterValue(m.authEvents, EventRefreshReuse)),
		Logouts:        int64(getCounterValue(m.authEvents, EventLogout)),
		AccessDenied:   int64(denied),
		LoginErrorRate: loginErrorRate,
		CacheHitRate:   cacheHitRate,
		Period:         "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
