package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// AuthMetrics is returned by GET /api/metrics/auth.
type AuthMetrics struct {
	Registrations  int64   `json:"registrations"`
	LoginSuccess   int64   `json:"loginSuccess"`
	LoginFailure   int64   `json:"loginFailure"`
	Refreshes      int64   `json:"refreshes"`
	RefreshReuse   int64   `json:"refreshReuse"`
	Logouts        int64   `json:"logouts"`
	AccessDenied   int64   `json:"accessDenied"`
	LoginErrorRate float64 `json:"loginErrorRate"`
	CacheHitRate   float64 `json:"cacheHitRate"`
	Period         string  `json:"period"`
}
