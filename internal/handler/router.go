package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/infra/observability"
	"github.com/boddenberg/crm-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

const healthCheckTimeout = 2 * time.Second

// HealthCheck is a named dependency checked by /healthz and /readyz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	authSvc *service.AuthService,
	customerSvc *service.CustomerService,
	leadSvc *service.LeadService,
	guard *AccessGuard,
	checks []HealthCheck,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(checks, logger))
	r.Get("/readyz", readyzHandler(checks))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	authenticated := JWTAuthMiddleware(guard, logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/metrics/auth", authMetricsHandler(metrics))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authRegisterHandler(authSvc, logger))
			r.Post("/login", authLoginHandler(authSvc, logger))
			r.Post("/refresh", authRefreshHandler(authSvc, logger))
			r.Post("/logout", authLogoutHandler(authSvc, logger))
			r.With(authenticated).Get("/profile", authProfileHandler(authSvc))
		})

		r.Route("/customers", func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/", createCustomerHandler(customerSvc, logger))
			r.Get("/", listCustomersHandler(customerSvc, logger))
			r.Get("/{id}", getCustomerHandler(customerSvc, logger))
			r.Put("/{id}", updateCustomerHandler(customerSvc, logger))
			r.Delete("/{id}", deleteCustomerHandler(customerSvc, logger))
		})

		r.Route("/leads", func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/{customerId}", createLeadHandler(leadSvc, logger))
			r.Get("/{customerId}", listLeadsHandler(leadSvc, logger))
			r.Get("/lead/{id}", getLeadHandler(leadSvc, logger))
			r.Put("/lead/{id}", updateLeadHandler(leadSvc, logger))
			r.Delete("/lead/{id}", deleteLeadHandler(leadSvc, logger))
		})
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "crm-api", Status: "healthy", LastChecked: now},
		}

		overall := "healthy"
		for _, check := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			start := time.Now()
			err := check.Ping(ctx)
			cancel()

			status := "healthy"
			if err != nil {
				status = "degraded"
				overall = "degraded"
				logger.Warn("health check failed", zap.String("dependency", check.Name), zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name:        check.Name,
				Status:      status,
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			})
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

// readyzHandler answers 503 until every dependency responds.
func readyzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check.Ping(ctx)
			cancel()
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "dependency": check.Name})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func authMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetAuthSnapshot())
	}
}
