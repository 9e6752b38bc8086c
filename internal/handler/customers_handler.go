package handler

import (
	"net/http"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Customers: /api/customers
// ============================================================

func createCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/customers")
		defer span.End()

		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		var req domain.CreateCustomerRequest
		if err := decode(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		customer, err := svc.Create(ctx, caller, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, customer)
	}
}

func listCustomersHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/customers")
		defer span.End()

		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		page, limit := parsePagination(r)
		list, err := svc.List(ctx, caller, page, limit, r.URL.Query().Get("search"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}

func getCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/customers/{id}")
		defer span.End()

		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("customer.id", id))

		detail, err := svc.Get(ctx, caller, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, detail)
	}
}

func updateCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/customers/{id}")
		defer span.End()

		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("customer.id", id))

		var req domain.UpdateCustomerRequest
		if err := decode(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		customer, err := svc.Update(ctx, caller, id, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, customer)
	}
}

func deleteCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/customers/{id}")
		defer span.End()

		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("customer.id", id))

		if err := svc.Delete(ctx, caller, id); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeMessage(w, http.StatusOK, "Customer deleted successfully")
	}
}
