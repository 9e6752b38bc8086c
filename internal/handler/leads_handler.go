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
// Leads: /api/leads
// ============================================================

func createLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/leads/{customerId}")
		defer span.End()

		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		customerID := chi.URLParam(r, "customerId")
		span.SetAttributes(attribute.String("customer.id", customerID))

		var req domain.CreateLeadRequest
		if err := decode(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		lead, err := svc.Create(ctx, caller, customerID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, lead)
	}
}

func listLeadsHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/leads/{customerId}")
		defer span.End()

		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		customerID := chi.URLParam(r, "customerId")
		span.SetAttributes(attribute.String("customer.id", customerID))

		status := domain.LeadStatus(r.URL.Query().Get("status"))
		leads, err := svc.ListByCustomer(ctx, caller, customerID, status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, leads)
	}
}

func getLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/leads/lead/{id}")
		defer span.End()

		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("lead.id", id))

		lead, err := svc.Get(ctx, caller, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, lead)
	}
}

func updateLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/leads/lead/{id}")
		defer span.End()

		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("lead.id", id))

		var req domain.UpdateLeadRequest
		if err := decode(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		lead, err := svc.Update(ctx, caller, id, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, lead)
	}
}

func deleteLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/leads/lead/{id}")
		defer span.End()

		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("lead.id", id))

		if err := svc.Delete(ctx, caller, id); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeMessage(w, http.StatusOK, "Lead deleted successfully")
	}
}
