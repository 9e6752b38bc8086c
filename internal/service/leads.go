package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/infra/observability"
	"github.com/boddenberg/crm-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var leadTracer = otel.Tracer("service/leads")

// LeadService manages leads. Access derives from the owner of the parent
// customer, see CanAccessLead.
type LeadService struct {
	customers port.CustomerStore
	leads     port.LeadStore
	owners    port.Cache[string]
	strict    bool
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewLeadService creates a lead service. With strictTransitions set, status
// updates must follow the pipeline graph of domain.LeadStatus.CanTransition.
func NewLeadService(
	customers port.CustomerStore,
	leads port.LeadStore,
	owners port.Cache[string],
	strictTransitions bool,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LeadService {
	return &LeadService{
		customers: customers,
		leads:     leads,
		owners:    owners,
		strict:    strictTransitions,
		metrics:   metrics,
		logger:    logger,
	}
}

// Create adds a lead under customerID. Status defaults to New, value to 0.
func (s *LeadService) Create(ctx context.Context, caller domain.Caller, customerID string, req *domain.CreateLeadRequest) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.Create")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("leads.create", time.Since(start)) }()
	span.SetAttributes(attribute.String("customer.id", customerID))

	if err := s.authorize(ctx, caller, customerID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "title is required"}
	}
	status := req.Status
	if status == "" {
		status = domain.LeadNew
	}
	if !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	value := 0.0
	if req.Value != nil {
		value = *req.Value
	}
	if value < 0 {
		return nil, &domain.ErrValidation{Field: "value", Message: "value must be zero or greater"}
	}

	lead := &domain.Lead{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Status:      status,
		Value:       value,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.leads.CreateLead(ctx, lead); err != nil {
		return nil, boundaryError("create lead", err)
	}

	s.logger.Info("lead created",
		zap.String("lead_id", lead.ID),
		zap.String("customer_id", customerID),
	)
	return lead, nil
}

// ListByCustomer returns the customer's leads, newest first, optionally
// filtered by status.
func (s *LeadService) ListByCustomer(ctx context.Context, caller domain.Caller, customerID string, status domain.LeadStatus) ([]domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.ListByCustomer")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("leads.list", time.Since(start)) }()
	span.SetAttributes(attribute.String("customer.id", customerID))

	if status != "" && !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	if err := s.authorize(ctx, caller, customerID); err != nil {
		return nil, err
	}

	leads, err := s.leads.ListLeads(ctx, domain.LeadFilter{CustomerID: customerID, Status: status})
	if err != nil {
		return nil, boundaryError("list leads", err)
	}
	if len(leads) == 0 {
		// A lookup racing a delete can re-cache the owner after eviction;
		// an empty list must still tell a deleted customer apart.
		customer, err := s.customers.GetCustomer(ctx, customerID)
		if err != nil {
			return nil, boundaryError("get customer", err)
		}
		if customer == nil {
			s.owners.Delete(ctx, customerID)
			return nil, &domain.ErrNotFound{Resource: "Customer", ID: customerID}
		}
		return []domain.Lead{}, nil
	}
	return leads, nil
}

func (s *LeadService) Get(ctx context.Context, caller domain.Caller, id string) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.Get")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("leads.get", time.Since(start)) }()
	span.SetAttributes(attribute.String("lead.id", id))

	return s.load(ctx, caller, id)
}

// Update applies the non-nil fields of req.
func (s *LeadService) Update(ctx context.Context, caller domain.Caller, id string, req *domain.UpdateLeadRequest) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.Update")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("leads.update", time.Since(start)) }()
	span.SetAttributes(attribute.String("lead.id", id))

	lead, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, &domain.ErrValidation{Field: "title", Message: "title must not be empty"}
		}
		lead.Title = title
	}
	if req.Description != nil {
		lead.Description = strings.TrimSpace(*req.Description)
	}
	if req.Status != nil {
		next := *req.Status
		if !next.Valid() {
			return nil, &domain.ErrValidation{Field: "status", Message: fmt.Sprintf("unknown status %q", next)}
		}
		if s.strict && !lead.Status.CanTransition(next) {
			return nil, &domain.ErrValidation{
				Field:   "status",
				Message: fmt.Sprintf("cannot move lead from %s to %s", lead.Status, next),
			}
		}
		lead.Status = next
	}
	if req.Value != nil {
		if *req.Value < 0 {
			return nil, &domain.ErrValidation{Field: "value", Message: "value must be zero or greater"}
		}
		lead.Value = *req.Value
	}

	if err := s.leads.UpdateLead(ctx, lead); err != nil {
		return nil, boundaryError("update lead", err)
	}
	return lead, nil
}

func (s *LeadService) Delete(ctx context.Context, caller domain.Caller, id string) error {
	ctx, span := leadTracer.Start(ctx, "LeadService.Delete")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("leads.delete", time.Since(start)) }()
	span.SetAttributes(attribute.String("lead.id", id))

	if _, err := s.load(ctx, caller, id); err != nil {
		return err
	}
	if err := s.leads.DeleteLead(ctx, id); err != nil {
		return boundaryError("delete lead", err)
	}

	s.logger.Info("lead deleted",
		zap.String("lead_id", id),
		zap.String("deleted_by", caller.ID),
	)
	return nil
}

// load fetches a lead and checks the caller may act on it.
func (s *LeadService) load(ctx context.Context, caller domain.Caller, id string) (*domain.Lead, error) {
	lead, err := s.leads.GetLead(ctx, id)
	if err != nil {
		return nil, boundaryError("get lead", err)
	}
	if lead == nil {
		return nil, &domain.ErrNotFound{Resource: "Lead", ID: id}
	}
	if err := s.authorize(ctx, caller, lead.CustomerID); err != nil {
		return nil, err
	}
	return lead, nil
}

// authorize resolves the owner of customerID and applies CanAccessLead.
func (s *LeadService) authorize(ctx context.Context, caller domain.Caller, customerID string) error {
	owner, err := s.ownerOf(ctx, customerID)
	if err != nil {
		return err
	}
	if !CanAccessLead(caller, &domain.Customer{ID: customerID, OwnerID: owner}) {
		s.metrics.IncrAccessDenied(ruleAccessLead)
		s.logger.Debug("lead access denied",
			zap.String("caller_id", caller.ID),
			zap.String("customer_id", customerID),
		)
		return &domain.ErrForbidden{Action: ruleAccessLead, Message: "Forbidden"}
	}
	return nil
}

// ownerOf reads through the ownership cache. Customer.OwnerID never changes,
// so a cached entry is only stale once the customer is deleted, and Delete
// evicts it.
func (s *LeadService) ownerOf(ctx context.Context, customerID string) (string, error) {
	if owner, ok := s.owners.Get(ctx, customerID); ok {
		s.metrics.IncrCacheHit("owner")
		return owner, nil
	}
	s.metrics.IncrCacheMiss("owner")

	customer, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return "", boundaryError("get customer", err)
	}
	if customer == nil {
		return "", &domain.ErrNotFound{Resource: "Customer", ID: customerID}
	}
	s.owners.Set(ctx, customerID, customer.OwnerID)
	return customer.OwnerID, nil
}
