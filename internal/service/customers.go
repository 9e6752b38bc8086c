package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/infra/observability"
	"github.com/boddenberg/crm-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var customerTracer = otel.Tracer("service/customers")

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// CustomerService manages customers on behalf of an explicit caller.
type CustomerService struct {
	customers port.CustomerStore
	leads     port.LeadStore
	owners    port.Cache[string]
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewCustomerService creates a customer service. owners caches
// customer id → owner id and is shared with the LeadService.
func NewCustomerService(
	customers port.CustomerStore,
	leads port.LeadStore,
	owners port.Cache[string],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CustomerService {
	return &CustomerService{
		customers: customers,
		leads:     leads,
		owners:    owners,
		metrics:   metrics,
		logger:    logger,
	}
}

// Create adds a customer owned by the calling admin.
func (s *CustomerService) Create(ctx context.Context, caller domain.Caller, req *domain.CreateCustomerRequest) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Create")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("customers.create", time.Since(start)) }()

	if err := s.requireManager(caller); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}

	now := time.Now().UTC()
	customer := &domain.Customer{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Company:   strings.TrimSpace(req.Company),
		OwnerID:   caller.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.customers.CreateCustomer(ctx, customer); err != nil {
		return nil, boundaryError("create customer", err)
	}
	s.owners.Set(ctx, customer.ID, customer.OwnerID)

	s.logger.Info("customer created",
		zap.String("customer_id", customer.ID),
		zap.String("owner_id", customer.OwnerID),
	)
	return customer, nil
}

// List returns one page of the caller's own customers. Listing is scoped to
// the caller for every role.
func (s *CustomerService) List(ctx context.Context, caller domain.Caller, page, limit int, search string) (*domain.CustomerList, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.List")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("customers.list", time.Since(start)) }()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	// Keep (page-1)*limit representable; such pages are empty anyway.
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}

	filter := domain.CustomerFilter{
		OwnerID: caller.ID,
		Search:  strings.TrimSpace(search),
		Offset:  (page - 1) * limit,
		Limit:   limit,
	}
	span.SetAttributes(
		attribute.Int("page", page),
		attribute.Int("limit", limit),
	)

	var (
		customers []domain.Customer
		total     int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customers, err = s.customers.ListCustomers(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.customers.CountCustomers(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, boundaryError("list customers", err)
	}
	if customers == nil {
		customers = []domain.Customer{}
	}

	return &domain.CustomerList{
		Customers: customers,
		Total:     total,
		Page:      page,
		Pages:     (total + limit - 1) / limit,
	}, nil
}

// Get returns a customer with its leads. A customer the caller does not own
// is reported as not found, admins included.
func (s *CustomerService) Get(ctx context.Context, caller domain.Caller, id string) (*domain.CustomerDetail, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Get")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("customers.get", time.Since(start)) }()
	span.SetAttributes(attribute.String("customer.id", id))

	customer, err := s.customers.GetCustomer(ctx, id)
	if err != nil {
		return nil, boundaryError("get customer", err)
	}
	if customer == nil {
		return nil, &domain.ErrNotFound{Resource: "Customer", ID: id}
	}
	if !CanAccessCustomer(caller, customer) {
		s.metrics.IncrAccessDenied(ruleAccessCustomer)
		return nil, &domain.ErrNotFound{Resource: "Customer", ID: id}
	}
	s.owners.Set(ctx, customer.ID, customer.OwnerID)

	leads, err := s.leads.ListLeads(ctx, domain.LeadFilter{CustomerID: id})
	if err != nil {
		return nil, boundaryError("list leads", err)
	}
	if leads == nil {
		leads = []domain.Lead{}
	}

	return &domain.CustomerDetail{Customer: *customer, Leads: leads}, nil
}

// Update applies the non-nil fields of req. Admin only; the owner never
// changes.
func (s *CustomerService) Update(ctx context.Context, caller domain.Caller, id string, req *domain.UpdateCustomerRequest) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Update")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("customers.update", time.Since(start)) }()
	span.SetAttributes(attribute.String("customer.id", id))

	if err := s.requireManager(caller); err != nil {
		return nil, err
	}

	customer, err := s.customers.GetCustomer(ctx, id)
	if err != nil {
		return nil, boundaryError("get customer", err)
	}
	if customer == nil {
		return nil, &domain.ErrNotFound{Resource: "Customer", ID: id}
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, &domain.ErrValidation{Field: "name", Message: "name must not be empty"}
		}
		customer.Name = name
	}
	if req.Email != nil {
		customer.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		customer.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Company != nil {
		customer.Company = strings.TrimSpace(*req.Company)
	}
	customer.UpdatedAt = time.Now().UTC()

	if err := s.customers.UpdateCustomer(ctx, customer); err != nil {
		return nil, boundaryError("update customer", err)
	}
	return customer, nil
}

// Delete removes a customer and its leads. Admin only.
func (s *CustomerService) Delete(ctx context.Context, caller domain.Caller, id string) error {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Delete")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("customers.delete", time.Since(start)) }()
	span.SetAttributes(attribute.String("customer.id", id))

	if err := s.requireManager(caller); err != nil {
		return err
	}

	customer, err := s.customers.GetCustomer(ctx, id)
	if err != nil {
		return boundaryError("get customer", err)
	}
	if customer == nil {
		return &domain.ErrNotFound{Resource: "Customer", ID: id}
	}

	if err := s.leads.DeleteLeadsByCustomer(ctx, id); err != nil {
		return boundaryError("delete customer leads", err)
	}
	if err := s.customers.DeleteCustomer(ctx, id); err != nil {
		return boundaryError("delete customer", err)
	}
	s.owners.Delete(ctx, id)

	s.logger.Info("customer deleted",
		zap.String("customer_id", id),
		zap.String("deleted_by", caller.ID),
	)
	return nil
}

func (s *CustomerService) requireManager(caller domain.Caller) error {
	if CanManageCustomers(caller) {
		return nil
	}
	s.metrics.IncrAccessDenied(ruleManageCustomers)
	return &domain.ErrForbidden{Action: ruleManageCustomers, Message: "Admin access required"}
}
