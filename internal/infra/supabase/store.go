package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Store: port.Store implementation via PostgREST
// ============================================================

// Store adapts Client to port.Store.
type Store struct {
	c *Client
}

// NewStore wraps a client.
func NewStore(c *Client) *Store {
	return &Store{c: c}
}

// Ping checks PostgREST reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.c.ping(ctx)
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// --- Row types (table columns) ---

type identityRow struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"password_hash"`
	Role         domain.Role `json:"role"`
	RefreshToken *string     `json:"refresh_token"`
	CreatedAt    time.Time   `json:"created_at"`
}

func (r identityRow) toDomain() *domain.Identity {
	i := &domain.Identity{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		CreatedAt:    r.CreatedAt,
	}
	if r.RefreshToken != nil {
		i.RefreshToken = *r.RefreshToken
	}
	return i
}

type customerRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Company   string    `json:"company"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r customerRow) toDomain() domain.Customer {
	return domain.Customer{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Company:   r.Company,
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type leadRow struct {
	ID          string            `json:"id"`
	CustomerID  string            `json:"customer_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      domain.LeadStatus `json:"status"`
	Value       float64           `json:"value"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (r leadRow) toDomain() domain.Lead {
	return domain.Lead{
		ID:          r.ID,
		CustomerID:  r.CustomerID,
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		Value:       r.Value,
		CreatedAt:   r.CreatedAt,
	}
}

// decodeRows unmarshals a PostgREST array body.
func decodeRows[T any](resp *response, table string) ([]T, error) {
	var rows []T
	if len(resp.body) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(resp.body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}
	return rows, nil
}

// eq builds a PostgREST equality filter value.
func eq(v string) string {
	return "eq." + v
}

// quoteFilter quotes a value for use inside a PostgREST logic tree.
func quoteFilter(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(v) + `"`
}

// ============================================================
// Identities
// ============================================================

func (s *Store) CreateIdentity(ctx context.Context, identity *domain.Identity) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateIdentity")
	defer span.End()

	_, err := s.c.call(ctx, "identities", http.MethodPost, "identities", map[string]any{
		"id":            identity.ID,
		"name":          identity.Name,
		"email":         identity.Email,
		"password_hash": identity.PasswordHash,
		"role":          identity.Role,
		"created_at":    identity.CreatedAt.Format(time.RFC3339Nano),
	}, "return=minimal")
	if pgErrorCode(err) == uniqueViolation {
		return &domain.ErrConflict{Message: "User already exists"}
	}
	return err
}

func (s *Store) getIdentity(ctx context.Context, column, value string) (*domain.Identity, error) {
	q := url.Values{}
	q.Set(column, eq(value))
	q.Set("limit", "1")

	resp, err := s.c.call(ctx, "identities", http.MethodGet, "identities?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[identityRow](resp, "identities")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain(), nil
}

func (s *Store) GetIdentityByID(ctx context.Context, id string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetIdentityByID")
	defer span.End()
	return s.getIdentity(ctx, "id", id)
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetIdentityByEmail")
	defer span.End()
	return s.getIdentity(ctx, "email", email)
}

func (s *Store) GetIdentityByRefreshToken(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "Supabase.GetIdentityByRefreshToken")
	defer span.End()
	return s.getIdentity(ctx, "refresh_token", token)
}

func (s *Store) SetRefreshToken(ctx context.Context, id, token string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SetRefreshToken")
	defer span.End()

	var value any
	if token != "" {
		value = token
	}
	q := url.Values{}
	q.Set("id", eq(id))
	_, err := s.c.call(ctx, "identities", http.MethodPatch, "identities?"+q.Encode(),
		map[string]any{"refresh_token": value}, "return=minimal")
	return err
}

// ============================================================
// Customers
// ============================================================

func customerQuery(filter domain.CustomerFilter) url.Values {
	q := url.Values{}
	if filter.OwnerID != "" {
		q.Set("owner_id", eq(filter.OwnerID))
	}
	if filter.Search != "" {
		pattern := searchPattern(filter.Search)
		q.Set("or", fmt.Sprintf("(name.imatch.%s,email.imatch.%s)", pattern, pattern))
	}
	return q
}

// searchPattern turns search text into a quoted imatch operand that matches
// it literally as a case-insensitive substring. PostgREST rewrites every `*`
// in an ilike operand to `%`, so a literal asterisk can only be expressed as
// an escaped regex character.
func searchPattern(search string) string {
	return quoteFilter(regexp.QuoteMeta(search))
}

func (s *Store) CreateCustomer(ctx context.Context, customer *domain.Customer) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.owner_id", customer.OwnerID))

	_, err := s.c.call(ctx, "customers", http.MethodPost, "customers", map[string]any{
		"id":         customer.ID,
		"name":       customer.Name,
		"email":      customer.Email,
		"phone":      customer.Phone,
		"company":    customer.Company,
		"owner_id":   customer.OwnerID,
		"created_at": customer.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": customer.UpdatedAt.Format(time.RFC3339Nano),
	}, "return=minimal")
	if pgErrorCode(err) == foreignKeyViolation {
		return &domain.ErrNotFound{Resource: "identity", ID: customer.OwnerID}
	}
	return err
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCustomer")
	defer span.End()

	q := url.Values{}
	q.Set("id", eq(id))
	q.Set("limit", "1")
	resp, err := s.c.call(ctx, "customers", http.MethodGet, "customers?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[customerRow](resp, "customers")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	c := rows[0].toDomain()
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCustomers")
	defer span.End()

	q := customerQuery(filter)
	q.Set("order", "created_at.desc")
	if filter.Limit > 0 {
		q.Set("limit", fmt.Sprint(filter.Limit))
		q.Set("offset", fmt.Sprint(filter.Offset))
	}

	resp, err := s.c.call(ctx, "customers", http.MethodGet, "customers?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[customerRow](resp, "customers")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Customer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) CountCustomers(ctx context.Context, filter domain.CustomerFilter) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountCustomers")
	defer span.End()

	q := customerQuery(filter)
	q.Set("select", "id")
	q.Set("limit", "1")

	resp, err := s.c.call(ctx, "customers", http.MethodGet, "customers?"+q.Encode(), nil, "count=exact")
	if err != nil {
		return 0, err
	}
	return parseContentRange(resp.header.Get("Content-Range"))
}

func (s *Store) UpdateCustomer(ctx context.Context, customer *domain.Customer) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCustomer")
	defer span.End()

	q := url.Values{}
	q.Set("id", eq(customer.ID))
	// owner_id and created_at are never sent.
	_, err := s.c.call(ctx, "customers", http.MethodPatch, "customers?"+q.Encode(), map[string]any{
		"name":       customer.Name,
		"email":      customer.Email,
		"phone":      customer.Phone,
		"company":    customer.Company,
		"updated_at": customer.UpdatedAt.Format(time.RFC3339Nano),
	}, "return=minimal")
	return err
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteCustomer")
	defer span.End()

	q := url.Values{}
	q.Set("id", eq(id))
	_, err := s.c.call(ctx, "customers", http.MethodDelete, "customers?"+q.Encode(), nil, "")
	return err
}

// ============================================================
// Leads
// ============================================================

func (s *Store) CreateLead(ctx context.Context, lead *domain.Lead) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateLead")
	defer span.End()

	_, err := s.c.call(ctx, "leads", http.MethodPost, "leads", map[string]any{
		"id":          lead.ID,
		"customer_id": lead.CustomerID,
		"title":       lead.Title,
		"description": lead.Description,
		"status":      lead.Status,
		"value":       lead.Value,
		"created_at":  lead.CreatedAt.Format(time.RFC3339Nano),
	}, "return=minimal")
	if pgErrorCode(err) == foreignKeyViolation {
		return &domain.ErrNotFound{Resource: "Customer", ID: lead.CustomerID}
	}
	return err
}

func (s *Store) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetLead")
	defer span.End()

	q := url.Values{}
	q.Set("id", eq(id))
	q.Set("limit", "1")
	resp, err := s.c.call(ctx, "leads", http.MethodGet, "leads?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[leadRow](resp, "leads")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	l := rows[0].toDomain()
	return &l, nil
}

func (s *Store) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLeads")
	defer span.End()

	q := url.Values{}
	q.Set("customer_id", eq(filter.CustomerID))
	if filter.Status != "" {
		q.Set("status", eq(string(filter.Status)))
	}
	q.Set("order", "created_at.desc")

	resp, err := s.c.call(ctx, "leads", http.MethodGet, "leads?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[leadRow](resp, "leads")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Lead, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateLead(ctx context.Context, lead *domain.Lead) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateLead")
	defer span.End()

	q := url.Values{}
	q.Set("id", eq(lead.ID))
	_, err := s.c.call(ctx, "leads", http.MethodPatch, "leads?"+q.Encode(), map[string]any{
		"title":       lead.Title,
		"description": lead.Description,
		"status":      lead.Status,
		"value":       lead.Value,
	}, "return=minimal")
	return err
}

func (s *Store) DeleteLead(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteLead")
	defer span.End()

	q := url.Values{}
	q.Set("id", eq(id))
	_, err := s.c.call(ctx, "leads", http.MethodDelete, "leads?"+q.Encode(), nil, "")
	return err
}

func (s *Store) DeleteLeadsByCustomer(ctx context.Context, customerID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteLeadsByCustomer")
	defer span.End()

	q := url.Values{}
	q.Set("customer_id", eq(customerID))
	_, err := s.c.call(ctx, "leads", http.MethodDelete, "leads?"+q.Encode(), nil, "")
	return err
}
