// Package postgres implements port.Store on PostgreSQL through a pgx pool.
// Every call goes through the shared circuit breaker and retry policy;
// domain outcomes (duplicate email, missing parent) are marked permanent so
// they are neither retried nor counted against backend health.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/infra/observability"
	"github.com/boddenberg/crm-api-go/internal/infra/resilience"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store is the PostgreSQL persistence backend.
type Store struct {
	pool    *pgxpool.Pool
	cb      *gobreaker.CircuitBreaker
	cfg     resilience.Config
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewStore connects a pool to databaseURL.
func NewStore(ctx context.Context, databaseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger, metrics *observability.Metrics) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, cb: cb, cfg: cfg, logger: logger, metrics: metrics}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// run executes fn under the circuit breaker with retries.
func (s *Store) run(ctx context.Context, op string, fn func() error) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.cfg, fn)
	})
	if err != nil && !resilience.IsPermanent(err) {
		s.metrics.IncrStoreError("postgres", op)
		s.logger.Error("postgres: operation failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("postgres %s: %w", op, err)
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// likePattern escapes LIKE metacharacters so search input matches literally.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}

// ============================================================
// Identities
// ============================================================

const identityColumns = `id, name, email, password_hash, role, COALESCE(refresh_token, ''), created_at`

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var i domain.Identity
	err := row.Scan(&i.ID, &i.Name, &i.Email, &i.PasswordHash, &i.Role, &i.RefreshToken, &i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *Store) CreateIdentity(ctx context.Context, identity *domain.Identity) error {
	ctx, span := tracer.Start(ctx, "Postgres.CreateIdentity")
	defer span.End()

	return s.run(ctx, "create identity", func() error {
		_, err := s.pool.Exec(ctx, `
INSERT INTO identities (id, name, email, password_hash, role, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
			identity.ID, identity.Name, identity.Email, identity.PasswordHash, identity.Role, identity.CreatedAt)
		if pgCode(err) == uniqueViolation {
			return resilience.Permanent(&domain.ErrConflict{Message: "User already exists"})
		}
		return err
	})
}

func (s *Store) getIdentity(ctx context.Context, op, where string, arg any) (*domain.Identity, error) {
	var out *domain.Identity
	err := s.run(ctx, op, func() error {
		var err error
		out, err = scanIdentity(s.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE `+where, arg))
		return err
	})
	return out, err
}

func (s *Store) GetIdentityByID(ctx context.Context, id string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetIdentityByID")
	defer span.End()
	return s.getIdentity(ctx, "get identity", "id = $1", id)
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetIdentityByEmail")
	defer span.End()
	return s.getIdentity(ctx, "get identity by email", "email = $1", email)
}

func (s *Store) GetIdentityByRefreshToken(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "Postgres.GetIdentityByRefreshToken")
	defer span.End()
	return s.getIdentity(ctx, "get identity by refresh token", "refresh_token = $1", token)
}

func (s *Store) SetRefreshToken(ctx context.Context, id, token string) error {
	ctx, span := tracer.Start(ctx, "Postgres.SetRefreshToken")
	defer span.End()

	return s.run(ctx, "set refresh token", func() error {
		tag, err := s.pool.Exec(ctx, `UPDATE identities SET refresh_token = NULLIF($2, '') WHERE id = $1`, id, token)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "identity", ID: id})
		}
		return nil
	})
}

// ============================================================
// Customers
// ============================================================

const customerColumns = `id, name, email, phone, company, owner_id, created_at, updated_at`

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// customerWhere builds the predicate shared by list and count.
func customerWhere(filter domain.CustomerFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, likePattern(filter.Search))
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", n, n))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) CreateCustomer(ctx context.Context, customer *domain.Customer) error {
	ctx, span := tracer.Start(ctx, "Postgres.CreateCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.owner_id", customer.OwnerID))

	return s.run(ctx, "create customer", func() error {
		_, err := s.pool.Exec(ctx, `
INSERT INTO customers (id, name, email, phone, company, owner_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			customer.ID, customer.Name, customer.Email, customer.Phone, customer.Company,
			customer.OwnerID, customer.CreatedAt, customer.UpdatedAt)
		if pgCode(err) == foreignKeyViolation {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "identity", ID: customer.OwnerID})
		}
		return err
	})
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetCustomer")
	defer span.End()

	var out *domain.Customer
	err := s.run(ctx, "get customer", func() error {
		var err error
		out, err = scanCustomer(s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
		return err
	})
	return out, err
}

func (s *Store) ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListCustomers")
	defer span.End()

	where, args := customerWhere(filter)
	query := `SELECT ` + customerColumns + ` FROM customers` + where + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var out []domain.Customer
	err := s.run(ctx, "list customers", func() error {
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]domain.Customer, 0)
		for rows.Next() {
			c, err := scanCustomer(rows)
			if err != nil {
				return err
			}
			out = append(out, *c)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Store) CountCustomers(ctx context.Context, filter domain.CustomerFilter) (int, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CountCustomers")
	defer span.End()

	where, args := customerWhere(filter)
	var n int
	err := s.run(ctx, "count customers", func() error {
		return s.pool.QueryRow(ctx, `SELECT count(*) FROM customers`+where, args...).Scan(&n)
	})
	return n, err
}

func (s *Store) UpdateCustomer(ctx context.Context, customer *domain.Customer) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateCustomer")
	defer span.End()

	// owner_id and created_at are deliberately absent from the SET list.
	return s.run(ctx, "update customer", func() error {
		tag, err := s.pool.Exec(ctx, `
UPDATE customers SET name = $2, email = $3, phone = $4, company = $5, updated_at = $6
WHERE id = $1`,
			customer.ID, customer.Name, customer.Email, customer.Phone, customer.Company, customer.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "Customer", ID: customer.ID})
		}
		return nil
	})
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteCustomer")
	defer span.End()

	return s.run(ctx, "delete customer", func() error {
		_, err := s.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
		return err
	})
}

// ============================================================
// Leads
// ============================================================

const leadColumns = `id, customer_id, title, description, status, value, created_at`

func scanLead(row pgx.Row) (*domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(&l.ID, &l.CustomerID, &l.Title, &l.Description, &l.Status, &l.Value, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) CreateLead(ctx context.Context, lead *domain.Lead) error {
	ctx, span := tracer.Start(ctx, "Postgres.CreateLead")
	defer span.End()

	return s.run(ctx, "create lead", func() error {
		_, err := s.pool.Exec(ctx, `
INSERT INTO leads (id, customer_id, title, description, status, value, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			lead.ID, lead.CustomerID, lead.Title, lead.Description, lead.Status, lead.Value, lead.CreatedAt)
		if pgCode(err) == foreignKeyViolation {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "Customer", ID: lead.CustomerID})
		}
		return err
	})
}

func (s *Store) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetLead")
	defer span.End()

	var out *domain.Lead
	err := s.run(ctx, "get lead", func() error {
		var err error
		out, err = scanLead(s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
		return err
	})
	return out, err
}

func (s *Store) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListLeads")
	defer span.End()

	query := `SELECT ` + leadColumns + ` FROM leads WHERE customer_id = $1`
	args := []any{filter.CustomerID}
	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`

	var out []domain.Lead
	err := s.run(ctx, "list leads", func() error {
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]domain.Lead, 0)
		for rows.Next() {
			l, err := scanLead(rows)
			if err != nil {
				return err
			}
			out = append(out, *l)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Store) UpdateLead(ctx context.Context, lead *domain.Lead) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateLead")
	defer span.End()

	return s.run(ctx, "update lead", func() error {
		tag, err := s.pool.Exec(ctx, `
UPDATE leads SET title = $2, description = $3, status = $4, value = $5
WHERE id = $1`,
			lead.ID, lead.Title, lead.Description, lead.Status, lead.Value)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "Lead", ID: lead.ID})
		}
		return nil
	})
}

func (s *Store) DeleteLead(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteLead")
	defer span.End()

	return s.run(ctx, "delete lead", func() error {
		_, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
		return err
	})
}

func (s *Store) DeleteLeadsByCustomer(ctx context.Context, customerID string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteLeadsByCustomer")
	defer span.End()

	return s.run(ctx, "delete leads by customer", func() error {
		_, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE customer_id = $1`, customerID)
		return err
	})
}
