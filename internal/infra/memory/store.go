// Package memory is an in-process implementation of port.Store used for
// local development and tests. Records are copied on the way in and out so
// callers never share memory with the store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/boddenberg/crm-api-go/internal/domain"
)

// Store keeps identities, customers and leads in maps guarded by one RWMutex.
type Store struct {
	mu         sync.RWMutex
	identities map[string]domain.Identity
	customers  map[string]domain.Customer
	leads      map[string]domain.Lead
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		identities: make(map[string]domain.Identity),
		customers:  make(map[string]domain.Customer),
		leads:      make(map[string]domain.Lead),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// --- Identities ---

func (s *Store) CreateIdentity(_ context.Context, identity *domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.identities {
		if existing.Email == identity.Email {
			return &domain.ErrConflict{Message: "User already exists"}
		}
	}
	s.identities[identity.ID] = *identity
	return nil
}

func (s *Store) GetIdentityByID(_ context.Context, id string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

func (s *Store) GetIdentityByEmail(_ context.Context, email string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, identity := range s.identities {
		if identity.Email == email {
			return &identity, nil
		}
	}
	return nil, nil
}

func (s *Store) GetIdentityByRefreshToken(_ context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, identity := range s.identities {
		if identity.RefreshToken == token {
			return &identity, nil
		}
	}
	return nil, nil
}

func (s *Store) SetRefreshToken(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "identity", ID: id}
	}
	identity.RefreshToken = token
	s.identities[id] = identity
	return nil
}

// --- Customers ---

func (s *Store) CreateCustomer(_ context.Context, customer *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.customers[customer.ID] = *customer
	return nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, nil
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	s.mu.RLock()
	matched := s.matchCustomers(filter)
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	offset := max(filter.Offset, 0)
	if offset >= len(matched) {
		return []domain.Customer{}, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Limit < end-offset {
		end = offset + filter.Limit
	}
	return matched[offset:end], nil
}

func (s *Store) CountCustomers(_ context.Context, filter domain.CustomerFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.matchCustomers(filter)), nil
}

// matchCustomers applies owner and search predicates. Caller holds the lock.
func (s *Store) matchCustomers(filter domain.CustomerFilter) []domain.Customer {
	search := strings.ToLower(filter.Search)
	out := make([]domain.Customer, 0)
	for _, c := range s.customers {
		if filter.OwnerID != "" && c.OwnerID != filter.OwnerID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Email), search) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Store) UpdateCustomer(_ context.Context, customer *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "Customer", ID: customer.ID}
	}
	updated := *customer
	updated.OwnerID = existing.OwnerID
	updated.CreatedAt = existing.CreatedAt
	s.customers[customer.ID] = updated
	return nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.customers, id)
	return nil
}

// --- Leads ---

func (s *Store) CreateLead(_ context.Context, lead *domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[lead.CustomerID]; !ok {
		return &domain.ErrNotFound{Resource: "Customer", ID: lead.CustomerID}
	}
	s.leads[lead.ID] = *lead
	return nil
}

func (s *Store) GetLead(_ context.Context, id string) (*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, nil
	}
	return &lead, nil
}

func (s *Store) ListLeads(_ context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	s.mu.RLock()
	out := make([]domain.Lead, 0)
	for _, l := range s.leads {
		if l.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		out = append(out, l)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateLead(_ context.Context, lead *domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.leads[lead.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "Lead", ID: lead.ID}
	}
	updated := *lead
	updated.CustomerID = existing.CustomerID
	updated.CreatedAt = existing.CreatedAt
	s.leads[lead.ID] = updated
	return nil
}

func (s *Store) DeleteLead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.leads, id)
	return nil
}

func (s *Store) DeleteLeadsByCustomer(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, l := range s.leads {
		if l.CustomerID == customerID {
			delete(s.leads, id)
		}
	}
	return nil
}
