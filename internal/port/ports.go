// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/crm-api-go/internal/domain"
)

// IdentityStore persists identities and their single active refresh token.
// Lookups return (nil, nil) when nothing matches.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, identity *domain.Identity) error
	GetIdentityByID(ctx context.Context, id string) (*domain.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error)
	GetIdentityByRefreshToken(ctx context.Context, token string) (*domain.Identity, error)
	// SetRefreshToken replaces the stored refresh token; an empty token clears it.
	SetRefreshToken(ctx context.Context, id, token string) error
}

// CustomerStore persists customers.
type CustomerStore interface {
	CreateCustomer(ctx context.Context, customer *domain.Customer) error
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error)
	CountCustomers(ctx context.Context, filter domain.CustomerFilter) (int, error)
	UpdateCustomer(ctx context.Context, customer *domain.Customer) error
	DeleteCustomer(ctx context.Context, id string) error
}

// LeadStore persists leads.
type LeadStore interface {
	CreateLead(ctx context.Context, lead *domain.Lead) error
	GetLead(ctx context.Context, id string) (*domain.Lead, error)
	// ListLeads returns the leads matching filter, newest first.
	ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error)
	UpdateLead(ctx context.Context, lead *domain.Lead) error
	DeleteLead(ctx context.Context, id string) error
	DeleteLeadsByCustomer(ctx context.Context, customerID string) error
}

// Store is the full persistence surface of the API.
type Store interface {
	IdentityStore
	CustomerStore
	LeadStore
	Ping(ctx context.Context) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
	Delete(ctx context.Context, key string)
}
