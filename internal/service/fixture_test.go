package service

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/infra/cache"
	"github.com/boddenberg/crm-api-go/internal/infra/memory"
	"github.com/boddenberg/crm-api-go/internal/infra/observability"
	"github.com/boddenberg/crm-api-go/internal/infra/resilience"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAccessSecret  = "test-access-secret"
	testRefreshSecret = "test-refresh-secret"
)

type fixture struct {
	store     *memory.Store
	owners    *cache.InMemory[string]
	metrics   *observability.Metrics
	tokens    *TokenService
	auth      *AuthService
	customers *CustomerService
	leads     *LeadService
}

func newFixture(t *testing.T, strictTransitions bool) *fixture {
	t.Helper()

	store := memory.NewStore()
	owners := cache.New[string](time.Minute)
	t.Cleanup(func() { owners.Close() })

	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	tokens := NewTokenService(testAccessSecret, testRefreshSecret, 15*time.Minute, 7*24*time.Hour)

	return &fixture{
		store:     store,
		owners:    owners,
		metrics:   metrics,
		tokens:    tokens,
		auth:      NewAuthService(store, tokens, resilience.NewBulkhead(4), bcrypt.MinCost, metrics, logger),
		customers: NewCustomerService(store, store, owners, metrics, logger),
		leads:     NewLeadService(store, store, owners, strictTransitions, metrics, logger),
	}
}

// seedCaller stores an identity directly and returns it as a caller.
func (f *fixture) seedCaller(t *testing.T, role domain.Role) domain.Caller {
	t.Helper()

	id := uuid.NewString()
	identity := &domain.Identity{
		ID:        id,
		Name:      "user " + id[:8],
		Email:     id[:8] + "@example.com",
		Role:      role,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.store.CreateIdentity(context.Background(), identity))
	return domain.Caller{ID: identity.ID, Email: identity.Email, Role: role}
}

// seedCustomer stores a customer owned by ownerID, bypassing the admin
// check so ownership by plain users can be exercised.
func (f *fixture) seedCustomer(t *testing.T, ownerID, name string) *domain.Customer {
	t.Helper()

	now := time.Now().UTC()
	customer := &domain.Customer{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     "contact@" + name + ".test",
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateCustomer(context.Background(), customer))
	return customer
}
