package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_IdentityEmailUnique(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	require.NoError(t, s.CreateIdentity(ctx, &domain.Identity{ID: "u1", Email: "a@test.com"}))

	err := s.CreateIdentity(ctx, &domain.Identity{ID: "u2", Email: "a@test.com"})
	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestStore_RefreshTokenLookup(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.CreateIdentity(ctx, &domain.Identity{ID: "u1", Email: "a@test.com"}))

	got, err := s.GetIdentityByRefreshToken(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got, "empty token must never match an identity without a token")

	require.NoError(t, s.SetRefreshToken(ctx, "u1", "tok-1"))
	got, err = s.GetIdentityByRefreshToken(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)

	require.NoError(t, s.SetRefreshToken(ctx, "u1", ""))
	got, err = s.GetIdentityByRefreshToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.CreateCustomer(ctx, &domain.Customer{ID: "c1", Name: "Acme", OwnerID: "u1"}))

	c, err := s.GetCustomer(ctx, "c1")
	require.NoError(t, err)
	c.Name = "mutated"

	again, err := s.GetCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.Name)
}

func TestStore_ListCustomers_ScopeSearchAndPaging(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := []domain.Customer{
		{ID: "c1", Name: "Acme Corp", Email: "hello@acme.io", OwnerID: "u1", CreatedAt: base},
		{ID: "c2", Name: "Globex", Email: "info@globex.com", OwnerID: "u1", CreatedAt: base.Add(time.Hour)},
		{ID: "c3", Name: "Initech", Email: "ACME@initech.com", OwnerID: "u1", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "c4", Name: "Acme Other", Email: "x@acme.io", OwnerID: "u2", CreatedAt: base},
	}
	for i := range seed {
		require.NoError(t, s.CreateCustomer(ctx, &seed[i]))
	}

	filter := domain.CustomerFilter{OwnerID: "u1", Search: "acme", Limit: 10}
	got, err := s.ListCustomers(ctx, filter)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c3", got[0].ID, "newest first")
	assert.Equal(t, "c1", got[1].ID)

	n, err := s.CountCustomers(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page2, err := s.ListCustomers(ctx, domain.CustomerFilter{OwnerID: "u1", Offset: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "c1", page2[0].ID)

	empty, err := s.ListCustomers(ctx, domain.CustomerFilter{OwnerID: "u1", Offset: 10, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_ListCustomers_NegativeOffsetStartsAtFirst(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.CreateCustomer(ctx, &domain.Customer{ID: "c1", Name: "Acme", OwnerID: "u1"}))

	got, err := s.ListCustomers(ctx, domain.CustomerFilter{OwnerID: "u1", Offset: -20, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
}

func TestStore_UpdateCustomerKeepsOwner(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.CreateCustomer(ctx, &domain.Customer{ID: "c1", Name: "Acme", OwnerID: "u1"}))

	require.NoError(t, s.UpdateCustomer(ctx, &domain.Customer{ID: "c1", Name: "Acme 2", OwnerID: "u2"}))

	c, err := s.GetCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Acme 2", c.Name)
	assert.Equal(t, "u1", c.OwnerID)
}

func TestStore_Leads(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.CreateLead(ctx, &domain.Lead{ID: "l0", CustomerID: "missing"})
	var notFound *domain.ErrNotFound
	require.ErrorAs(t, err, &notFound)

	require.NoError(t, s.CreateCustomer(ctx, &domain.Customer{ID: "c1", OwnerID: "u1"}))
	require.NoError(t, s.CreateLead(ctx, &domain.Lead{ID: "l1", CustomerID: "c1", Status: domain.LeadNew, CreatedAt: base}))
	require.NoError(t, s.CreateLead(ctx, &domain.Lead{ID: "l2", CustomerID: "c1", Status: domain.LeadContacted, CreatedAt: base.Add(time.Minute)}))

	all, err := s.ListLeads(ctx, domain.LeadFilter{CustomerID: "c1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "l2", all[0].ID)

	contacted, err := s.ListLeads(ctx, domain.LeadFilter{CustomerID: "c1", Status: domain.LeadContacted})
	require.NoError(t, err)
	require.Len(t, contacted, 1)

	require.NoError(t, s.DeleteLeadsByCustomer(ctx, "c1"))
	all, err = s.ListLeads(ctx, domain.LeadFilter{CustomerID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, all)
}
