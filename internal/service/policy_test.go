package service

import (
	"testing"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestPolicy(t *testing.T) {
	owner := domain.Caller{ID: "owner", Role: domain.RoleUser}
	ownerAdmin := domain.Caller{ID: "owner", Role: domain.RoleAdmin}
	stranger := domain.Caller{ID: "stranger", Role: domain.RoleUser}
	admin := domain.Caller{ID: "admin", Role: domain.RoleAdmin}
	customer := &domain.Customer{ID: "c1", OwnerID: "owner"}

	tests := []struct {
		name           string
		caller         domain.Caller
		manage         bool
		accessCustomer bool
		accessLead     bool
	}{
		{"owner user", owner, false, true, true},
		{"owner admin", ownerAdmin, true, true, true},
		{"stranger user", stranger, false, false, false},
		{"other admin", admin, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.manage, CanManageCustomers(tt.caller))
			assert.Equal(t, tt.accessCustomer, CanAccessCustomer(tt.caller, customer))
			assert.Equal(t, tt.accessLead, CanAccessLead(tt.caller, customer))
		})
	}
}

func TestPolicy_NilCustomerDenies(t *testing.T) {
	admin := domain.Caller{ID: "admin", Role: domain.RoleAdmin}

	assert.False(t, CanAccessCustomer(admin, nil))
	assert.False(t, CanAccessLead(admin, nil))
}
