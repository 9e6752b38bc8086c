package service

import "github.com/boddenberg/crm-api-go/internal/domain"

// Policy rule names, used as the access-denied metric label.
const (
	ruleManageCustomers = "manage_customers"
	ruleAccessCustomer  = "access_customer"
	ruleAccessLead      = "access_lead"
)

// CanManageCustomers governs customer create, update and delete.
func CanManageCustomers(caller domain.Caller) bool {
	return caller.IsAdmin()
}

// CanAccessCustomer governs reading a customer and its leads through the
// customer endpoints. Only the owner qualifies; admins get no override here.
func CanAccessCustomer(caller domain.Caller, customer *domain.Customer) bool {
	return customer != nil && caller.ID == customer.OwnerID
}

// CanAccessLead governs every lead operation. It is deliberately wider than
// CanAccessCustomer: the owner of the parent customer or any admin.
func CanAccessLead(caller domain.Caller, customer *domain.Customer) bool {
	if customer == nil {
		return false
	}
	return caller.ID == customer.OwnerID || caller.IsAdmin()
}
