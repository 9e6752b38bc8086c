package domain

import "time"

// Customer is a CRM customer record owned by exactly one identity.
// OwnerID is set at creation and never changes.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CustomerFilter is the predicate for listing customers.
// An empty OwnerID is never built by the services; listing is always scoped.
type CustomerFilter struct {
	OwnerID string
	Search  string
	Offset  int
	Limit   int
}

// CreateCustomerRequest is the body for POST /api/customers.
type CreateCustomerRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// UpdateCustomerRequest is the body for PUT /api/customers/{id}.
// Nil fields keep their current value.
type UpdateCustomerRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty"`
	Company *string `json:"company,omitempty"`
}

// CustomerList is the response for GET /api/customers.
type CustomerList struct {
	Customers []Customer `json:"customers"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	Pages     int        `json:"pages"`
}

// CustomerDetail is the response for GET /api/customers/{id}.
type CustomerDetail struct {
	Customer Customer `json:"customer"`
	Leads    []Lead   `json:"leads"`
}
