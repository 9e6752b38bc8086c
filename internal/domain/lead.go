package domain

import "time"

// LeadStatus is the pipeline stage of a lead.
type LeadStatus string

const (
	LeadNew       LeadStatus = "New"
	LeadContacted LeadStatus = "Contacted"
	LeadConverted LeadStatus = "Converted"
	LeadLost      LeadStatus = "Lost"
)

// Valid reports whether s is one of the four enumerated statuses.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadConverted, LeadLost:
		return true
	}
	return false
}

// leadTransitions is the forward-only pipeline graph, consulted only when
// strict transitions are enabled.
var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadNew:       {LeadContacted, LeadLost},
	LeadContacted: {LeadConverted, LeadLost},
}

// CanTransition reports whether a lead may move from s to next under the
// strict pipeline graph. Staying in the same status is always allowed.
func (s LeadStatus) CanTransition(next LeadStatus) bool {
	if s == next {
		return true
	}
	for _, to := range leadTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Lead is a sales opportunity attached to a customer.
type Lead struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customerId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      LeadStatus `json:"status"`
	Value       float64    `json:"value"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// LeadFilter selects the leads of one customer, optionally by status.
type LeadFilter struct {
	CustomerID string
	Status     LeadStatus
}

// CreateLeadRequest is the body for POST /api/leads/{customerId}.
type CreateLeadRequest struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description,omitempty"`
	Status      LeadStatus `json:"status,omitempty" validate:"omitempty,oneof=New Contacted Converted Lost"`
	Value       *float64   `json:"value,omitempty" validate:"omitempty,gte=0"`
}

// UpdateLeadRequest is the body for PUT /api/leads/lead/{id}.
// Nil fields keep their current value.
type UpdateLeadRequest struct {
	Title       *string     `json:"title,omitempty" validate:"omitempty,min=3,max=100"`
	Description *string     `json:"description,omitempty" validate:"omitempty,max=500"`
	Status      *LeadStatus `json:"status,omitempty" validate:"omitempty,oneof=New Contacted Converted Lost"`
	Value       *float64    `json:"value,omitempty" validate:"omitempty,gte=0"`
}
