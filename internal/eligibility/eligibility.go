package eligibility

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Status tags the outcome of a refund resolution.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusError    Status = "error"
)

const (
	refundIDPrefix    = "RFND-"
	reasonNotFound    = "Customer or order not found"
	reasonNotEligible = "Order not eligible for refund"
)

// Order is a single purchase on a customer account. OrderNumber is scoped to
// the customer; OrderID is the opaque identifier refund IDs are built from.
type Order struct {
	OrderNumber int     `json:"order_number"`
	OrderID     string  `json:"order_id"`
	Eligible    bool    `json:"eligible"`
	Total       float64 `json:"total"`
}

// Customer ties an email and card last-4 to an ordered list of orders.
type Customer struct {
	Email  string  `json:"email"`
	Last4  string  `json:"last4"`
	Orders []Order `json:"orders"`
}

// Dataset is the top-level shape of the eligibility data source.
type Dataset struct {
	Customers []Customer `json:"customers"`
}

// Decision is the outcome of a refund eligibility resolution. The zero
// fields are omitted so approved/denied/error decisions serialise with only
// their relevant fields, matching the receipt format consumed downstream.
type Decision struct {
	Status   Status  `json:"status"`
	RefundID string  `json:"refund_id,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// Approved reports whether the decision granted the refund.
func (d Decision) Approved() bool {
	return d.Status == StatusApproved
}

// Store is a read-only view of the eligibility dataset. It is safe to share
// across concurrent sessions once loaded; Resolve never mutates it.
type Store struct {
	customers []Customer
}

// Open loads the eligibility dataset from a JSON document at path.
// A missing or malformed file is a fatal precondition failure surfaced as an
// error, never as an error-status Decision.
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eligibility: read dataset %s: %w", path, err)
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("eligibility: parse dataset %s: %w", path, err)
	}

	return FromDataset(ds), nil
}

// FromDataset builds a store from an in-memory dataset. Customer and order
// order is preserved, so first-match-wins resolution is deterministic.
func FromDataset(ds Dataset) *Store {
	customers := make([]Customer, len(ds.Customers))
	copy(customers, ds.Customers)
	return &Store{customers: customers}
}

// Customers returns the number of customer records loaded.
func (s *Store) Customers() int {
	return len(s.customers)
}

// Resolve maps a completed slot set to a refund decision.
//
// A customer matches on case-insensitive email plus exact last4; the order
// matches on order number. First match wins in dataset order. A missing
// customer and a missing order for a matched customer both resolve to the
// same error decision; the resolver does not distinguish them.
func (s *Store) Resolve(email, last4 string, orderNumber int) Decision {
	for _, cust := range s.customers {
		if !strings.EqualFold(cust.Email, email) || cust.Last4 != last4 {
			continue
		}
		for _, order := range cust.Orders {
			if order.OrderNumber != orderNumber {
				continue
			}
			if order.Eligible {
				return Decision{
					Status:   StatusApproved,
					RefundID: refundIDPrefix + order.OrderID,
					Amount:   order.Total,
				}
			}
			return Decision{
				Status: StatusDenied,
				Reason: reasonNotEligible,
			}
		}
		break
	}

	return Decision{
		Status: StatusError,
		Reason: reasonNotFound,
	}
}
