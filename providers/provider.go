package providers

import (
	"context"
	"fmt"

	"github.com/voyago/fulfillment/models"
)

// SupplierProvider is the black-box interface to an external reservation
// system. Calls are not idempotent and may fail or time out; callers wrap
// them with the action guard, never retry them directly.
type SupplierProvider interface {
	Name() string
	// CreateOrder books the held offer with the supplier and returns the
	// supplier's confirmation reference.
	CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)
}

type OrderRequest struct {
	BookingID   string      `json:"booking_id"`
	BookingCode string      `json:"booking_code"`
	OfferRef    string      `json:"offer_ref"`
	Meta        models.JSON `json:"meta,omitempty"`
}

type OrderResult struct {
	ConfirmationRef string      `json:"confirmation_ref"`
	Status          string      `json:"status"`
	Raw             models.JSON `json:"raw,omitempty"`
}

// Registry resolves suppliers by name.
type Registry struct {
	providers map[string]SupplierProvider
}

func NewRegistry(providers ...SupplierProvider) *Registry {
	r := &Registry{providers: make(map[string]SupplierProvider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (SupplierProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown supplier: %s", name)
	}
	return p, nil
}
