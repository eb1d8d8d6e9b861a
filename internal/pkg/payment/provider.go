package payment

import (
	"context"
	"errors"
)

// ErrUnavailable marks soft provider failures. Callers on the request path
// degrade to last-known local state instead of failing.
var ErrUnavailable = errors.New("payment provider unavailable")

// CheckoutParams describes the checkout session to create.
type CheckoutParams struct {
	Mode              string
	PriceID           string
	Label             string
	AmountCents       int64
	Currency          string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
}

// CheckoutSession is the provider's view of one purchase attempt.
type CheckoutSession struct {
	ID                string
	URL               string
	Status            string
	PaymentStatus     string
	Customer          string
	Subscription      string
	AmountTotal       int64
	Currency          string
	ClientReferenceID string
	Metadata          map[string]string
}

// Paid reports whether the provider confirmed payment. Only this signal is
// trusted; client-declared success never is.
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

// Provider is the payment collaborator consumed by checkout, reconciliation
// and the recovery sweep.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
}
