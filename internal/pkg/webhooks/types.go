package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Provider event types the core reacts to. Anything else is recorded and
// acknowledged without touching the ledger.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaid         = "invoice.paid"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Outcome classifies what processing an event did.
type Outcome string

const (
	OutcomeProcessed    Outcome = "processed"
	OutcomeDeduplicated Outcome = "deduplicated"
	OutcomeIgnored      Outcome = "ignored"
)

// Event is the provider's envelope: an id, a type tag and a type-dependent
// payload. Payloads are decoded into their concrete shape per event kind;
// shapes that do not match are rejected, never silently defaulted.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSessionPayload is the object carried by checkout.session.completed.
type CheckoutSessionPayload struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
}

// InvoicePayload is the object carried by invoice.paid.
type InvoicePayload struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription"`
	BillingReason string `json:"billing_reason"`
}

// SubscriptionPayload is the object carried by customer.subscription.* events.
type SubscriptionPayload struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Customer string `json:"customer"`
}

// ParseEvent decodes the webhook envelope.
func ParseEvent(raw []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if event.ID == "" {
		return nil, errors.New("webhook event has no id")
	}
	if event.Type == "" {
		return nil, errors.New("webhook event has no type")
	}
	return &event, nil
}

func (e *Event) checkoutSession() (*CheckoutSessionPayload, error) {
	var p CheckoutSessionPayload
	if err := json.Unmarshal(e.Data.Object, &p); err != nil {
		return nil, fmt.Errorf("malformed checkout session object: %w", err)
	}
	if p.ID == "" {
		return nil, errors.New("checkout session object has no id")
	}
	return &p, nil
}

func (e *Event) invoice() (*InvoicePayload, error) {
	var p InvoicePayload
	if err := json.Unmarshal(e.Data.Object, &p); err != nil {
		return nil, fmt.Errorf("malformed invoice object: %w", err)
	}
	if p.ID == "" || p.Customer == "" {
		return nil, errors.New("invoice object is missing id or customer")
	}
	return &p, nil
}

func (e *Event) subscription() (*SubscriptionPayload, error) {
	var p SubscriptionPayload
	if err := json.Unmarshal(e.Data.Object, &p); err != nil {
		return nil, fmt.Errorf("malformed subscription object: %w", err)
	}
	if p.ID == "" {
		return nil, errors.New("subscription object has no id")
	}
	return &p, nil
}
