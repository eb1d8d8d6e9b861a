package webhooks

import (
	"strconv"

	"github.com/simplify-ai/simplify/internal/pkg/payment"
)

// CheckoutFromProvider converts a session fetched from the provider's status
// API into the shared completion input. Reconciliation and the recovery sweep
// use this so poll-driven completion is byte-for-byte the webhook path.
func CheckoutFromProvider(cs *payment.CheckoutSession) CompletedCheckout {
	in := CompletedCheckout{
		SessionID:          cs.ID,
		PlanID:             cs.Metadata["plan"],
		CustomerRef:        cs.Metadata["customer_id"],
		ClientReferenceID:  cs.ClientReferenceID,
		StripeCustomer:     cs.Customer,
		StripeSubscription: cs.Subscription,
		AmountTotal:        cs.AmountTotal,
		Currency:           cs.Currency,
	}
	if raw, ok := cs.Metadata["credits_granted"]; ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			in.CreditsOverride = &v
		}
	}
	return in
}
