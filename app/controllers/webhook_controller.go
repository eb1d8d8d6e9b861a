package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/simplify-ai/simplify/internal/pkg/payment"
	"github.com/simplify-ai/simplify/internal/pkg/webhooks"
)

// HandleStripeWebhook verifies, parses and applies one provider event.
// A 500 makes the provider redeliver; the dedup row keeps redelivery safe.
func (a *API) HandleStripeWebhook(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.BodyRaw()...)

	if !payment.VerifyStripeWebhookSignature(raw, c.Get("Stripe-Signature"), a.Cfg.Stripe.WebhookSecret, time.Now()) {
		log.Warn("[Webhook] rejected event with invalid signature")
		return badRequest(c, "invalid signature")
	}

	event, err := webhooks.ParseEvent(raw)
	if err != nil {
		return badRequest(c, "malformed event payload")
	}

	outcome, err := a.Hooks.Process(event, raw, true)
	if err != nil {
		log.Errorf("[Webhook] processing %s (%s) failed: %v", event.ID, event.Type, err)
		return internalError(c, "event processing failed")
	}

	return c.JSON(fiber.Map{
		"received":  true,
		"duplicate": outcome == webhooks.OutcomeDeduplicated,
		"ignored":   outcome == webhooks.OutcomeIgnored,
	})
}
