package controllers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/ledger"
	"github.com/simplify-ai/simplify/internal/pkg/payment"
	"github.com/simplify-ai/simplify/internal/pkg/plans"
	"github.com/simplify-ai/simplify/internal/pkg/reconcile"
)

type checkoutRequest struct {
	Plan       string `json:"plan" validate:"required"`
	CustomerID string `json:"customer_id"`
	Channel    string `json:"channel"`
}

// HandlePlans lists the purchasable offers.
func (a *API) HandlePlans(c *fiber.Ctx) error {
	out := make([]fiber.Map, 0, len(a.Cfg.Plans))
	for _, tier := range []plans.Tier{plans.TierOne, plans.TierPack, plans.TierSub} {
		plan, ok := a.Cfg.Plan(tier)
		if !ok {
			continue
		}
		out = append(out, fiber.Map{
			"id":           string(plan.ID),
			"label":        plan.Label,
			"mode":         plan.Mode,
			"credits":      plan.Credits,
			"amount_cents": plan.AmountCents,
		})
	}
	return c.JSON(fiber.Map{
		"currency": a.Cfg.Currency,
		"plans":    out,
	})
}

// HandleCheckout creates a provider checkout session and records the local
// shadow row. The row starts in "created"; only a provider-confirmed payment
// ever moves it to "completed".
func (a *API) HandleCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "plan is required")
	}

	tier := plans.Normalize(req.Plan)
	plan, ok := a.Cfg.Plan(tier)
	if !ok {
		return badRequest(c, fmt.Sprintf("unknown plan: %s", req.Plan))
	}

	account, err := a.resolveAccount(c, req.CustomerID)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidCustomerID) {
			return badRequest(c, "customer_id is required")
		}
		return internalError(c, "could not resolve account")
	}

	channel := models.AcquisitionOrganic
	if req.Channel == models.AcquisitionPaid {
		channel = models.AcquisitionPaid
	}

	cs, err := a.Provider.CreateCheckoutSession(c.UserContext(), payment.CheckoutParams{
		Mode:              plan.Mode,
		PriceID:           plan.StripePriceID,
		Label:             plan.Label,
		AmountCents:       plan.AmountCents,
		Currency:          a.Cfg.Currency,
		SuccessURL:        a.Cfg.AppBaseURL + "/?checkout=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         a.Cfg.AppBaseURL + "/?checkout=cancelled",
		ClientReferenceID: account.CustomerID,
		Metadata: map[string]string{
			"customer_id":     account.CustomerID,
			"plan":            string(tier),
			"credits_granted": fmt.Sprintf("%d", plan.Credits),
		},
	})
	if err != nil {
		if errors.Is(err, payment.ErrUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payment provider unavailable"})
		}
		log.Errorf("[Pay] checkout session creation failed: %v", err)
		return internalError(c, "could not create checkout session")
	}

	session := models.PaymentSession{
		ID:                 cs.ID,
		AccountID:          account.ID,
		CustomerID:         account.CustomerID,
		PlanID:             string(tier),
		Status:             models.SessionStatusCreated,
		AmountTotal:        plan.AmountCents,
		Currency:           a.Cfg.Currency,
		CreditsGranted:     plan.Credits,
		AcquisitionChannel: channel,
	}
	if err := a.DB.Create(&session).Error; err != nil {
		return internalError(c, "could not record checkout session")
	}

	return c.JSON(fiber.Map{
		"session_id":   cs.ID,
		"checkout_url": cs.URL,
		"plan":         string(tier),
	})
}

// HandleBalance returns the caller's credit snapshot.
func (a *API) HandleBalance(c *fiber.Ctx) error {
	account, err := a.resolveAccount(c, c.Query("customer_id"))
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidCustomerID) {
			return badRequest(c, "customer_id is required")
		}
		return internalError(c, "could not resolve account")
	}

	balance, err := a.balanceSnapshot(account.ID)
	if err != nil {
		return internalError(c, "could not load balance")
	}
	return c.JSON(fiber.Map{
		"customer_id": account.CustomerID,
		"balance":     balance,
	})
}

// HandleCheckoutStatus reports a session's state, reconciling against the
// provider first when it is still open. A provider outage degrades to the
// last-known local state instead of failing the lookup.
func (a *API) HandleCheckoutStatus(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return badRequest(c, "session id is required")
	}

	degraded := false
	if _, err := a.Reconciler.ReconcileOne(c.UserContext(), sessionID); err != nil {
		switch {
		case errors.Is(err, reconcile.ErrSessionNotFound):
			return notFound(c, "unknown checkout session")
		case errors.Is(err, payment.ErrUnavailable):
			degraded = true
		default:
			log.Errorf("[Pay] status reconcile failed for %s: %v", sessionID, err)
			degraded = true
		}
	}

	var session models.PaymentSession
	if err := a.DB.Where("id = ?", sessionID).First(&session).Error; err != nil {
		if isNotFound(err) {
			return notFound(c, "unknown checkout session")
		}
		return internalError(c, "could not load checkout session")
	}

	return c.JSON(fiber.Map{
		"session_id":      session.ID,
		"status":          session.Status,
		"plan":            session.PlanID,
		"granted":         session.Granted,
		"credits_granted": session.CreditsGranted,
		"degraded":        degraded,
	})
}
