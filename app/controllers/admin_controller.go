package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/simplify-ai/simplify/internal/pkg/payment"
	"github.com/simplify-ai/simplify/internal/pkg/reconcile"
	"github.com/simplify-ai/simplify/internal/pkg/recovery"
)

type adminGrantRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
	Credits    int64  `json:"credits" validate:"required,gt=0"`
	Reason     string `json:"reason"`
}

// HandleAdminGrant credits an account out-of-band (support repair).
func (a *API) HandleAdminGrant(c *fiber.Ctx) error {
	var req adminGrantRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "customer_id and a positive credits amount are required")
	}

	account, err := a.Accounts.GetByCustomerID(req.CustomerID)
	if err != nil {
		if isNotFound(err) {
			return notFound(c, "unknown customer")
		}
		return internalError(c, "could not resolve account")
	}

	if err := a.Accounts.Grant(account.ID, req.Credits, ""); err != nil {
		return internalError(c, "could not grant credits")
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

// HandleAdminReconcileSession forces a provider check for one session.
func (a *API) HandleAdminReconcileSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	reconciled, err := a.Reconciler.ReconcileOne(c.UserContext(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrSessionNotFound):
			return notFound(c, "unknown checkout session")
		case errors.Is(err, payment.ErrUnavailable):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payment provider unavailable"})
		default:
			return internalError(c, "reconciliation failed")
		}
	}
	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"reconciled": reconciled,
	})
}

// HandleAdminReconcileBatch sweeps open sessions against the provider.
func (a *API) HandleAdminReconcileBatch(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	results, err := a.Reconciler.ReconcileBatch(c.UserContext(), limit)
	if err != nil {
		return internalError(c, "reconciliation sweep failed")
	}
	return c.JSON(fiber.Map{
		"checked": len(results),
		"results": results,
	})
}

// HandleAdminRecoveryRun triggers an immediate recovery sweep, ignoring the
// per-session schedules. Overlap with a running sweep is rejected.
func (a *API) HandleAdminRecoveryRun(c *fiber.Ctx) error {
	summary, err := a.Recovery.RunOnce(c.UserContext(), true)
	if err != nil {
		if errors.Is(err, recovery.ErrSweepInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "a recovery sweep is already running"})
		}
		return internalError(c, "recovery sweep failed")
	}
	return c.JSON(fiber.Map{
		"scanned":   summary.Scanned,
		"sent":      summary.Sent,
		"skipped":   summary.Skipped,
		"converted": summary.Converted,
		"failed":    summary.Failed,
	})
}
