package controllers

import (
	"regexp"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/simplify-ai/simplify/internal/pkg/cache"
	"github.com/simplify-ai/simplify/internal/pkg/ledger"
	"github.com/simplify-ai/simplify/internal/pkg/usercontext"
)

var eventNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,48}$`)

type trackEventRequest struct {
	EventName  string                 `json:"event_name" validate:"required"`
	CustomerID string                 `json:"customer_id"`
	SessionID  string                 `json:"session_id"`
	Payload    map[string]interface{} `json:"payload"`
}

// HandleTrackEvent records a client-side funnel event as an audit fact and
// bumps its live counter. Anonymous events (no session, no customer id) are
// stored without an account reference.
func (a *API) HandleTrackEvent(c *fiber.Ctx) error {
	var req trackEventRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(req); err != nil || !eventNamePattern.MatchString(req.EventName) {
		return badRequest(c, "event_name must match [a-z0-9_-]{1,48}")
	}

	var accountID *uint
	if ctx := usercontext.Get(c); ctx.IsLoggedIn {
		accountID = &ctx.AccountID
	} else if req.CustomerID != "" {
		account, err := a.Accounts.EnsureAccount(req.CustomerID)
		if err != nil {
			return internalError(c, "could not resolve account")
		}
		accountID = &account.ID
	}

	if err := ledger.RecordAudit(a.DB, "track:"+req.EventName, accountID, req.SessionID, req.Payload); err != nil {
		return internalError(c, "could not record event")
	}

	// Live counters are best-effort; the audit row is the durable record.
	if _, err := cache.Incr("metrics:events:" + req.EventName); err != nil {
		log.Warnf("[Events] counter bump failed for %s: %v", req.EventName, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"recorded": true})
}
