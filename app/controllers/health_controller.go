package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HandleHealth is the liveness probe plus a quick view of which external
// collaborators are configured.
func (a *API) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":            "ok",
		"time":              time.Now().UTC(),
		"stripe_configured": a.Cfg.Stripe.SecretKey != "",
		"ai_configured":     a.Cfg.OpenAI.APIKey != "",
		"smtp_configured":   a.Cfg.SMTP.Host != "",
		"recovery_running":  a.Recovery.IsRunning(),
	})
}
