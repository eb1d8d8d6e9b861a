package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/simplify-ai/simplify/app/controllers"
	"github.com/simplify-ai/simplify/internal/pkg/middleware"
)

type ApiRouter struct {
	api *controllers.API
}

func NewApiRouter(api *controllers.API) *ApiRouter {
	return &ApiRouter{api: api}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := h.api

	app.Use(middleware.AccountContext(api.Accounts))

	app.Get("/healthz", api.HandleHealth)

	// Raw-body route; must not sit behind the rate limiter.
	app.Post("/webhooks/stripe", api.HandleStripeWebhook)

	v1 := app.Group("/api/v1", limiter.New(limiter.Config{Max: 120}))

	v1.Get("/plans", api.HandlePlans)
	v1.Post("/checkout", api.HandleCheckout)
	v1.Get("/checkout/:id", api.HandleCheckoutStatus)
	v1.Get("/balance", api.HandleBalance)
	v1.Post("/generate", api.HandleGenerate)
	v1.Post("/events", api.HandleTrackEvent)

	v1.Post("/auth/email/request-code", api.HandleRequestLoginCode)
	v1.Post("/auth/email/verify", api.HandleVerifyLoginCode)
	v1.Post("/auth/logout", api.HandleLogout)

	// OAuth endpoints live outside /api/v1 so the provider callback URL stays
	// short; goth keeps its own state store on these paths.
	app.Get("/auth/google", api.HandleGoogleLogin)
	app.Get("/auth/google/callback", api.HandleGoogleCallback)

	admin := v1.Group("/admin", middleware.RequireAdmin())
	admin.Post("/grant", api.HandleAdminGrant)
	admin.Post("/reconcile/:id", api.HandleAdminReconcileSession)
	admin.Post("/reconcile", api.HandleAdminReconcileBatch)
	admin.Post("/recovery/run", api.HandleAdminRecoveryRun)
}
