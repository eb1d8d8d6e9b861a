package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/ai"
	"github.com/simplify-ai/simplify/internal/pkg/config"
	"github.com/simplify-ai/simplify/internal/pkg/ledger"
	"github.com/simplify-ai/simplify/internal/pkg/mail"
	"github.com/simplify-ai/simplify/internal/pkg/payment"
	"github.com/simplify-ai/simplify/internal/pkg/reconcile"
	"github.com/simplify-ai/simplify/internal/pkg/recovery"
	"github.com/simplify-ai/simplify/internal/pkg/usercontext"
	"github.com/simplify-ai/simplify/internal/pkg/webhooks"
	"gorm.io/gorm"
)

var validate = validator.New()

// API bundles the injected dependencies for all HTTP handlers. Nothing in
// here reads ambient globals; everything arrives through the constructor.
type API struct {
	DB         *gorm.DB
	Cfg        *config.Config
	Accounts   *ledger.Service
	Hooks      *webhooks.Service
	Reconciler *reconcile.Service
	Recovery   *recovery.Manager
	Provider   payment.Provider
	Mailer     mail.Mailer
	AI         ai.Generator
}

func NewAPI(
	db *gorm.DB,
	cfg *config.Config,
	accounts *ledger.Service,
	hooks *webhooks.Service,
	reconciler *reconcile.Service,
	recoveryMgr *recovery.Manager,
	provider payment.Provider,
	mailer mail.Mailer,
	generator ai.Generator,
) *API {
	return &API{
		DB:         db,
		Cfg:        cfg,
		Accounts:   accounts,
		Hooks:      hooks,
		Reconciler: reconciler,
		Recovery:   recoveryMgr,
		Provider:   provider,
		Mailer:     mailer,
		AI:         generator,
	}
}

// resolveAccount returns the acting account: the signed-in one when a session
// exists, otherwise the (lazily created) account for the supplied customer id.
func (a *API) resolveAccount(c *fiber.Ctx, customerID string) (*models.Account, error) {
	if ctx := usercontext.Get(c); ctx.IsLoggedIn {
		return a.Accounts.GetByID(ctx.AccountID)
	}
	if customerID == "" {
		return nil, ledger.ErrInvalidCustomerID
	}
	return a.Accounts.EnsureAccount(customerID)
}

// newCustomerID mints a pseudonymous customer identifier for accounts created
// server-side (e.g. first login without a prior browser id).
func newCustomerID() string {
	return "u-" + uuid.NewString()
}

func (a *API) balanceSnapshot(accountID uint) (fiber.Map, error) {
	ca, err := a.Accounts.Credits(accountID)
	if err != nil {
		return nil, err
	}
	return fiber.Map{
		"credits":             ca.Credits,
		"free_used":           ca.FreeUsed,
		"free_uses":           ca.FreeUses,
		"free_remaining":      ca.FreeRemaining(),
		"total_purchased":     ca.TotalPurchased,
		"total_consumed":      ca.TotalConsumed,
		"subscription_active": ca.SubscriptionActive,
		"plan_tier":           ca.PlanTier,
		"updated_at":          ca.UpdatedAt,
	}, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msg})
}

func internalError(c *fiber.Ctx, msg string) error {
	// Storage errors are never surfaced verbatim.
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
