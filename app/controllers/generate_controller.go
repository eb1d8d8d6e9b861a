package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/simplify-ai/simplify/internal/pkg/ledger"
)

type generateRequest struct {
	Input        string  `json:"input" validate:"required"`
	CustomerID   string  `json:"customer_id"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float32 `json:"temperature" validate:"gte=0,lte=2"`
}

// HandleGenerate runs one paid text simplification. The unit is charged
// before the provider call and rolled back if the call fails, so a provider
// outage never costs the customer anything.
func (a *API) HandleGenerate(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "input is required")
	}

	account, err := a.resolveAccount(c, req.CustomerID)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidCustomerID) {
			return badRequest(c, "customer_id is required")
		}
		return internalError(c, "could not resolve account")
	}

	source, err := a.Accounts.Consume(account.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error": "no free uses or credits remaining",
			})
		}
		return internalError(c, "could not charge the request")
	}

	output, err := a.AI.Simplify(c.UserContext(), req.SystemPrompt, req.Input, req.Temperature)
	if err != nil {
		a.Accounts.RollbackQuietly(account.ID, source)
		log.Errorf("[Generate] provider call failed for account %d: %v", account.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "text generation failed, nothing was charged",
		})
	}

	balance, err := a.balanceSnapshot(account.ID)
	if err != nil {
		return internalError(c, "could not load balance")
	}
	return c.JSON(fiber.Map{
		"output":  output,
		"source":  string(source),
		"balance": balance,
	})
}
