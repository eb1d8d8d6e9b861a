package controllers

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/cache"
	"github.com/simplify-ai/simplify/internal/pkg/env"
	"github.com/simplify-ai/simplify/internal/pkg/middleware"
	"github.com/simplify-ai/simplify/internal/pkg/session"
	"github.com/simplify-ai/simplify/internal/pkg/usercontext"
)

const otpTTL = 10 * time.Minute

type requestCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyCodeRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Code       string `json:"code" validate:"required,len=6"`
	CustomerID string `json:"customer_id"`
}

func otpKey(email string) string {
	return "otp:" + email
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HandleRequestLoginCode mails a one-time login code. In development the code
// is echoed back so the flow works without an SMTP server.
func (a *API) HandleRequestLoginCode(c *fiber.Ctx) error {
	var req requestCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "a valid email is required")
	}
	email := normalizeEmail(req.Email)

	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return internalError(c, "could not generate login code")
	}
	code := fmt.Sprintf("%06d", n.Int64())

	if err := cache.Set(otpKey(email), code, otpTTL); err != nil {
		return internalError(c, "could not store login code")
	}

	body := fmt.Sprintf("Your login code is %s. It expires in %d minutes.", code, int(otpTTL.Minutes()))
	if err := a.Mailer.Send(email, "Your login code", body); err != nil {
		log.Errorf("[Auth] login code mail to %s failed: %v", email, err)
		if !env.IsDev() {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "could not send login code"})
		}
	}

	resp := fiber.Map{"sent": true}
	if env.IsDev() {
		resp["dev_code"] = code
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// HandleVerifyLoginCode exchanges a valid code for a signed-in session. When
// the email already belongs to another account, the caller's anonymous
// account is folded into it so no credits are stranded.
func (a *API) HandleVerifyLoginCode(c *fiber.Ctx) error {
	var req verifyCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "email and 6-digit code are required")
	}
	email := normalizeEmail(req.Email)

	stored, err := cache.Get(otpKey(email))
	if err != nil || stored == "" || stored != strings.TrimSpace(req.Code) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired code"})
	}
	_ = cache.Delete(otpKey(email))

	existing, err := a.Accounts.GetByEmail(email)
	if err != nil && !isNotFound(err) {
		return internalError(c, "could not resolve account")
	}
	if isNotFound(err) {
		existing = nil
	}

	var current *models.Account
	if ctx := usercontext.Get(c); ctx.IsLoggedIn {
		current, err = a.Accounts.GetByID(ctx.AccountID)
	} else if req.CustomerID != "" {
		current, err = a.Accounts.EnsureAccount(req.CustomerID)
	}
	if err != nil {
		return internalError(c, "could not resolve account")
	}

	account, err := a.adoptVerifiedEmail(existing, current, email)
	if err != nil {
		return internalError(c, "could not link account")
	}

	if err := session.SetSessionValue(c, middleware.SessionAccountKey, strconv.FormatUint(uint64(account.ID), 10)); err != nil {
		return internalError(c, "could not establish session")
	}

	balance, err := a.balanceSnapshot(account.ID)
	if err != nil {
		return internalError(c, "could not load balance")
	}
	return c.JSON(fiber.Map{
		"account": fiber.Map{
			"customer_id": account.CustomerID,
			"email":       account.Email,
			"channel":     account.Channel,
		},
		"balance": balance,
	})
}

// adoptVerifiedEmail decides which account the verified email ends up on.
// The verified identity's owner always wins; a different browser account
// merges into it.
func (a *API) adoptVerifiedEmail(existing, current *models.Account, email string) (*models.Account, error) {
	switch {
	case existing == nil && current == nil:
		fresh, err := a.Accounts.EnsureAccount(newCustomerID())
		if err != nil {
			return nil, err
		}
		return a.Accounts.LinkEmail(fresh.ID, email)
	case existing == nil:
		return a.Accounts.LinkEmail(current.ID, email)
	case current == nil || current.ID == existing.ID:
		return existing, nil
	default:
		if err := a.Accounts.Merge(current.ID, existing.ID); err != nil {
			return nil, err
		}
		return a.Accounts.GetByID(existing.ID)
	}
}

// HandleLogout drops the signed-in session. The anonymous customer id in the
// client keeps working afterwards.
func (a *API) HandleLogout(c *fiber.Ctx) error {
	if err := session.SetSessionValue(c, middleware.SessionAccountKey, ""); err != nil {
		return internalError(c, "could not clear session")
	}
	return c.JSON(fiber.Map{"logged_out": true})
}
