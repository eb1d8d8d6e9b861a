package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/simplify-ai/simplify/internal/pkg/ledger"
	"github.com/simplify-ai/simplify/internal/pkg/session"
	"github.com/simplify-ai/simplify/internal/pkg/usercontext"
)

// SessionAccountKey is the session field holding the signed-in account id.
const SessionAccountKey = "account_id"

// AccountContext resolves the signed-in account (if any) from the session and
// attaches it to the request. Anonymous requests pass through with an empty
// context; the core never reaches into request-scoped globals itself.
func AccountContext(accounts *ledger.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Goth keeps its own session store on the OAuth routes.
		if strings.HasPrefix(c.Path(), "/auth/") {
			return c.Next()
		}

		raw := session.GetSessionValue(c, SessionAccountKey)
		if raw == "" {
			return c.Next()
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c.Next()
		}

		account, err := accounts.GetByID(uint(id))
		if err != nil {
			// Stale session (merged-away account); drop it.
			_ = session.SetSessionValue(c, SessionAccountKey, "")
			return c.Next()
		}

		usercontext.Set(c, usercontext.AccountContext{
			AccountID:  account.ID,
			CustomerID: account.CustomerID,
			IsLoggedIn: true,
			IsAdmin:    account.IsAdmin(),
		})
		return c.Next()
	}
}

// RequireAdmin rejects requests from non-admin accounts.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !usercontext.IsAdmin(c) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "admin access required"})
		}
		return c.Next()
	}
}
