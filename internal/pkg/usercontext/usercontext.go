package usercontext

import "github.com/gofiber/fiber/v2"

const localsKey = "ACCOUNT_CONTEXT"

// AccountContext represents the authenticated account for a request.
type AccountContext struct {
	AccountID  uint   `json:"account_id"`
	CustomerID string `json:"customer_id"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
}

// Set stores the account context on the fiber context.
func Set(c *fiber.Ctx, ctx AccountContext) {
	c.Locals(localsKey, ctx)
}

// Get retrieves the account context from the fiber context, defaulting to an
// anonymous one.
func Get(c *fiber.Ctx) AccountContext {
	if ctx := c.Locals(localsKey); ctx != nil {
		if ac, ok := ctx.(AccountContext); ok {
			return ac
		}
	}
	return AccountContext{}
}

// IsAdmin reports whether the current request is from an admin account.
func IsAdmin(c *fiber.Ctx) bool {
	return Get(c).IsAdmin
}
