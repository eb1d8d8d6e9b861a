package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	gothfiber "github.com/shareed2k/goth_fiber"
	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/middleware"
	"github.com/simplify-ai/simplify/internal/pkg/session"
)

// HandleGoogleLogin starts the Google OAuth flow.
func (a *API) HandleGoogleLogin(c *fiber.Ctx) error {
	if err := gothfiber.BeginAuthHandler(c); err != nil {
		log.Errorf("[OAuth] begin auth failed: %v", err)
		return internalError(c, "could not start Google login")
	}
	return nil
}

// HandleGoogleCallback completes the OAuth flow, resolving the verified
// Google identity to a local account with the same merge semantics as email
// login: the identity's existing owner wins, the browser account folds in.
func (a *API) HandleGoogleCallback(c *fiber.Ctx) error {
	user, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		log.Warnf("[OAuth] callback rejected: %v", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Google login failed"})
	}

	owner, err := a.Accounts.GetByGoogleSub(user.UserID)
	if err != nil && !isNotFound(err) {
		return internalError(c, "could not resolve account")
	}
	if isNotFound(err) {
		owner = nil
	}
	if owner == nil && user.Email != "" {
		owner, err = a.Accounts.GetByEmail(normalizeEmail(user.Email))
		if err != nil && !isNotFound(err) {
			return internalError(c, "could not resolve account")
		}
		if isNotFound(err) {
			owner = nil
		}
	}

	current := a.currentFromSession(c)

	account := owner
	switch {
	case owner == nil && current == nil:
		fresh, err := a.Accounts.EnsureAccount(newCustomerID())
		if err != nil {
			return internalError(c, "could not create account")
		}
		account = fresh
	case owner == nil:
		account = current
	case current != nil && current.ID != owner.ID:
		if err := a.Accounts.Merge(current.ID, owner.ID); err != nil {
			return internalError(c, "could not merge accounts")
		}
	}

	account, err = a.Accounts.LinkGoogle(account.ID, user.UserID, user.Email, user.Name)
	if err != nil {
		return internalError(c, "could not link Google identity")
	}

	if err := session.SetSessionValue(c, middleware.SessionAccountKey, strconv.FormatUint(uint64(account.ID), 10)); err != nil {
		return internalError(c, "could not establish session")
	}
	return c.Redirect(a.Cfg.AppBaseURL+"/?login=success", fiber.StatusFound)
}

// currentFromSession reads the signed-in account directly from the session
// store. The account-context middleware skips /auth/ paths, so the callback
// resolves it here.
func (a *API) currentFromSession(c *fiber.Ctx) *models.Account {
	raw := session.GetSessionValue(c, middleware.SessionAccountKey)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	account, err := a.Accounts.GetByID(uint(id))
	if err != nil {
		return nil
	}
	return account
}
