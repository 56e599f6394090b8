package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailvault/dto"
	"github.com/customeros/mailvault/interfaces"
	mverrors "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/tracing"
)

// AccountsHandler serves the account management endpoints. Credentials
// travel in request bodies only; responses never carry them.
type AccountsHandler struct {
	accounts interfaces.AccountsService
}

func NewAccountsHandler(accounts interfaces.AccountsService) *AccountsHandler {
	return &AccountsHandler{accounts: accounts}
}

// List returns every enrolled account
func (h *AccountsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.List")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		accounts, err := h.accounts.ListAccounts(ctx)
		if err != nil {
			respondWithError(c, span, statusFor(err), "failed to list accounts", err)
			return
		}

		c.JSON(http.StatusOK, accounts)
	}
}

// Create enrolls a new account
func (h *AccountsHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.Create")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var input dto.AccountInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondWithError(c, span, http.StatusBadRequest, "invalid request body", err)
			return
		}

		account, err := h.accounts.CreateAccount(ctx, &input)
		if err != nil {
			respondWithError(c, span, statusFor(err), "failed to create account", err)
			return
		}

		c.JSON(http.StatusCreated, account)
	}
}

// Get returns one account by id
func (h *AccountsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, c.Param("id"))

		account, err := h.accounts.GetAccount(ctx, c.Param("id"))
		if err != nil {
			respondWithError(c, span, statusFor(err), "failed to get account", err)
			return
		}

		c.JSON(http.StatusOK, account)
	}
}

// Update applies the non-empty fields of the input to an account
func (h *AccountsHandler) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.Update")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, c.Param("id"))

		var input dto.AccountInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondWithError(c, span, http.StatusBadRequest, "invalid request body", err)
			return
		}

		account, err := h.accounts.UpdateAccount(ctx, c.Param("id"), &input)
		if err != nil {
			respondWithError(c, span, statusFor(err), "failed to update account", err)
			return
		}

		c.JSON(http.StatusOK, account)
	}
}

// Delete removes an account, its credentials and its run history. Archived
// mail stays on disk.
func (h *AccountsHandler) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.Delete")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, c.Param("id"))

		id := c.Param("id")
		if err := h.accounts.DeleteAccount(ctx, id); err != nil {
			respondWithError(c, span, statusFor(err), "failed to delete account", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "account deleted", "id": id})
	}
}

// Enable includes the account in scheduled and bulk backups again
func (h *AccountsHandler) Enable() gin.HandlerFunc {
	return h.setEnabled(true, "account enabled")
}

// Disable excludes the account from scheduled and bulk backups
func (h *AccountsHandler) Disable() gin.HandlerFunc {
	return h.setEnabled(false, "account disabled")
}

func (h *AccountsHandler) setEnabled(enabled bool, status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.SetEnabled")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, c.Param("id"))

		id := c.Param("id")
		if err := h.accounts.SetEnabled(ctx, id, enabled); err != nil {
			respondWithError(c, span, statusFor(err), "failed to update account", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": status, "id": id})
	}
}

// TestConnection dials the account's endpoint, authenticates and logs out.
// An upstream failure is a 502, not a 500: the vault itself is healthy.
func (h *AccountsHandler) TestConnection() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.TestConnection")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, c.Param("id"))

		if err := h.accounts.TestConnection(ctx, c.Param("id")); err != nil {
			if errors.Is(err, mverrors.ErrAccountNotFound) {
				respondWithError(c, span, http.StatusNotFound, "failed to test connection", err)
				return
			}
			respondWithError(c, span, http.StatusBadGateway, "connection test failed", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "connection ok"})
	}
}
