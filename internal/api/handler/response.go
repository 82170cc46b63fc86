package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/predictru/backend/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Domain error translation
// ──────────────────────────────────────────────────────────────────────────────

// unauthenticatedErrors map to 401; the rest of the auth family is 403.
var unauthenticatedErrors = []error{
	domain.ErrUnauthorized,
	domain.ErrTokenExpired,
	domain.ErrTokenInvalid,
	domain.ErrInitDataInvalid,
	domain.ErrTelegramIDMissing,
	domain.ErrLoginTokenInvalid,
}

func isUnauthenticated(err error) bool {
	for _, target := range unauthenticatedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// respondDomainError maps a service error onto the HTTP envelope using the
// domain predicates. fallback is the message shown when the error is not a
// domain sentinel, so internals never leak to clients.
func respondDomainError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		respondError(c, http.StatusPaymentRequired, "ERR_INSUFFICIENT_BALANCE", err.Error())
	case errors.Is(err, domain.ErrInsufficientShares):
		respondError(c, http.StatusPaymentRequired, "ERR_INSUFFICIENT_SHARES", err.Error())
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "ERR_CONFLICT", err.Error())
	case isUnauthenticated(err):
		respondError(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", err.Error())
	case domain.IsAuthError(err):
		respondError(c, http.StatusForbidden, "ERR_FORBIDDEN", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", fallback)
	}
}
