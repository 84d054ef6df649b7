package middlewares

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dqtran/medauth/internal/accounts"
	"github.com/dqtran/medauth/internal/auth"
	"github.com/dqtran/medauth/internal/btg"
	"github.com/dqtran/medauth/internal/mfa"
	"github.com/dqtran/medauth/internal/token"
)

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	PatientID uint   `json:"patientId,omitempty"`
}

// ErrorHandler is the single translator from domain error kinds to transport
// responses. Credential and MFA failures keep their generic messages;
// anything unexpected becomes an opaque 500.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	var accessDenied *btg.AccessDeniedError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return ctx.Status(fiber.StatusUnauthorized).JSON(errorBody{
			Error:   "invalid_credentials",
			Message: "Invalid username or password.",
		})
	case errors.Is(err, auth.ErrInvalidMfaCode), errors.Is(err, mfa.ErrCodeVerifyFailed):
		return ctx.Status(fiber.StatusUnauthorized).JSON(errorBody{
			Error:   "invalid_mfa_code",
			Message: "The verification code is not valid.",
		})
	case errors.Is(err, auth.ErrInvalidOrExpiredToken),
		errors.Is(err, token.ErrTokenInvalid),
		errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrTokenKindMismatch):
		return ctx.Status(fiber.StatusUnauthorized).JSON(errorBody{
			Error:   "invalid_token",
			Message: "The token is invalid or expired.",
		})
	case errors.Is(err, accounts.ErrAccountDisabled):
		return ctx.Status(fiber.StatusForbidden).JSON(errorBody{
			Error:   "account_disabled",
			Message: "This account is disabled.",
		})
	case errors.As(err, &accessDenied):
		return ctx.Status(fiber.StatusForbidden).JSON(errorBody{
			Error:     "btg_access_denied",
			Message:   accessDenied.Reason,
			PatientID: accessDenied.PatientID,
		})
	case errors.Is(err, mfa.ErrAlreadyEnabled):
		return ctx.Status(fiber.StatusConflict).JSON(errorBody{
			Error:   "mfa_already_enabled",
			Message: "Two-factor authentication is already enabled.",
		})
	case errors.Is(err, mfa.ErrNotEnabled), errors.Is(err, mfa.ErrNoPendingSecret),
		errors.Is(err, btg.ErrInvalidGrantMinutes),
		errors.Is(err, btg.ErrReasonTooShort),
		errors.Is(err, accounts.ErrPasswordTooShort):
		return ctx.Status(fiber.StatusBadRequest).JSON(errorBody{
			Error:   "validation_failed",
			Message: err.Error(),
		})
	case errors.Is(err, accounts.ErrUsernameTaken), errors.Is(err, accounts.ErrEmailRegistered):
		return ctx.Status(fiber.StatusConflict).JSON(errorBody{
			Error:   "validation_failed",
			Message: err.Error(),
		})
	case errors.Is(err, accounts.ErrAccountNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(errorBody{
			Error:   "resource_not_found",
			Message: "Resource not found.",
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return ctx.Status(fiberErr.Code).JSON(errorBody{
			Error:   "request_failed",
			Message: fiberErr.Message,
		})
	}

	slog.Error("unhandled error", "path", ctx.Path(), "error", err)
	return ctx.Status(fiber.StatusInternalServerError).JSON(errorBody{
		Error:   "internal_error",
		Message: "Internal server error.",
	})
}
