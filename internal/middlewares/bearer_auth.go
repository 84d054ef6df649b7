package middlewares

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dqtran/medauth/internal/token"
)

const authClaimsKey = "authClaims"

// BearerAuth validates the Authorization header and stores the access token
// claims for downstream handlers. Access tokens are verified by signature
// and expiry alone; revocation applies to refresh tokens.
func BearerAuth(tokenService *token.Service) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		header := ctx.Get(fiber.HeaderAuthorization)
		bearer, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || bearer == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(errorBody{
				Error:   "invalid_token",
				Message: "Missing bearer token.",
			})
		}
		claims, err := tokenService.Validate(bearer, token.KindAccess)
		if err != nil {
			return err
		}
		ctx.Locals(authClaimsKey, claims)
		return ctx.Next()
	}
}

// AuthClaims returns the validated access token claims, or nil outside an
// authenticated route.
func AuthClaims(ctx *fiber.Ctx) *token.Claims {
	claims, _ := ctx.Locals(authClaimsKey).(*token.Claims)
	return claims
}
