package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dqtran/medauth/internal/accounts"
	"github.com/dqtran/medauth/internal/auth"
	"github.com/dqtran/medauth/internal/middlewares"
)

type AuthHandler struct {
	authService    *auth.AuthService
	accountService *accounts.AccountService
}

func newTokenPairResponse(pair *auth.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresInSeconds: pair.ExpiresInSeconds,
	}
}

func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if req.ChallengeToken == "" && (req.UsernameOrEmail == "" || req.Password == "") {
		return fiber.ErrBadRequest
	}

	result, err := h.authService.Login(ctx.Context(), auth.LoginOptions{
		UsernameOrEmail: req.UsernameOrEmail,
		Password:        req.Password,
		MfaCode:         req.MfaCode,
		ChallengeToken:  req.ChallengeToken,
		ClientIP:        ctx.IP(),
		UserAgent:       string(ctx.Request().Header.UserAgent()),
	})
	if err != nil {
		return err
	}
	if result.MfaRequired {
		return ctx.JSON(mfaRequiredResponse{
			MfaRequired:    true,
			ChallengeToken: result.ChallengeToken,
		})
	}
	return ctx.JSON(newTokenPairResponse(result.Tokens))
}

func (h *AuthHandler) PostRefresh(ctx *fiber.Ctx) error {
	var req refreshRequest
	if err := ctx.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return fiber.ErrBadRequest
	}
	pair, err := h.authService.Refresh(ctx.Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return ctx.JSON(newTokenPairResponse(pair))
}

func (h *AuthHandler) PostLogout(ctx *fiber.Ctx) error {
	claims := middlewares.AuthClaims(ctx)
	if err := h.authService.Logout(ctx.Context(), claims.SessionID); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) PostChangePassword(ctx *fiber.Ctx) error {
	var req changePasswordRequest
	if err := ctx.BodyParser(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		return fiber.ErrBadRequest
	}
	claims := middlewares.AuthClaims(ctx)
	accountID, err := claims.AccountID()
	if err != nil {
		return err
	}
	if err := h.authService.ChangePassword(ctx.Context(), accountID, claims.SessionID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) PostPasswordResetRequest(ctx *fiber.Ctx) error {
	var req passwordResetRequest
	if err := ctx.BodyParser(&req); err != nil || req.UsernameOrEmail == "" {
		return fiber.ErrBadRequest
	}
	if err := h.authService.RequestPasswordReset(ctx.Context(), req.UsernameOrEmail); err != nil {
		return err
	}
	// identical response whether or not the principal exists
	return ctx.SendStatus(fiber.StatusAccepted)
}

func (h *AuthHandler) PostPasswordResetConfirm(ctx *fiber.Ctx) error {
	var req passwordResetConfirmRequest
	if err := ctx.BodyParser(&req); err != nil || req.Token == "" || req.NewPassword == "" {
		return fiber.ErrBadRequest
	}
	if err := h.authService.ConfirmPasswordReset(ctx.Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) PostRegister(ctx *fiber.Ctx) error {
	var req registerRequest
	if err := ctx.BodyParser(&req); err != nil || req.Username == "" || req.Email == "" {
		return fiber.ErrBadRequest
	}
	account, err := h.accountService.CreateAccount(ctx.Context(), accounts.CreateAccountOptions{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     "clinician",
	})
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(registerResponse{
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
	})
}

func NewAuthHandler(authService *auth.AuthService, accountService *accounts.AccountService) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		accountService: accountService,
	}
}
