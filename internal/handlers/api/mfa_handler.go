package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dqtran/medauth/internal/accounts"
	"github.com/dqtran/medauth/internal/mfa"
	"github.com/dqtran/medauth/internal/middlewares"
	"github.com/dqtran/medauth/model"
)

type MfaHandler struct {
	mfaService     *mfa.MfaService
	accountService *accounts.AccountService
}

func (h *MfaHandler) currentAccount(ctx *fiber.Ctx) (*model.Account, error) {
	claims := middlewares.AuthClaims(ctx)
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, err
	}
	return h.accountService.GetAccountByID(ctx.Context(), accountID)
}

func (h *MfaHandler) PostSetup(ctx *fiber.Ctx) error {
	account, err := h.currentAccount(ctx)
	if err != nil {
		return err
	}
	enrollment, err := h.mfaService.StartSetup(ctx.Context(), account)
	if err != nil {
		return err
	}
	return ctx.JSON(mfaSetupResponse{
		Secret:     enrollment.Secret,
		OtpauthURI: enrollment.OtpauthURI,
	})
}

// PostConfirm flips MFA on and returns the recovery codes. This is the only
// time the codes exist in plaintext.
func (h *MfaHandler) PostConfirm(ctx *fiber.Ctx) error {
	var req mfaConfirmRequest
	if err := ctx.BodyParser(&req); err != nil || req.Code == "" {
		return fiber.ErrBadRequest
	}
	account, err := h.currentAccount(ctx)
	if err != nil {
		return err
	}
	recoveryCodes, err := h.mfaService.ConfirmSetup(ctx.Context(), account, req.Code)
	if err != nil {
		return err
	}
	return ctx.JSON(mfaConfirmResponse{
		Enabled:       true,
		RecoveryCodes: recoveryCodes,
	})
}

func (h *MfaHandler) PostDisable(ctx *fiber.Ctx) error {
	account, err := h.currentAccount(ctx)
	if err != nil {
		return err
	}
	if err := h.mfaService.Disable(ctx.Context(), account); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *MfaHandler) PostRegenerateRecoveryCodes(ctx *fiber.Ctx) error {
	account, err := h.currentAccount(ctx)
	if err != nil {
		return err
	}
	recoveryCodes, err := h.mfaService.RegenerateRecoveryCodes(ctx.Context(), account)
	if err != nil {
		return err
	}
	return ctx.JSON(recoveryCodesResponse{RecoveryCodes: recoveryCodes})
}

func (h *MfaHandler) GetStatus(ctx *fiber.Ctx) error {
	account, err := h.currentAccount(ctx)
	if err != nil {
		return err
	}
	status, err := h.mfaService.GetStatus(ctx.Context(), account)
	if err != nil {
		return err
	}
	return ctx.JSON(mfaStatusResponse{
		Enabled:             status.Enabled,
		ActiveRecoveryCodes: status.ActiveRecoveryCodes,
	})
}

func NewMfaHandler(mfaService *mfa.MfaService, accountService *accounts.AccountService) *MfaHandler {
	return &MfaHandler{
		mfaService:     mfaService,
		accountService: accountService,
	}
}
