package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dqtran/medauth/internal/audit"
	"github.com/dqtran/medauth/internal/btg"
	"github.com/dqtran/medauth/internal/middlewares"
)

type BtgHandler struct {
	btgService *btg.BtgService
}

func (h *BtgHandler) PostGrant(ctx *fiber.Ctx) error {
	var req btgGrantRequest
	if err := ctx.BodyParser(&req); err != nil || req.PatientID == 0 {
		return fiber.ErrBadRequest
	}
	claims := middlewares.AuthClaims(ctx)
	accountID, err := claims.AccountID()
	if err != nil {
		return err
	}

	consent, err := h.btgService.Grant(ctx.Context(), btg.GrantOptions{
		GrantorID: accountID,
		PatientID: req.PatientID,
		Minutes:   req.Minutes,
		Reason:    req.Reason,
	})
	if err != nil {
		return err
	}

	audit.RecordBtg(ctx.Context(), audit.BtgRecord{
		AccountID: accountID,
		PatientID: req.PatientID,
		Granted:   true,
		Reason:    consent.Reason,
		IP:        ctx.IP(),
		UserAgent: string(ctx.Request().Header.UserAgent()),
	})
	return ctx.JSON(btgGrantResponse{
		ConsentID: consent.ID,
		ExpiresAt: consent.ExpiresAt,
	})
}

func (h *BtgHandler) GetActiveGrants(ctx *fiber.Ctx) error {
	claims := middlewares.AuthClaims(ctx)
	accountID, err := claims.AccountID()
	if err != nil {
		return err
	}
	consents, err := h.btgService.ActiveGrants(ctx.Context(), accountID)
	if err != nil {
		return err
	}
	infos := make([]btgConsentInfo, 0, len(consents))
	for _, consent := range consents {
		infos = append(infos, btgConsentInfo{
			ConsentID: consent.ID,
			PatientID: consent.PatientID,
			ExpiresAt: consent.ExpiresAt,
		})
	}
	return ctx.JSON(infos)
}

func NewBtgHandler(btgService *btg.BtgService) *BtgHandler {
	return &BtgHandler{
		btgService: btgService,
	}
}
