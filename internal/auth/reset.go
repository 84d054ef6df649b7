package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/dqtran/medauth/internal/accounts"
	"github.com/dqtran/medauth/internal/audit"
	"github.com/dqtran/medauth/internal/common"
	"github.com/dqtran/medauth/internal/mail"
	"github.com/dqtran/medauth/internal/store"
	"github.com/dqtran/medauth/params"
)

// ResetRequest is the cached state of one password reset token, stored under
// the token's SHA-256 digest. The cache entry expires with the token; its
// deletion on confirm is the single-use guarantee.
type ResetRequest struct {
	AccountID uint  `json:"accountId" redis:"account_id"`
	IssuedAt  int64 `json:"issuedAt" redis:"issued_at"`
}

// RequestPasswordReset issues a single-use reset token and mails it to the
// account's address. The caller observes the same outcome whether or not
// the principal exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, usernameOrEmail string) error {
	account, err := s.accountService.GetAccountByUsernameOrEmail(ctx, usernameOrEmail)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	resetToken, err := common.GenerateToken(params.ResetTokenBytes)
	if err != nil {
		return err
	}
	request := ResetRequest{
		AccountID: account.ID,
		IssuedAt:  time.Now().UnixMilli(),
	}
	if err := s.resetStore.Set(ctx, common.HashToken(resetToken), request, params.ResetTokenExpiration); err != nil {
		return err
	}

	resetLink := s.baseURL + "/reset-password?token=" + url.QueryEscape(resetToken)
	expireMinutes := int(params.ResetTokenExpiration.Minutes())
	if err := mail.SendResetPasswordLink(s.mailSender, account.Email, resetLink, expireMinutes); err != nil {
		// mail delivery is best effort; failing the request here would leak
		// which principals exist
		slog.Error("Failed to send password reset mail", "accountId", account.ID, "error", err)
	}
	return nil
}

// ConfirmPasswordReset consumes the token exactly once. The cache delete is
// the atomic check-and-consume: a second confirm with the same token finds
// nothing to delete and fails. The new password is validated before the
// delete so a policy rejection leaves the token usable.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, resetToken string, newPassword string) error {
	if err := accounts.ValidatePassword(newPassword); err != nil {
		return err
	}
	tokenHash := common.HashToken(resetToken)
	request, err := s.resetStore.Get(ctx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		return err
	}
	if err := s.resetStore.Delete(ctx, tokenHash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}

	if err := s.accountService.UpdatePassword(ctx, request.AccountID, newPassword); err != nil {
		return err
	}
	if err := s.sessionService.RevokeAllExcept(ctx, request.AccountID, ""); err != nil {
		return err
	}
	if account, err := s.accountService.GetAccountByID(ctx, request.AccountID); err == nil {
		if err := mail.SendPasswordChangedNotice(s.mailSender, account.Email); err != nil {
			slog.Error("Failed to send password changed mail", "accountId", request.AccountID, "error", err)
		}
	}
	audit.RecordAccountEvent(ctx, audit.AccountEventRecord{
		AccountID: request.AccountID,
		EventType: audit.EventTypePasswordReset,
	})
	return nil
}
