package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dqtran/medauth/internal/accounts"
	"github.com/dqtran/medauth/internal/audit"
	"github.com/dqtran/medauth/internal/mail"
	"github.com/dqtran/medauth/internal/mfa"
	"github.com/dqtran/medauth/internal/sessions"
	"github.com/dqtran/medauth/internal/store"
	"github.com/dqtran/medauth/internal/token"
	"github.com/dqtran/medauth/model"
	"github.com/dqtran/medauth/params"
)

// dummyHash absorbs the bcrypt cost for unknown principals so a login probe
// cannot tell a missing account from a wrong password by response time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("medauth-timing-pad"), bcrypt.DefaultCost)

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresInSeconds int64
}

// LoginResult is either an issued token pair or an MFA challenge.
type LoginResult struct {
	MfaRequired    bool
	ChallengeToken string
	Tokens         *TokenPair
}

type LoginOptions struct {
	UsernameOrEmail string
	Password        string
	MfaCode         string
	ChallengeToken  string
	ClientIP        string
	UserAgent       string
}

// AuthService composes the token, session and MFA services into the login,
// refresh and password reset protocol.
type AuthService struct {
	accountService *accounts.AccountService
	sessionService *sessions.SessionService
	tokenService   *token.Service
	mfaService     *mfa.MfaService
	incidentLog    *audit.IncidentLog
	resetStore     store.Store[ResetRequest]
	mailSender     mail.MailSender
	baseURL        string
}

// Login runs the two-step authentication state machine. With MFA disabled a
// valid password yields tokens directly. With MFA enabled and no code, the
// caller gets a short-lived challenge token bound to the account; no server
// state survives between the two steps besides the token's own claims.
func (s *AuthService) Login(ctx context.Context, opts LoginOptions) (*LoginResult, error) {
	if opts.ChallengeToken != "" {
		return s.completeMfaChallenge(ctx, opts)
	}

	account, err := s.accountService.GetAccountByUsernameOrEmail(ctx, opts.UsernameOrEmail)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(opts.Password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.accountService.VerifyPassword(account, opts.Password) || account.Disabled {
		audit.RecordLogin(ctx, audit.LoginRecord{
			AccountID: account.ID,
			Username:  account.Username,
			Method:    "password",
			IP:        opts.ClientIP,
			UserAgent: opts.UserAgent,
			Reason:    "wrong password or disabled account",
		})
		return nil, ErrInvalidCredentials
	}

	if account.TOTPEnabled {
		if opts.MfaCode != "" {
			if err := s.verifyMfaCode(ctx, account, opts); err != nil {
				return nil, err
			}
			return s.issueTokens(ctx, account, opts.ClientIP, opts.UserAgent)
		}
		challengeToken, _, err := s.tokenService.Issue(token.KindMfaChallenge, token.IssueOptions{
			AccountID: account.ID,
		})
		if err != nil {
			return nil, err
		}
		return &LoginResult{
			MfaRequired:    true,
			ChallengeToken: challengeToken,
		}, nil
	}

	return s.issueTokens(ctx, account, opts.ClientIP, opts.UserAgent)
}

// completeMfaChallenge handles the second login step. A failed code leaves
// the challenge token untouched; it stays usable until its own expiry.
func (s *AuthService) completeMfaChallenge(ctx context.Context, opts LoginOptions) (*LoginResult, error) {
	claims, err := s.tokenService.Validate(opts.ChallengeToken, token.KindMfaChallenge)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}
	account, err := s.accountService.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}
	// the account may have been disabled after the password step
	if account.Disabled {
		audit.RecordLogin(ctx, audit.LoginRecord{
			AccountID: account.ID,
			Username:  account.Username,
			Method:    "password",
			IP:        opts.ClientIP,
			UserAgent: opts.UserAgent,
			Reason:    "disabled account",
		})
		return nil, accounts.ErrAccountDisabled
	}
	if err := s.verifyMfaCode(ctx, account, opts); err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, account, opts.ClientIP, opts.UserAgent)
}

// verifyMfaCode accepts either a TOTP code or a one-time recovery code.
// Storage failures during recovery code lookup surface as-is; only an
// actual verification miss becomes ErrInvalidMfaCode.
func (s *AuthService) verifyMfaCode(ctx context.Context, account *model.Account, opts LoginOptions) error {
	method := "totp"
	ok := s.mfaService.VerifyTotp(account.TOTPSecret, opts.MfaCode)
	if !ok {
		method = "recovery_code"
		err := s.mfaService.ConsumeRecoveryCode(ctx, account.ID, opts.MfaCode)
		if err != nil && !errors.Is(err, mfa.ErrCodeVerifyFailed) {
			return err
		}
		ok = err == nil
	}
	audit.RecordMfaAttempt(ctx, audit.MfaAttemptRecord{
		AccountID: account.ID,
		Username:  account.Username,
		Method:    method,
		IP:        opts.ClientIP,
		UserAgent: opts.UserAgent,
		Success:   ok,
	})
	if !ok {
		return ErrInvalidMfaCode
	}
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, account *model.Account, clientIP, userAgent string) (*LoginResult, error) {
	session, err := s.sessionService.Create(ctx, sessions.CreateSessionOptions{
		AccountID: account.ID,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		ExpiresIn: params.RefreshTokenExpiration,
	})
	if err != nil {
		return nil, err
	}
	pair, err := s.signTokenPair(account.ID, session)
	if err != nil {
		return nil, err
	}
	audit.RecordLogin(ctx, audit.LoginRecord{
		AccountID: account.ID,
		Username:  account.Username,
		Method:    "password",
		IP:        clientIP,
		UserAgent: userAgent,
		Success:   true,
	})
	return &LoginResult{Tokens: pair}, nil
}

// signTokenPair signs an access token plus a refresh token whose jti is the
// session's current refresh id, which is what rotation checks against.
func (s *AuthService) signTokenPair(accountID uint, session *model.Session) (*TokenPair, error) {
	accessToken, _, err := s.tokenService.Issue(token.KindAccess, token.IssueOptions{
		AccountID: accountID,
		SessionID: session.ID,
	})
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := s.tokenService.Issue(token.KindRefresh, token.IssueOptions{
		AccountID: accountID,
		SessionID: session.ID,
		TokenID:   session.RefreshID,
		ExpiresIn: time.Until(session.ExpiresAt),
	})
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresInSeconds: int64(params.AccessTokenExpiration.Seconds()),
	}, nil
}

// Refresh rotates the refresh token: the presented token is superseded in a
// single conditional update, so replaying it afterwards fails. A rotation
// conflict is treated as token theft and logged as a security incident.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokenService.Validate(refreshToken, token.KindRefresh)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}

	session, err := s.sessionService.Rotate(ctx, claims.SessionID, claims.ID, params.RefreshTokenExpiration)
	if errors.Is(err, sessions.ErrRotationConflict) {
		s.incidentLog.Record(ctx, model.IncidentSeverityHigh, model.IncidentCategoryTokenReuse,
			"superseded refresh token replayed, session lineage revoked")
		return nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		slog.Debug("Refresh token rejected", "sessionId", claims.SessionID, "error", err)
		return nil, ErrInvalidOrExpiredToken
	}
	return s.signTokenPair(accountID, session)
}

// Logout revokes the session; revoking twice is a no-op.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessionService.Revoke(ctx, sessionID)
}

// ChangePassword re-verifies the current password, rehashes, and revokes
// every other active session of the account.
func (s *AuthService) ChangePassword(ctx context.Context, accountID uint, sessionID string, currentPassword, newPassword string) error {
	account, err := s.accountService.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !s.accountService.VerifyPassword(account, currentPassword) {
		return ErrInvalidCredentials
	}
	if err := s.accountService.UpdatePassword(ctx, accountID, newPassword); err != nil {
		return err
	}
	if err := s.sessionService.RevokeAllExcept(ctx, accountID, sessionID); err != nil {
		return err
	}
	if err := mail.SendPasswordChangedNotice(s.mailSender, account.Email); err != nil {
		// best effort, the password is already rotated
		slog.Error("Failed to send password changed mail", "accountId", accountID, "error", err)
	}
	audit.RecordAccountEvent(ctx, audit.AccountEventRecord{
		AccountID: accountID,
		Username:  account.Username,
		EventType: audit.EventTypePasswordChanged,
		SessionID: sessionID,
	})
	return nil
}

func NewAuthService(
	accountService *accounts.AccountService,
	sessionService *sessions.SessionService,
	tokenService *token.Service,
	mfaService *mfa.MfaService,
	incidentLog *audit.IncidentLog,
	resetStore store.Store[ResetRequest],
	mailSender mail.MailSender,
	baseURL string,
) *AuthService {
	return &AuthService{
		accountService: accountService,
		sessionService: sessionService,
		tokenService:   tokenService,
		mfaService:     mfaService,
		incidentLog:    incidentLog,
		resetStore:     resetStore,
		mailSender:     mailSender,
		baseURL:        baseURL,
	}
}
