package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/template/html/v2"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

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

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[uint]*model.Account
}

func (r *fakeAccountRepo) WithTx(tx *gorm.DB) accounts.AccountRepository { return r }

func (r *fakeAccountRepo) GetByID(ctx context.Context, id uint) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *fakeAccountRepo) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Username == username {
			copied := *account
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Email == email {
			copied := *account
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == 0 {
		account.ID = uint(len(r.accounts) + 1)
	}
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *fakeAccountRepo) Updates(ctx context.Context, id uint, columns map[string]interface{}) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return 0, nil
	}
	for column, value := range columns {
		switch column {
		case "password":
			account.Password = value.(string)
		case "totp_secret":
			account.TOTPSecret = value.(string)
		case "totp_enabled":
			account.TOTPEnabled = value.(bool)
		case "disabled":
			account.Disabled = value.(bool)
		}
	}
	return 1, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func (r *fakeSessionRepo) WithTx(tx *gorm.DB) sessions.SessionRepository { return r }

func (r *fakeSessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *fakeSessionRepo) Rotate(ctx context.Context, id string, oldRefreshID, newRefreshID string, expiresAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.RefreshID != oldRefreshID || session.RevokedAt != nil {
		return 0, nil
	}
	session.RefreshID = newRefreshID
	session.ExpiresAt = expiresAt
	return 1, nil
}

func (r *fakeSessionRepo) Revoke(ctx context.Context, id string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.RevokedAt != nil {
		return 0, nil
	}
	session.RevokedAt = &at
	return 1, nil
}

func (r *fakeSessionRepo) RevokeAllExcept(ctx context.Context, accountID uint, keepID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var revoked int64
	for _, session := range r.sessions {
		if session.AccountID == accountID && session.ID != keepID && session.RevokedAt == nil {
			revokedAt := at
			session.RevokedAt = &revokedAt
			revoked++
		}
	}
	return revoked, nil
}

type fakeRecoveryCodeRepo struct {
	mu      sync.Mutex
	nextID  uint
	codes   []*model.RecoveryCode
	findErr error
}

func (r *fakeRecoveryCodeRepo) WithTx(tx *gorm.DB) mfa.RecoveryCodeRepository { return r }

func (r *fakeRecoveryCodeRepo) CreateBatch(ctx context.Context, codes []*model.RecoveryCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range codes {
		r.nextID++
		code.ID = r.nextID
		copied := *code
		r.codes = append(r.codes, &copied)
	}
	return nil
}

func (r *fakeRecoveryCodeRepo) FindUnused(ctx context.Context, accountID uint) ([]*model.RecoveryCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var unused []*model.RecoveryCode
	for _, code := range r.codes {
		if code.AccountID == accountID && code.UsedAt == nil {
			copied := *code
			unused = append(unused, &copied)
		}
	}
	return unused, nil
}

func (r *fakeRecoveryCodeRepo) CountUnused(ctx context.Context, accountID uint) (int64, error) {
	unused, _ := r.FindUnused(ctx, accountID)
	return int64(len(unused)), nil
}

func (r *fakeRecoveryCodeRepo) MarkUsed(ctx context.Context, codeID uint, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range r.codes {
		if code.ID == codeID && code.UsedAt == nil {
			usedAt := at
			code.UsedAt = &usedAt
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakeRecoveryCodeRepo) BurnAll(ctx context.Context, accountID uint, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var burned int64
	for _, code := range r.codes {
		if code.AccountID == accountID && code.UsedAt == nil {
			usedAt := at
			code.UsedAt = &usedAt
			burned++
		}
	}
	return burned, nil
}

type fakeIncidentRepo struct {
	mu        sync.Mutex
	incidents []*model.SecurityIncident
}

func (r *fakeIncidentRepo) Create(ctx context.Context, incident *model.SecurityIncident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *incident
	r.incidents = append(r.incidents, &copied)
	return nil
}

func (r *fakeIncidentRepo) byCategory(category string) []*model.SecurityIncident {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*model.SecurityIncident
	for _, incident := range r.incidents {
		if incident.Category == category {
			matched = append(matched, incident)
		}
	}
	return matched
}

type fakeMailSender struct {
	mu       sync.Mutex
	messages []*mail.Message
}

func (s *fakeMailSender) Send(message *mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func (s *fakeMailSender) sent() []*mail.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*mail.Message(nil), s.messages...)
}

type authFixture struct {
	svc          *AuthService
	tokenSvc     *token.Service
	sessionSvc   *sessions.SessionService
	mfaSvc       *mfa.MfaService
	accountRepo  *fakeAccountRepo
	sessionRepo  *fakeSessionRepo
	recoveryRepo *fakeRecoveryCodeRepo
	incidents    *fakeIncidentRepo
	mailbox      *fakeMailSender
}

var initMailOnce sync.Once

func newAuthFixture(accs ...*model.Account) *authFixture {
	initMailOnce.Do(func() {
		mail.Initialize(html.New("../../templates", ".html"))
	})

	accountRepo := &fakeAccountRepo{accounts: make(map[uint]*model.Account)}
	for _, acc := range accs {
		accountRepo.accounts[acc.ID] = acc
	}
	sessionRepo := &fakeSessionRepo{sessions: make(map[string]*model.Session)}
	recoveryRepo := &fakeRecoveryCodeRepo{}
	incidents := &fakeIncidentRepo{}
	mailbox := &fakeMailSender{}

	accountSvc := accounts.NewAccountService(accountRepo)
	sessionSvc := sessions.NewSessionService(sessionRepo)
	tokenSvc := token.NewService("test-master-key")
	mfaSvc := mfa.NewMfaService("medauth-test", accountRepo, recoveryRepo)
	resetStore := store.New[ResetRequest](store.NewMemoryStorage(), params.ResetTokenKeyPrefix)

	return &authFixture{
		svc: NewAuthService(accountSvc, sessionSvc, tokenSvc, mfaSvc,
			audit.NewIncidentLog(incidents), resetStore, mailbox, "https://emr.example.org"),
		tokenSvc:     tokenSvc,
		sessionSvc:   sessionSvc,
		mfaSvc:       mfaSvc,
		accountRepo:  accountRepo,
		sessionRepo:  sessionRepo,
		recoveryRepo: recoveryRepo,
		incidents:    incidents,
		mailbox:      mailbox,
	}
}

func newTestAccount(t *testing.T, id uint, username, email, password string) *model.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	return &model.Account{
		ID:       id,
		Username: username,
		Email:    email,
		Password: string(hash),
		Role:     "clinician",
	}
}

// enableTotp flips the account to enabled MFA with a known secret and one
// seeded recovery code.
func enableTotp(t *testing.T, fixture *authFixture, accountID uint) (secret string, recoveryCode string) {
	t.Helper()
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "medauth-test",
		AccountName: "test",
		SecretSize:  params.TOTPSecretBytes,
	})
	if err != nil {
		t.Fatalf("totp.Generate failed: %v", err)
	}
	if _, err := fixture.accountRepo.Updates(context.Background(), accountID, map[string]interface{}{
		"totp_secret":  key.Secret(),
		"totp_enabled": true,
	}); err != nil {
		t.Fatalf("Updates failed: %v", err)
	}

	recoveryCode = "ABCDE23456"
	hash, err := bcrypt.GenerateFromPassword([]byte(recoveryCode), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	if err := fixture.recoveryRepo.CreateBatch(context.Background(), []*model.RecoveryCode{
		{AccountID: accountID, CodeHash: string(hash)},
	}); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	return key.Secret(), recoveryCode
}

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    params.TOTPPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom failed: %v", err)
	}
	return code
}

func TestLoginIssuesTokenPair(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "s3cret-pass"))

	result, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "s3cret-pass",
		ClientIP:        "10.0.0.1",
		UserAgent:       "test-agent",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.MfaRequired || result.Tokens == nil {
		t.Fatalf("expected a token pair, got %+v", result)
	}

	accessClaims, err := fixture.tokenSvc.Validate(result.Tokens.AccessToken, token.KindAccess)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	refreshClaims, err := fixture.tokenSvc.Validate(result.Tokens.RefreshToken, token.KindRefresh)
	if err != nil {
		t.Fatalf("refresh token invalid: %v", err)
	}
	if accessClaims.SessionID != refreshClaims.SessionID {
		t.Fatal("token pair must share a session")
	}

	session, err := fixture.sessionRepo.GetByID(context.Background(), accessClaims.SessionID)
	if err != nil {
		t.Fatalf("session was not persisted: %v", err)
	}
	if session.RefreshID != refreshClaims.ID {
		t.Fatal("refresh token jti must match the session's refresh id")
	}
	if session.ClientIP != "10.0.0.1" || session.UserAgent != "test-agent" {
		t.Fatalf("client metadata not recorded: %+v", session)
	}

	// login by email resolves to the same principal
	if _, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith@clinic.test",
		Password:        "s3cret-pass",
	}); err != nil {
		t.Fatalf("email login failed: %v", err)
	}
}

func TestLoginRejections(t *testing.T) {
	disabled := newTestAccount(t, 2, "locked", "locked@clinic.test", "s3cret-pass")
	disabled.Disabled = true
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "s3cret-pass"), disabled)

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"unknown account", "nobody", "whatever-pass"},
		{"wrong password", "drsmith", "wrong-pass"},
		{"disabled account", "locked", "s3cret-pass"},
	}
	for _, tc := range cases {
		_, err := fixture.svc.Login(context.Background(), LoginOptions{
			UsernameOrEmail: tc.username,
			Password:        tc.password,
		})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: got %v, want ErrInvalidCredentials", tc.name, err)
		}
	}
}

func TestLoginMfaChallengeFlow(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "s3cret-pass"))
	secret, _ := enableTotp(t, fixture, 1)

	// step one: correct password yields a challenge, never tokens
	result, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.MfaRequired || result.ChallengeToken == "" {
		t.Fatalf("expected an MFA challenge, got %+v", result)
	}
	if result.Tokens != nil {
		t.Fatal("no tokens may be issued before the code is verified")
	}

	// a wrong code fails but leaves the challenge usable
	if _, err := fixture.svc.Login(context.Background(), LoginOptions{
		ChallengeToken: result.ChallengeToken,
		MfaCode:        "000000",
	}); !errors.Is(err, ErrInvalidMfaCode) {
		t.Fatalf("expected ErrInvalidMfaCode, got %v", err)
	}

	completed, err := fixture.svc.Login(context.Background(), LoginOptions{
		ChallengeToken: result.ChallengeToken,
		MfaCode:        totpCode(t, secret),
	})
	if err != nil {
		t.Fatalf("challenge completion failed: %v", err)
	}
	if completed.Tokens == nil {
		t.Fatal("expected tokens after a valid code")
	}
}

func TestLoginMfaInline(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "s3cret-pass"))
	secret, _ := enableTotp(t, fixture, 1)

	result, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "s3cret-pass",
		MfaCode:         totpCode(t, secret),
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.MfaRequired || result.Tokens == nil {
		t.Fatalf("expected tokens for inline code, got %+v", result)
	}
}

func TestLoginWithRecoveryCode(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "s3cret-pass"))
	_, recoveryCode := enableTotp(t, fixture, 1)

	result, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "s3cret-pass",
		MfaCode:         recoveryCode,
	})
	if err != nil {
		t.Fatalf("recovery code login failed: %v", err)
	}
	if result.Tokens == nil {
		t.Fatal("expected tokens")
	}

	// the code is burned: a replay is just another bad MFA code
	if _, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "s3cret-pass",
		MfaCode:         recoveryCode,
	}); !errors.Is(err, ErrInvalidMfaCode) {
		t.Fatalf("expected ErrInvalidMfaCode on replay, got %v", err)
	}
}

func TestMfaChallengeRejectsDisabledAccount(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "s3cret-pass"))
	secret, _ := enableTotp(t, fixture, 1)

	result, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// the account is disabled while its challenge is still valid
	if _, err := fixture.accountRepo.Updates(context.Background(), 1, map[string]interface{}{
		"disabled": true,
	}); err != nil {
		t.Fatalf("Updates failed: %v", err)
	}
	if _, err := fixture.svc.Login(context.Background(), LoginOptions{
		ChallengeToken: result.ChallengeToken,
		MfaCode:        totpCode(t, secret),
	}); !errors.Is(err, accounts.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestRecoveryCodeStorageErrorSurfaces(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "s3cret-pass"))
	_, recoveryCode := enableTotp(t, fixture, 1)
	storageErr := errors.New("connection refused")
	fixture.recoveryRepo.findErr = storageErr

	_, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "s3cret-pass",
		MfaCode:         recoveryCode,
	})
	if !errors.Is(err, storageErr) {
		t.Fatalf("expected the storage error to surface, got %v", err)
	}
	if errors.Is(err, ErrInvalidMfaCode) {
		t.Fatal("a storage failure must not read as a wrong code")
	}
}

func TestExpiredChallengeRejected(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "s3cret-pass"))
	secret, _ := enableTotp(t, fixture, 1)

	expired, _, err := fixture.tokenSvc.Issue(token.KindMfaChallenge, token.IssueOptions{
		AccountID: 1,
		ExpiresIn: -time.Minute,
	})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := fixture.svc.Login(context.Background(), LoginOptions{
		ChallengeToken: expired,
		MfaCode:        totpCode(t, secret),
	}); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
	}
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "s3cret-pass"))

	result, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	firstRefresh := result.Tokens.RefreshToken

	rotated, err := fixture.svc.Refresh(context.Background(), firstRefresh)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == firstRefresh {
		t.Fatal("rotation must mint a new refresh token")
	}
	if _, err := fixture.tokenSvc.Validate(rotated.AccessToken, token.KindAccess); err != nil {
		t.Fatalf("rotated access token invalid: %v", err)
	}

	// replaying the superseded token is treated as theft
	if _, err := fixture.svc.Refresh(context.Background(), firstRefresh); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken on replay, got %v", err)
	}
	reuse := fixture.incidents.byCategory(model.IncidentCategoryTokenReuse)
	if len(reuse) != 1 {
		t.Fatalf("expected one token reuse incident, got %d", len(reuse))
	}
	if reuse[0].Severity != model.IncidentSeverityHigh {
		t.Fatalf("token reuse severity = %s, want high", reuse[0].Severity)
	}

	// the whole lineage is dead, including the latest token
	if _, err := fixture.svc.Refresh(context.Background(), rotated.RefreshToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected lineage revoked, got %v", err)
	}
}

func TestRefreshRejectsWrongKind(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "s3cret-pass"))

	result, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := fixture.svc.Refresh(context.Background(), result.Tokens.AccessToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected access token rejected for refresh, got %v", err)
	}
	if _, err := fixture.svc.Refresh(context.Background(), "garbage"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected garbage rejected, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "s3cret-pass"))

	result, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	claims, _ := fixture.tokenSvc.Validate(result.Tokens.AccessToken, token.KindAccess)

	if err := fixture.svc.Logout(context.Background(), claims.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if err := fixture.svc.Logout(context.Background(), claims.SessionID); err != nil {
		t.Fatalf("repeated Logout failed: %v", err)
	}
	if _, err := fixture.svc.Refresh(context.Background(), result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected refresh rejected after logout, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "old-pass-123"))

	current, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "old-pass-123",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	other, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "old-pass-123",
	})
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	claims, _ := fixture.tokenSvc.Validate(current.Tokens.AccessToken, token.KindAccess)

	if err := fixture.svc.ChangePassword(context.Background(), 1, claims.SessionID, "wrong-pass", "new-pass-456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := fixture.svc.ChangePassword(context.Background(), 1, claims.SessionID, "old-pass-123", "new-pass-456"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// the account owner is notified once, only for the successful change
	sent := fixture.mailbox.sent()
	if len(sent) != 1 || sent[0].Subject != "Your password was changed" {
		t.Fatalf("expected one password changed notice, got %d mails", len(sent))
	}

	if _, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "old-pass-123",
	}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "new-pass-456",
	}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	// the other session is revoked, the current one survives
	if _, err := fixture.svc.Refresh(context.Background(), other.Tokens.RefreshToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected other session revoked, got %v", err)
	}
	if _, err := fixture.svc.Refresh(context.Background(), current.Tokens.RefreshToken); err != nil {
		t.Fatalf("current session should survive: %v", err)
	}
}

var resetTokenRegex = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

func requestResetToken(t *testing.T, fixture *authFixture, usernameOrEmail string) string {
	t.Helper()
	before := len(fixture.mailbox.sent())
	if err := fixture.svc.RequestPasswordReset(context.Background(), usernameOrEmail); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	sent := fixture.mailbox.sent()
	if len(sent) != before+1 {
		t.Fatalf("expected one mail, got %d", len(sent)-before)
	}
	match := resetTokenRegex.FindStringSubmatch(sent[len(sent)-1].Body)
	if match == nil {
		t.Fatal("reset mail carries no token link")
	}
	return match[1]
}

func TestPasswordResetFlow(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "old-pass-123"))

	session, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "old-pass-123",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	resetToken := requestResetToken(t, fixture, "drsmith@clinic.test")
	if err := fixture.svc.ConfirmPasswordReset(context.Background(), resetToken, "new-pass-456"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}
	if sent := fixture.mailbox.sent(); sent[len(sent)-1].Subject != "Your password was changed" {
		t.Fatal("expected a password changed notice after the reset")
	}

	if _, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "new-pass-456",
	}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	// every pre-reset session is revoked
	if _, err := fixture.svc.Refresh(context.Background(), session.Tokens.RefreshToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected sessions revoked by reset, got %v", err)
	}
	// the token is single use
	if err := fixture.svc.ConfirmPasswordReset(context.Background(), resetToken, "third-pass-789"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected replayed token rejected, got %v", err)
	}
}

func TestPasswordResetRejectedPasswordKeepsToken(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "old-pass-123"))

	resetToken := requestResetToken(t, fixture, "drsmith")
	if err := fixture.svc.ConfirmPasswordReset(context.Background(), resetToken, "short"); !errors.Is(err, accounts.ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}

	// a policy rejection must not consume the single-use token
	if err := fixture.svc.ConfirmPasswordReset(context.Background(), resetToken, "new-pass-456"); err != nil {
		t.Fatalf("token was burned by the rejected attempt: %v", err)
	}
	if _, err := fixture.svc.Login(context.Background(), LoginOptions{
		UsernameOrEmail: "drsmith",
		Password:        "new-pass-456",
	}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestPasswordResetDoesNotLeakPrincipals(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "old-pass-123"))

	if err := fixture.svc.RequestPasswordReset(context.Background(), "nobody@clinic.test"); err != nil {
		t.Fatalf("expected silent success for unknown principal, got %v", err)
	}
	if sent := fixture.mailbox.sent(); len(sent) != 0 {
		t.Fatalf("no mail may be sent for unknown principals, got %d", len(sent))
	}
}

func TestPasswordResetConfirmRejectsBadToken(t *testing.T) {
	fixture := newAuthFixture(newTestAccount(t, 1, "drsmith", "drsmith@clinic.test", "old-pass-123"))

	if err := fixture.svc.ConfirmPasswordReset(context.Background(), "never-issued", "new-pass-456"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
	}

	// tampering with the token changes its digest and misses the cache
	resetToken := requestResetToken(t, fixture, "drsmith")
	tampered := resetToken[:len(resetToken)-1] + "A"
	if tampered == resetToken {
		tampered = resetToken[:len(resetToken)-1] + "B"
	}
	if err := fixture.svc.ConfirmPasswordReset(context.Background(), tampered, "new-pass-456"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected tampered token rejected, got %v", err)
	}
	if err := fixture.svc.ConfirmPasswordReset(context.Background(), resetToken, "new-pass-456"); err != nil {
		t.Fatalf("original token should still work: %v", err)
	}
}
