package mfa

import (
	"context"
	"regexp"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/dqtran/medauth/internal/accounts"
	"github.com/dqtran/medauth/model"
	"github.com/dqtran/medauth/params"
)

var totpCodeRegex = regexp.MustCompile(`^[0-9]{6}$`)

type Enrollment struct {
	Secret     string
	OtpauthURI string
}

type Status struct {
	Enabled             bool
	ActiveRecoveryCodes int64
}

// MfaService implements TOTP enrollment and verification plus one-time
// recovery codes. Secrets live on the account row; a secret stored while
// the enabled flag is still false is a pending enrollment.
type MfaService struct {
	issuer           string
	accountRepo      accounts.AccountRepository
	recoveryCodeRepo RecoveryCodeRepository
}

// StartSetup generates a fresh 160-bit secret and stores it unconfirmed.
// Restarting setup before confirmation replaces the pending secret.
func (s *MfaService) StartSetup(ctx context.Context, account *model.Account) (*Enrollment, error) {
	if account.TOTPEnabled {
		return nil, ErrAlreadyEnabled
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account.Username,
		SecretSize:  params.TOTPSecretBytes,
		Period:      params.TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}
	_, err = s.accountRepo.Updates(ctx, account.ID, map[string]interface{}{
		"totp_secret":  key.Secret(),
		"totp_enabled": false,
	})
	if err != nil {
		return nil, err
	}
	return &Enrollment{
		Secret:     key.Secret(),
		OtpauthURI: key.URL(),
	}, nil
}

// ConfirmSetup verifies the pending secret against code, enables MFA and
// issues the recovery code batch. The plaintext codes are returned exactly
// once; only their hashes persist.
func (s *MfaService) ConfirmSetup(ctx context.Context, account *model.Account, code string) ([]string, error) {
	if account.TOTPEnabled {
		return nil, ErrAlreadyEnabled
	}
	if account.TOTPSecret == "" {
		return nil, ErrNoPendingSecret
	}
	if !s.VerifyTotp(account.TOTPSecret, code) {
		return nil, ErrCodeVerifyFailed
	}
	if _, err := s.accountRepo.Updates(ctx, account.ID, map[string]interface{}{
		"totp_enabled": true,
	}); err != nil {
		return nil, err
	}
	return s.issueRecoveryCodes(ctx, account.ID)
}

// Disable clears the secret and burns every unused recovery code.
func (s *MfaService) Disable(ctx context.Context, account *model.Account) error {
	if _, err := s.accountRepo.Updates(ctx, account.ID, map[string]interface{}{
		"totp_secret":  "",
		"totp_enabled": false,
	}); err != nil {
		return err
	}
	_, err := s.recoveryCodeRepo.BurnAll(ctx, account.ID, time.Now())
	return err
}

// RegenerateRecoveryCodes invalidates all unused codes and issues a fresh
// batch. Fails when MFA is not enabled.
func (s *MfaService) RegenerateRecoveryCodes(ctx context.Context, account *model.Account) ([]string, error) {
	if !account.TOTPEnabled {
		return nil, ErrNotEnabled
	}
	return s.issueRecoveryCodes(ctx, account.ID)
}

func (s *MfaService) issueRecoveryCodes(ctx context.Context, accountID uint) ([]string, error) {
	if _, err := s.recoveryCodeRepo.BurnAll(ctx, accountID, time.Now()); err != nil {
		return nil, err
	}
	plaintext := make([]string, 0, params.RecoveryCodeCount)
	records := make([]*model.RecoveryCode, 0, params.RecoveryCodeCount)
	for i := 0; i < params.RecoveryCodeCount; i++ {
		code, err := generateRecoveryCode()
		if err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		plaintext = append(plaintext, code)
		records = append(records, &model.RecoveryCode{
			AccountID: accountID,
			CodeHash:  string(hash),
		})
	}
	if err := s.recoveryCodeRepo.CreateBatch(ctx, records); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// VerifyTotp checks a 6-digit code against the base32 secret, accepting the
// current 30-second step and the immediately adjacent steps to absorb clock
// skew.
func (s *MfaService) VerifyTotp(secret string, code string) bool {
	if !totpCodeRegex.MatchString(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    params.TOTPPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// ConsumeRecoveryCode burns a matching unused code for the account. The
// mark-used update is conditional on used_at so concurrent replays of the
// same code end with exactly one winner.
func (s *MfaService) ConsumeRecoveryCode(ctx context.Context, accountID uint, code string) error {
	normalized := normalizeRecoveryCode(code)
	if len(normalized) != params.RecoveryCodeLength {
		return ErrCodeVerifyFailed
	}
	unused, err := s.recoveryCodeRepo.FindUnused(ctx, accountID)
	if err != nil {
		return err
	}
	for _, record := range unused {
		if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(normalized)) != nil {
			continue
		}
		updated, err := s.recoveryCodeRepo.MarkUsed(ctx, record.ID, time.Now())
		if err != nil {
			return err
		}
		if updated == 1 {
			return nil
		}
	}
	return ErrCodeVerifyFailed
}

func (s *MfaService) GetStatus(ctx context.Context, account *model.Account) (*Status, error) {
	count, err := s.recoveryCodeRepo.CountUnused(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &Status{
		Enabled:             account.TOTPEnabled,
		ActiveRecoveryCodes: count,
	}, nil
}

func NewMfaService(issuer string, accountRepo accounts.AccountRepository, recoveryCodeRepo RecoveryCodeRepository) *MfaService {
	return &MfaService{
		issuer:           issuer,
		accountRepo:      accountRepo,
		recoveryCodeRepo: recoveryCodeRepo,
	}
}
