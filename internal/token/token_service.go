package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dqtran/medauth/params"
)

// Kind is the token-type marker carried in the typ claim. Access tokens are
// validated without a store lookup; refresh tokens are additionally checked
// against the session store by the caller.
type Kind string

const (
	KindAccess       Kind = "access"
	KindRefresh      Kind = "refresh"
	KindMfaChallenge Kind = "mfa-challenge"
)

type Claims struct {
	Kind      Kind   `json:"typ"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim back into an account id.
func (c *Claims) AccountID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrTokenInvalid
	}
	return uint(id), nil
}

// Service issues and validates signed bearer tokens. The signing key is
// process wide and loaded once at startup; the kid header leaves room for
// key rotation without changing the wire format.
type Service struct {
	signingKey []byte
	keyID      string
}

type IssueOptions struct {
	AccountID uint
	SessionID string
	TokenID   string        // jti; generated when empty
	ExpiresIn time.Duration // kind default when zero
}

func (s *Service) Issue(kind Kind, opts IssueOptions) (string, *Claims, error) {
	now := time.Now()
	tokenID := opts.TokenID
	if tokenID == "" {
		tokenID = uuid.NewString()
	}
	expiresIn := opts.ExpiresIn
	if expiresIn == 0 {
		expiresIn = expirationFor(kind)
	}
	claims := Claims{
		Kind:      kind,
		SessionID: opts.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(opts.AccountID), 10),
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = s.keyID
	signed, err := tok.SignedString(s.signingKey)
	if err != nil {
		return "", nil, err
	}
	return signed, &claims, nil
}

// Validate parses and verifies a token of the expected kind. Tampering and
// expiry are detectable without any store lookup.
func (s *Service) Validate(tokenStr string, kind Kind) (*Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.signingKey, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil || !tok.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Kind != kind {
		return nil, ErrTokenKindMismatch
	}
	return &claims, nil
}

func expirationFor(kind Kind) time.Duration {
	switch kind {
	case KindAccess:
		return params.AccessTokenExpiration
	case KindRefresh:
		return params.RefreshTokenExpiration
	case KindMfaChallenge:
		return params.MfaChallengeExpiration
	}
	return 0
}

func NewService(masterKey string) *Service {
	return &Service{
		signingKey: []byte(masterKey),
		keyID:      params.SigningKeyID,
	}
}
