package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dqtran/medauth/model"
)

// SessionService owns the lifecycle of issued token lineages. Rotation and
// revocation go through conditional updates keyed by session id, so two
// concurrent refreshes with the same token can never both succeed.
type SessionService struct {
	sessionRepo SessionRepository
}

type CreateSessionOptions struct {
	AccountID uint
	ClientIP  string
	UserAgent string
	ExpiresIn time.Duration
}

func (s *SessionService) Create(ctx context.Context, opts CreateSessionOptions) (*model.Session, error) {
	now := time.Now()
	session := &model.Session{
		ID:        uuid.NewString(),
		AccountID: opts.AccountID,
		RefreshID: uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(opts.ExpiresIn),
		ClientIP:  opts.ClientIP,
		UserAgent: opts.UserAgent,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// Rotate supersedes the refresh token identified by refreshID with a freshly
// generated one. A zero-row update is classified with Validate: a revoked,
// expired or unknown session reports its own error kind, while a stale
// refreshID means the presented token was already rotated; only then is the
// whole lineage revoked and ErrRotationConflict returned.
func (s *SessionService) Rotate(ctx context.Context, sessionID string, refreshID string, expiresIn time.Duration) (*model.Session, error) {
	newRefreshID := uuid.NewString()
	expiresAt := time.Now().Add(expiresIn)
	updated, err := s.sessionRepo.Rotate(ctx, sessionID, refreshID, newRefreshID, expiresAt)
	if err != nil {
		return nil, err
	}
	if updated == 0 {
		_, verr := s.Validate(ctx, sessionID, refreshID)
		if verr == nil || errors.Is(verr, ErrRotationConflict) {
			s.sessionRepo.Revoke(ctx, sessionID, time.Now())
			return nil, ErrRotationConflict
		}
		return nil, verr
	}
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Revoke marks the session revoked. Revoking an already revoked or unknown
// session is a no-op.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	_, err := s.sessionRepo.Revoke(ctx, sessionID, time.Now())
	return err
}

// RevokeAllExcept revokes every active session of the account except keepID.
// Pass an empty keepID to revoke everything.
func (s *SessionService) RevokeAllExcept(ctx context.Context, accountID uint, keepID string) error {
	_, err := s.sessionRepo.RevokeAllExcept(ctx, accountID, keepID, time.Now())
	return err
}

// Validate checks that the session backing a refresh token is still live and
// that refreshID is the lineage's current refresh token.
func (s *SessionService) Validate(ctx context.Context, sessionID string, refreshID string) (*model.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if !session.IsActive(time.Now()) {
		return nil, ErrSessionExpired
	}
	if session.RefreshID != refreshID {
		return nil, ErrRotationConflict
	}
	return session, nil
}

func NewSessionService(sessionRepo SessionRepository) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
	}
}
