package sessions

import (
	"context"
	"time"

	"github.com/dqtran/medauth/model"
	"gorm.io/gorm"
)

type SessionRepository interface {
	WithTx(tx *gorm.DB) SessionRepository
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	// Rotate swaps the lineage's refresh id iff the old one is still current
	// and the session is not revoked. Returns the number of rows updated.
	Rotate(ctx context.Context, id string, oldRefreshID, newRefreshID string, expiresAt time.Time) (int64, error)
	Revoke(ctx context.Context, id string, at time.Time) (int64, error)
	RevokeAllExcept(ctx context.Context, accountID uint, keepID string, at time.Time) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) WithTx(tx *gorm.DB) SessionRepository {
	return NewSessionRepository(tx)
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Rotate(ctx context.Context, id string, oldRefreshID, newRefreshID string, expiresAt time.Time) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND refresh_id = ? AND revoked_at IS NULL", id, oldRefreshID).
		Updates(map[string]interface{}{
			"refresh_id": newRefreshID,
			"expires_at": expiresAt,
		})
	return ret.RowsAffected, ret.Error
}

func (r *sessionRepository) Revoke(ctx context.Context, id string, at time.Time) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at)
	return ret.RowsAffected, ret.Error
}

func (r *sessionRepository) RevokeAllExcept(ctx context.Context, accountID uint, keepID string, at time.Time) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("account_id = ? AND id <> ? AND revoked_at IS NULL", accountID, keepID).
		Update("revoked_at", at)
	return ret.RowsAffected, ret.Error
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db}
}
