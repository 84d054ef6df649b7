package btg

import (
	"context"
	"time"

	"github.com/dqtran/medauth/model"
	"gorm.io/gorm"
)

type ConsentRepository interface {
	WithTx(tx *gorm.DB) ConsentRepository
	Create(ctx context.Context, consent *model.BtgConsent) error
	CountActive(ctx context.Context, grantorID uint, patientID uint, now time.Time) (int64, error)
	FindActiveByGrantor(ctx context.Context, grantorID uint, now time.Time) ([]*model.BtgConsent, error)
}

type consentRepository struct {
	db *gorm.DB
}

func (r *consentRepository) WithTx(tx *gorm.DB) ConsentRepository {
	return NewConsentRepository(tx)
}

func (r *consentRepository) Create(ctx context.Context, consent *model.BtgConsent) error {
	return r.db.WithContext(ctx).Create(consent).Error
}

func (r *consentRepository) CountActive(ctx context.Context, grantorID uint, patientID uint, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.BtgConsent{}).
		Where("grantor_id = ? AND patient_id = ? AND expires_at > ?", grantorID, patientID, now).
		Count(&count).Error
	return count, err
}

func (r *consentRepository) FindActiveByGrantor(ctx context.Context, grantorID uint, now time.Time) ([]*model.BtgConsent, error) {
	var consents []*model.BtgConsent
	err := r.db.WithContext(ctx).
		Where("grantor_id = ? AND expires_at > ?", grantorID, now).
		Find(&consents).Error
	return consents, err
}

func NewConsentRepository(db *gorm.DB) ConsentRepository {
	return &consentRepository{db}
}
