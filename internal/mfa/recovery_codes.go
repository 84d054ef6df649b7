package mfa

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dqtran/medauth/model"
	"github.com/dqtran/medauth/params"
)

// recoveryCodeAlphabet omits characters that are easily confused when read
// back (0/O, 1/I/L).
const recoveryCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func generateRecoveryCode() (string, error) {
	var sb strings.Builder
	for i := 0; i < params.RecoveryCodeLength; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(recoveryCodeAlphabet))))
		if err != nil {
			return "", err
		}
		sb.WriteByte(recoveryCodeAlphabet[idx.Int64()])
	}
	return sb.String(), nil
}

// normalizeRecoveryCode maps user input onto the canonical code form.
func normalizeRecoveryCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}

type RecoveryCodeRepository interface {
	WithTx(tx *gorm.DB) RecoveryCodeRepository
	CreateBatch(ctx context.Context, codes []*model.RecoveryCode) error
	FindUnused(ctx context.Context, accountID uint) ([]*model.RecoveryCode, error)
	CountUnused(ctx context.Context, accountID uint) (int64, error)
	// MarkUsed flips used_at iff the code is still unused; the returned count
	// is zero when another request consumed it first.
	MarkUsed(ctx context.Context, codeID uint, at time.Time) (int64, error)
	BurnAll(ctx context.Context, accountID uint, at time.Time) (int64, error)
}

type recoveryCodeRepository struct {
	db *gorm.DB
}

func (r *recoveryCodeRepository) WithTx(tx *gorm.DB) RecoveryCodeRepository {
	return NewRecoveryCodeRepository(tx)
}

func (r *recoveryCodeRepository) CreateBatch(ctx context.Context, codes []*model.RecoveryCode) error {
	return r.db.WithContext(ctx).Create(codes).Error
}

func (r *recoveryCodeRepository) FindUnused(ctx context.Context, accountID uint) ([]*model.RecoveryCode, error) {
	var codes []*model.RecoveryCode
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND used_at IS NULL", accountID).
		Find(&codes).Error
	return codes, err
}

func (r *recoveryCodeRepository) CountUnused(ctx context.Context, accountID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RecoveryCode{}).
		Where("account_id = ? AND used_at IS NULL", accountID).
		Count(&count).Error
	return count, err
}

func (r *recoveryCodeRepository) MarkUsed(ctx context.Context, codeID uint, at time.Time) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.RecoveryCode{}).
		Where("id = ? AND used_at IS NULL", codeID).
		Update("used_at", at)
	return ret.RowsAffected, ret.Error
}

func (r *recoveryCodeRepository) BurnAll(ctx context.Context, accountID uint, at time.Time) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.RecoveryCode{}).
		Where("account_id = ? AND used_at IS NULL", accountID).
		Update("used_at", at)
	return ret.RowsAffected, ret.Error
}

func NewRecoveryCodeRepository(db *gorm.DB) RecoveryCodeRepository {
	return &recoveryCodeRepository{db}
}
