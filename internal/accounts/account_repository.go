package accounts

import (
	"context"

	"github.com/dqtran/medauth/model"
	"gorm.io/gorm"
)

type AccountRepository interface {
	WithTx(tx *gorm.DB) AccountRepository
	GetByID(ctx context.Context, id uint) (*model.Account, error)
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	Create(ctx context.Context, account *model.Account) error
	Updates(ctx context.Context, id uint, columns map[string]interface{}) (int64, error)
}

type accountRepository struct {
	db *gorm.DB
}

func (r *accountRepository) WithTx(tx *gorm.DB) AccountRepository {
	return NewAccountRepository(tx)
}

func (r *accountRepository) GetByID(ctx context.Context, id uint) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).First(&account, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).First(&account, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) Updates(ctx context.Context, id uint, columns map[string]interface{}) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).Updates(columns)
	return ret.RowsAffected, ret.Error
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db}
}
