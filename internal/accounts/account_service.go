package accounts

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/dqtran/medauth/model"
	"github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// ValidatePassword checks a candidate password against the account policy.
// Callers that hold single-use credentials validate up front so a policy
// rejection does not consume them.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

type CreateAccountOptions struct {
	Username string
	Email    string
	Password string
	Role     string
}

type AccountService struct {
	accountRepo AccountRepository
}

func (s *AccountService) GetAccountByID(ctx context.Context, accountID uint) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	return account, err
}

func (s *AccountService) GetAccountByUsernameOrEmail(ctx context.Context, identifier string) (*model.Account, error) {
	var (
		account *model.Account
		err     error
	)
	if _, err = mail.ParseAddress(identifier); err == nil {
		account, err = s.accountRepo.GetByEmail(ctx, identifier)
	} else {
		account, err = s.accountRepo.GetByUsername(ctx, identifier)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	return account, err
}

func (s *AccountService) CreateAccount(ctx context.Context, opts CreateAccountOptions) (*model.Account, error) {
	if err := ValidatePassword(opts.Password); err != nil {
		return nil, err
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account := model.Account{
		Username: opts.Username,
		Email:    opts.Email,
		Password: string(passwordHash),
		Role:     opts.Role,
	}
	var mysqlErr *mysql.MySQLError
	if err := s.accountRepo.Create(ctx, &account); errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		if strings.Contains(mysqlErr.Message, "username") {
			return nil, ErrUsernameTaken
		}
		return nil, ErrEmailRegistered
	} else if err != nil {
		return nil, err
	}
	return &account, nil
}

// VerifyPassword compares the stored bcrypt hash against the supplied
// password. bcrypt comparison is constant time over the digest.
func (s *AccountService) VerifyPassword(account *model.Account, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)) == nil
}

func (s *AccountService) UpdatePassword(ctx context.Context, accountID uint, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.accountRepo.Updates(ctx, accountID, map[string]interface{}{
		"password": string(passwordHash),
	})
	return err
}

func NewAccountService(accountRepo AccountRepository) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
	}
}
