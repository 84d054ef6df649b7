package model

import (
	"time"
)

// RecoveryCode stores the bcrypt hash of a one-time MFA bypass code.
// Plaintext codes exist only in the response that created them.
type RecoveryCode struct {
	ID        uint       `gorm:"primarykey,autoIncrement"`
	AccountID uint       `gorm:"index;not null"`
	CodeHash  string     `gorm:"size:64;not null"`
	UsedAt    *time.Time `gorm:"index"`
	CreatedAt time.Time
}
