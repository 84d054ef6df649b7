package model

import (
	"time"

	"gorm.io/gorm"
)

// Account stores a login principal. TOTPSecret is present only once MFA
// enrollment has started; the secret stays unconfirmed until TOTPEnabled flips.
type Account struct {
	ID            uint           `gorm:"primarykey"`
	Username      string         `gorm:"uniqueIndex;size:32;not null"`
	Email         string         `gorm:"uniqueIndex;size:256;not null"`
	Password      string         `gorm:"size:64;not null"`
	Role          string         `gorm:"size:32;not null;default:clinician"`
	TOTPSecret    string         `gorm:"size:128;not null;default:''"`
	TOTPEnabled   bool           `gorm:"default:false;not null"`
	Disabled      bool           `gorm:"default:false;not null"`
	Sessions      []Session      `gorm:"foreignKey:AccountID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	RecoveryCodes []RecoveryCode `gorm:"foreignKey:AccountID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == 0 {
		a.ID = GenerateID()
	}
	return nil
}
