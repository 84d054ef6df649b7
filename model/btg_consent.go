package model

import (
	"time"

	"gorm.io/gorm"
)

// BtgConsent is a break-the-glass emergency access grant. Grants are never
// mutated after creation; they end by expiry only.
type BtgConsent struct {
	ID        uint      `gorm:"primarykey"`
	PatientID uint      `gorm:"index:idx_btg_patient_grantor;not null"`
	GrantorID uint      `gorm:"index:idx_btg_patient_grantor;not null"`
	Reason    string    `gorm:"size:512;not null"`
	IssuedAt  time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func (c *BtgConsent) BeforeCreate(tx *gorm.DB) error {
	if c.ID == 0 {
		c.ID = GenerateID()
	}
	return nil
}
