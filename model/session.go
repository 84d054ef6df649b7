package model

import (
	"time"
)

// Session tracks one issued token lineage. RefreshID identifies the currently
// valid refresh token of the lineage; rotation swaps it with a conditional
// update so a superseded refresh token can never be replayed.
type Session struct {
	ID        string     `gorm:"primarykey;size:36"`
	AccountID uint       `gorm:"index;not null"`
	RefreshID string     `gorm:"size:36;not null"`
	IssuedAt  time.Time  `gorm:"not null"`
	ExpiresAt time.Time  `gorm:"not null"`
	RevokedAt *time.Time `gorm:"index"`
	ClientIP  string     `gorm:"size:45;not null"` // IPv4/IPv6
	UserAgent string     `gorm:"size:512;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
