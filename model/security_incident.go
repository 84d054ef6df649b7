package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	IncidentSeverityLow    = "low"
	IncidentSeverityMedium = "medium"
	IncidentSeverityHigh   = "high"

	IncidentCategoryRateLimit   = "rate_limit"
	IncidentCategoryTokenReuse  = "token_reuse"
	IncidentCategoryCredentials = "credential_failure"

	IncidentStatusOpen   = "open"
	IncidentStatusClosed = "closed"
)

// SecurityIncident records a detected anomaly. Rows are immutable once
// written; status transitions are handled by an out-of-band triage workflow.
type SecurityIncident struct {
	ID          uint      `gorm:"primarykey"`
	DetectedAt  time.Time `gorm:"index;not null"`
	Severity    string    `gorm:"size:16;not null"`
	Category    string    `gorm:"size:64;index;not null"`
	Description string    `gorm:"size:1024;not null"`
	Status      string    `gorm:"size:16;not null;default:open"`
	CreatedAt   time.Time
}

func (i *SecurityIncident) BeforeCreate(tx *gorm.DB) error {
	if i.ID == 0 {
		i.ID = GenerateID()
	}
	return nil
}
