package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/dqtran/medauth/model"
	"gorm.io/gorm"
)

type SecurityIncidentRepository interface {
	Create(ctx context.Context, incident *model.SecurityIncident) error
}

type securityIncidentRepository struct {
	db *gorm.DB
}

func (r *securityIncidentRepository) Create(ctx context.Context, incident *model.SecurityIncident) error {
	return r.db.WithContext(ctx).Create(incident).Error
}

func NewSecurityIncidentRepository(db *gorm.DB) SecurityIncidentRepository {
	return &securityIncidentRepository{db}
}

// IncidentLog is the append-only anomaly record. Writes are fire-and-forget
// relative to the triggering request: a persistence failure is debug-logged
// and must never change the request's outcome.
type IncidentLog struct {
	incidentRepo SecurityIncidentRepository
}

func (l *IncidentLog) Record(ctx context.Context, severity string, category string, description string) {
	incident := &model.SecurityIncident{
		DetectedAt:  time.Now(),
		Severity:    severity,
		Category:    category,
		Description: description,
		Status:      model.IncidentStatusOpen,
	}
	if err := l.incidentRepo.Create(ctx, incident); err != nil {
		slog.Debug("Failed to record security incident", "category", category, "error", err)
	}
}

func NewIncidentLog(incidentRepo SecurityIncidentRepository) *IncidentLog {
	return &IncidentLog{
		incidentRepo: incidentRepo,
	}
}
