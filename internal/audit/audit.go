package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dqtran/medauth/model"
)

var auditRepo AuditEventRepository
var initOnce sync.Once

func Initialize(repo AuditEventRepository) {
	initOnce.Do(func() {
		auditRepo = repo
	})
}

const (
	EventTypeLoginSuccess      = "login_success"
	EventTypeLoginFailure      = "login_failure"
	EventTypeMfaAttemptSuccess = "mfa_attempt_success"
	EventTypeMfaAttemptFailure = "mfa_attempt_failure"
	EventTypePasswordChanged   = "password_changed"
	EventTypePasswordReset     = "password_reset"
	EventTypeSessionRevoked    = "session_revoked"
	EventTypeRefreshTokenReuse = "refresh_token_reuse"
	EventTypeBtgGranted        = "btg_granted"
	EventTypeBtgDenied         = "btg_denied"
)

type LoginRecord struct {
	AccountID uint
	Username  string
	Method    string
	IP        string
	UserAgent string
	Success   bool
	Reason    string
}

type MfaAttemptRecord struct {
	AccountID uint
	Username  string
	Method    string
	IP        string
	UserAgent string
	Success   bool
	Reason    string
}

type BtgRecord struct {
	AccountID uint
	Username  string
	PatientID uint
	Granted   bool
	Reason    string
	IP        string
	UserAgent string
}

type AccountEventRecord struct {
	AccountID uint
	Username  string
	EventType string
	SessionID string
	IP        string
	UserAgent string
	Reason    string
}

// record persists one audit row. Audit writes are diagnostic: failures are
// debug-logged and never surface to the request that triggered them.
func record(ctx context.Context, event *model.AuditEvent) {
	if auditRepo == nil {
		return
	}
	if err := auditRepo.RecordEvent(ctx, event); err != nil {
		slog.Debug("Failed to record audit event", "eventType", event.EventType, "error", err)
	}
}

func RecordLogin(ctx context.Context, rec LoginRecord) {
	eventType := EventTypeLoginFailure
	if rec.Success {
		eventType = EventTypeLoginSuccess
	}
	record(ctx, &model.AuditEvent{
		AccountID:  rec.AccountID,
		Username:   rec.Username,
		EventType:  eventType,
		AuthMethod: rec.Method,
		IP:         rec.IP,
		UserAgent:  rec.UserAgent,
		Reason:     rec.Reason,
	})
}

func RecordMfaAttempt(ctx context.Context, rec MfaAttemptRecord) {
	eventType := EventTypeMfaAttemptFailure
	if rec.Success {
		eventType = EventTypeMfaAttemptSuccess
	}
	record(ctx, &model.AuditEvent{
		AccountID:  rec.AccountID,
		Username:   rec.Username,
		EventType:  eventType,
		AuthMethod: rec.Method,
		IP:         rec.IP,
		UserAgent:  rec.UserAgent,
		Reason:     rec.Reason,
	})
}

func RecordBtg(ctx context.Context, rec BtgRecord) {
	eventType := EventTypeBtgDenied
	if rec.Granted {
		eventType = EventTypeBtgGranted
	}
	record(ctx, &model.AuditEvent{
		AccountID: rec.AccountID,
		Username:  rec.Username,
		EventType: eventType,
		PatientID: rec.PatientID,
		IP:        rec.IP,
		UserAgent: rec.UserAgent,
		Reason:    rec.Reason,
	})
}

func RecordAccountEvent(ctx context.Context, rec AccountEventRecord) {
	record(ctx, &model.AuditEvent{
		AccountID: rec.AccountID,
		Username:  rec.Username,
		EventType: rec.EventType,
		SessionID: rec.SessionID,
		IP:        rec.IP,
		UserAgent: rec.UserAgent,
		Reason:    rec.Reason,
	})
}
