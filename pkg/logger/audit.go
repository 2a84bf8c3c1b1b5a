package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is one security-relevant authentication event
type AuditEvent struct {
	EventType     string
	UserID        string
	Account       string // account key, masked before it is written
	IPAddress     string
	Success       bool
	FailureReason string
}

// AuditLogger writes audit records to a dedicated slog logger. A nil
// *AuditLogger discards everything.
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

func (al *AuditLogger) write(level slog.Level, auditType, eventType string, attrs ...slog.Attr) {
	if al == nil {
		return
	}
	base := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", eventType),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}
	al.logger.LogAttrs(context.Background(), level, "audit", append(base, attrs...)...)
}

// LogAuthAttempt logs authentication attempts
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{slog.Bool("success", event.Success)}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Account != "" {
		attrs = append(attrs, slog.String("account", SanitizedEmail(event.Account)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.write(level, "auth", event.EventType, attrs...)
}

// LogLockout records an account entering the locked state
func (al *AuditLogger) LogLockout(account, ipAddress string, until time.Time) {
	al.write(slog.LevelWarn, "auth", "account_locked",
		slog.String("account", SanitizedEmail(account)),
		slog.String("ip_address", ipAddress),
		slog.String("locked_until", until.UTC().Format(time.RFC3339)),
	)
}

// LogRegistration logs account creation
func (al *AuditLogger) LogRegistration(userID, ipAddress string) {
	attrs := []slog.Attr{slog.String("user_id", userID)}
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	al.write(slog.LevelInfo, "account", "account_registered", attrs...)
}

// LogPasswordChange logs password change events
func (al *AuditLogger) LogPasswordChange(userID, ipAddress string, success bool) {
	attrs := []slog.Attr{
		slog.Bool("success", success),
		slog.String("user_id", userID),
	}
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	al.write(level, "password", "password_change", attrs...)
}
