package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a vault security event written to the log stream
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security audit lines next to the regular application log
type AuditLogger struct {
	logger *slog.Logger
	env    string
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger, env string) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		env:    env,
	}
}

// LogVaultEvent logs one vault gate decision
func (al *AuditLogger) LogVaultEvent(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "vault"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, RedactedAttr("ip_address", event.IPAddress, al.env))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAnomaly records a non-fatal operational problem, such as a lost ledger write
func (al *AuditLogger) LogAnomaly(ctx context.Context, kind, userID string, err error) {
	al.logger.LogAttrs(ctx, slog.LevelError, "audit_anomaly",
		slog.String("audit_type", "vault"),
		slog.String("anomaly", kind),
		slog.String("user_id", userID),
		slog.Any("error", err),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}
