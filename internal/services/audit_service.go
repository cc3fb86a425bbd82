package services

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/smartcore/vaultgate/internal/models"
	"github.com/smartcore/vaultgate/pkg/events"
	"github.com/smartcore/vaultgate/pkg/logger"
)

// publishTimeout bounds one background event publish
const publishTimeout = 5 * time.Second

// AuditService fans vault security events out to the audit log stream, the
// event broker and, for lockouts, the alert notifier. Publishing and alerting
// happen off the request path.
type AuditService struct {
	audit     *logger.AuditLogger
	publisher events.Publisher
	notifier  LockoutNotifier
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewAuditService creates a new AuditService. publisher and notifier may be nil.
func NewAuditService(audit *logger.AuditLogger, publisher events.Publisher, notifier LockoutNotifier, log *slog.Logger) *AuditService {
	if publisher == nil {
		publisher = events.NewLogPublisher(log)
	}
	return &AuditService{
		audit:     audit,
		publisher: publisher,
		notifier:  notifier,
		logger:    log,
	}
}

// RecordAttempt logs a comparison outcome and publishes it
func (s *AuditService) RecordAttempt(ctx context.Context, identity *models.Identity, record *models.AttemptRecord, failuresInWindow int) {
	succeeded := record.Outcome == models.AttemptSucceeded

	event := logger.AuditEvent{
		EventType: record.Outcome.Action(),
		UserID:    record.UserID,
		Email:     identity.Email,
		IPAddress: record.IPAddress,
		Success:   succeeded,
		Metadata: map[string]string{
			"failures_in_window": strconv.Itoa(failuresInWindow),
		},
	}
	if !succeeded {
		event.FailureReason = string(models.FailureIncorrectSecret)
	}
	s.audit.LogVaultEvent(ctx, event)

	s.publish(models.AuditEventUnlockAttempt, models.NewAttemptEvent(record, failuresInWindow))
}

// RecordDenial logs a verification that was refused before any comparison.
// Denials are not written to the ledger.
func (s *AuditService) RecordDenial(ctx context.Context, identity *models.Identity, kind models.FailureKind, ipAddress string) {
	event := logger.AuditEvent{
		EventType:     "unlock_denied",
		IPAddress:     ipAddress,
		FailureReason: string(kind),
	}
	if identity != nil {
		event.UserID = identity.UserID
		event.Email = identity.Email
	}
	s.audit.LogVaultEvent(ctx, event)
}

// RecordLockout reports that a user just reached the failure threshold
func (s *AuditService) RecordLockout(ctx context.Context, identity *models.Identity, status models.LockoutStatus, ipAddress string) {
	s.audit.LogVaultEvent(ctx, logger.AuditEvent{
		EventType:     "vault_locked",
		UserID:        identity.UserID,
		Email:         identity.Email,
		IPAddress:     ipAddress,
		FailureReason: string(models.FailureLockedOut),
		Metadata: map[string]string{
			"retry_after": status.RetryAfter.String(),
		},
	})

	s.publish(models.AuditEventLockout, models.AuditEvent{
		EventType:  models.AuditEventLockout,
		Action:     models.ActionUnlockFailed,
		UserID:     identity.UserID,
		IPAddress:  ipAddress,
		OccurredAt: time.Now().UTC(),
		Metadata: models.AuditMetadata{
			"failures_in_window":  status.FailuresInWindow,
			"retry_after_seconds": int(status.RetryAfter.Seconds()),
		},
	})

	if s.notifier == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		alertCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.notifier.NotifyLockout(alertCtx, identity, status, ipAddress); err != nil {
			s.logger.Error("failed to send lockout alert",
				slog.String("user_id", identity.UserID),
				slog.Any("error", err),
			)
		}
	}()
}

// RecordItemAccess logs and publishes a guarded vault item operation
func (s *AuditService) RecordItemAccess(ctx context.Context, identity *models.Identity, action string, itemID *string, ipAddress string) {
	metadata := map[string]string{}
	if itemID != nil {
		metadata["vault_item_id"] = *itemID
	}
	s.audit.LogVaultEvent(ctx, logger.AuditEvent{
		EventType: action,
		UserID:    identity.UserID,
		Email:     identity.Email,
		IPAddress: ipAddress,
		Success:   true,
		Metadata:  metadata,
	})

	s.publish(models.AuditEventItemAccess, models.AuditEvent{
		EventType:   models.AuditEventItemAccess,
		Action:      action,
		UserID:      identity.UserID,
		IPAddress:   ipAddress,
		VaultItemID: itemID,
		OccurredAt:  time.Now().UTC(),
	})
}

// RecordLedgerFailure logs an attempt record that could not be written
func (s *AuditService) RecordLedgerFailure(ctx context.Context, record *models.AttemptRecord, err error) {
	s.audit.LogAnomaly(ctx, "ledger_append_failed", record.UserID, err)
}

// RecordGrantFailure logs a correct PIN whose unlock grant could not be signed,
// so its unlocked ledger row has no grant behind it
func (s *AuditService) RecordGrantFailure(ctx context.Context, record *models.AttemptRecord, err error) {
	s.audit.LogAnomaly(ctx, "grant_issue_failed", record.UserID, err)
}

func (s *AuditService) publish(routingKey string, event models.AuditEvent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.publisher.Publish(ctx, routingKey, event); err != nil {
			s.logger.Warn("failed to publish audit event",
				slog.String("routing_key", routingKey),
				slog.String("user_id", event.UserID),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until in-flight publishes and alerts finish
func (s *AuditService) Wait() {
	s.wg.Wait()
}
