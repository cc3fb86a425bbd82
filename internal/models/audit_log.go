package models

import (
	"encoding/json"
	"time"
)

// Routing keys for vault audit events
const (
	AuditEventUnlockAttempt = "vault.unlock.attempt"
	AuditEventLockout       = "vault.unlock.lockout"
	AuditEventItemAccess    = "vault.item.access"
)

// AuditEvent is the published form of a vault ledger entry
type AuditEvent struct {
	EventID     string        `json:"event_id"`
	EventType   string        `json:"event_type"`
	Action      string        `json:"action"`
	UserID      string        `json:"user_id"`
	IPAddress   string        `json:"ip_address,omitempty"`
	VaultItemID *string       `json:"vault_item_id,omitempty"`
	Metadata    AuditMetadata `json:"metadata,omitempty"`
	OccurredAt  time.Time     `json:"occurred_at"`
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// MarshalJSON implements json.Marshaler
func (am AuditMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(am))
}

// UnmarshalJSON implements json.Unmarshaler
func (am *AuditMetadata) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// NewAttemptEvent builds the audit event for a recorded attempt
func NewAttemptEvent(record *AttemptRecord, failuresInWindow int) AuditEvent {
	return AuditEvent{
		EventID:    record.ID,
		EventType:  AuditEventUnlockAttempt,
		Action:     record.Outcome.Action(),
		UserID:     record.UserID,
		IPAddress:  record.IPAddress,
		OccurredAt: record.CreatedAt,
		Metadata: AuditMetadata{
			"outcome":            string(record.Outcome),
			"failures_in_window": failuresInWindow,
		},
	}
}
