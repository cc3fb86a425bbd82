package models

import (
	"net/http"
	"time"
)

// AttemptOutcome is the result of one secret comparison
type AttemptOutcome string

const (
	AttemptFailed    AttemptOutcome = "failed"
	AttemptSucceeded AttemptOutcome = "succeeded"
)

// Ledger actions as stored in vault_audit_log
const (
	ActionUnlockFailed = "unlock_attempt_failed"
	ActionUnlocked     = "unlocked"
	ActionItemCreated  = "item_created"
	ActionItemsListed  = "items_listed"
)

// Action maps an outcome onto its ledger action name
func (o AttemptOutcome) Action() string {
	if o == AttemptSucceeded {
		return ActionUnlocked
	}
	return ActionUnlockFailed
}

// AttemptRecord is an immutable fact about one verification attempt
type AttemptRecord struct {
	ID          string
	UserID      string
	Outcome     AttemptOutcome
	IPAddress   string
	UserAgent   string
	VaultItemID *string
	CreatedAt   time.Time
}

// UnlockGrant is a time-bounded capability issued after a successful verification.
// It is valid only while now < ExpiresAt.
type UnlockGrant struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Token     string
}

// ValidAt reports whether the grant is still usable at t
func (g *UnlockGrant) ValidAt(t time.Time) bool {
	return g != nil && t.Before(g.ExpiresAt)
}

// FailureKind classifies why a verification did not unlock the vault
type FailureKind string

const (
	FailureNone                FailureKind = ""
	FailureUnauthenticated     FailureKind = "unauthenticated"
	FailureForbidden           FailureKind = "forbidden"
	FailureLockedOut           FailureKind = "locked_out"
	FailureInvalidInput        FailureKind = "invalid_input"
	FailureIncorrectSecret     FailureKind = "incorrect_secret"
	FailureServerMisconfigured FailureKind = "server_misconfigured"
	FailureUnavailable         FailureKind = "unavailable"
)

// HTTPStatus returns the status code a failure kind is reported with
func (k FailureKind) HTTPStatus() int {
	switch k {
	case FailureNone:
		return http.StatusOK
	case FailureUnauthenticated, FailureIncorrectSecret:
		return http.StatusUnauthorized
	case FailureForbidden:
		return http.StatusForbidden
	case FailureLockedOut:
		return http.StatusTooManyRequests
	case FailureInvalidInput:
		return http.StatusBadRequest
	case FailureUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Operational reports whether the failure is caused by the service rather than the caller
func (k FailureKind) Operational() bool {
	return k == FailureServerMisconfigured || k == FailureUnavailable
}

// GateResult is the outcome of a single vault verification
type GateResult struct {
	Failure    FailureKind
	Message    string
	RetryAfter time.Duration // set for FailureLockedOut
	Grant      *UnlockGrant  // set on success
	Identity   *Identity     // set once the caller is authenticated
}

// OK reports whether the verification unlocked the vault
func (r *GateResult) OK() bool {
	return r.Failure == FailureNone && r.Grant != nil
}

// LockoutStatus describes the lockout state of one user at a point in time
type LockoutStatus struct {
	Locked           bool
	RetryAfter       time.Duration
	FailuresInWindow int
	Threshold        int
}
