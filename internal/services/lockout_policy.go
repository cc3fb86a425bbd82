package services

import (
	"context"
	"fmt"
	"time"

	"github.com/smartcore/vaultgate/internal/models"
)

// AttemptLedger is the append-only store of vault verification attempts
type AttemptLedger interface {
	CountFailures(ctx context.Context, userID string, since time.Time) (int, error)
	FailureTimes(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
	Append(ctx context.Context, record *models.AttemptRecord) error
}

// LockoutConfig holds the trailing window and failure threshold
type LockoutConfig struct {
	Window    time.Duration
	Threshold int
}

// LockoutPolicy decides from the ledger whether a user may attempt verification
type LockoutPolicy struct {
	ledger AttemptLedger
	config LockoutConfig
}

// NewLockoutPolicy creates a new LockoutPolicy
func NewLockoutPolicy(ledger AttemptLedger, config LockoutConfig) *LockoutPolicy {
	return &LockoutPolicy{ledger: ledger, config: config}
}

// Config returns the policy's window and threshold
func (p *LockoutPolicy) Config() LockoutConfig {
	return p.config
}

// Check returns the lockout status of userID at now. Failure timestamps are
// only read once the count reaches the threshold.
func (p *LockoutPolicy) Check(ctx context.Context, userID string, now time.Time) (models.LockoutStatus, error) {
	since := now.Add(-p.config.Window)

	count, err := p.ledger.CountFailures(ctx, userID, since)
	if err != nil {
		return models.LockoutStatus{}, fmt.Errorf("count failures: %w", err)
	}

	if count < p.config.Threshold {
		return models.LockoutStatus{
			FailuresInWindow: count,
			Threshold:        p.config.Threshold,
		}, nil
	}

	failures, err := p.ledger.FailureTimes(ctx, userID, since)
	if err != nil {
		return models.LockoutStatus{}, fmt.Errorf("read failure times: %w", err)
	}

	status := EvaluateLockout(failures, now, p.config.Window, p.config.Threshold)
	if !status.Locked {
		// Count and timestamps disagree (concurrent prune); stay locked for a full window
		status.Locked = true
		status.RetryAfter = p.config.Window
		status.FailuresInWindow = count
	}
	return status, nil
}

// EvaluateLockout computes lockout state from failure timestamps sorted oldest first.
// A user is locked while at least threshold failures fall in [now-window, now];
// RetryAfter is the time until enough of them age out for the count to drop below threshold.
func EvaluateLockout(failures []time.Time, now time.Time, window time.Duration, threshold int) models.LockoutStatus {
	since := now.Add(-window)

	inWindow := make([]time.Time, 0, len(failures))
	for _, t := range failures {
		if !t.Before(since) && !t.After(now) {
			inWindow = append(inWindow, t)
		}
	}

	status := models.LockoutStatus{
		FailuresInWindow: len(inWindow),
		Threshold:        threshold,
	}
	if threshold < 1 || len(inWindow) < threshold {
		return status
	}

	// The count drops below threshold once the failure at index n-threshold leaves the window
	pivot := inWindow[len(inWindow)-threshold]
	retryAfter := pivot.Add(window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}

	status.Locked = true
	status.RetryAfter = retryAfter
	return status
}
