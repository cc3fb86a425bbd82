package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func minutesAfter(minutes ...float64) []time.Time {
	out := make([]time.Time, len(minutes))
	for i, m := range minutes {
		out[i] = epoch.Add(time.Duration(m * float64(time.Minute)))
	}
	return out
}

func TestEvaluateLockout_BelowThreshold(t *testing.T) {
	status := EvaluateLockout(minutesAfter(0, 1, 2, 3), epoch.Add(4*time.Minute), 10*time.Minute, 5)

	assert.False(t, status.Locked)
	assert.Equal(t, 4, status.FailuresInWindow)
	assert.Zero(t, status.RetryAfter)
}

func TestEvaluateLockout_ExactlyThreshold(t *testing.T) {
	// Scenario B: five failures at t=0..4m, sixth attempt at t=5m
	status := EvaluateLockout(minutesAfter(0, 1, 2, 3, 4), epoch.Add(5*time.Minute), 10*time.Minute, 5)

	assert.True(t, status.Locked)
	assert.Equal(t, 5*time.Minute, status.RetryAfter)
}

func TestEvaluateLockout_UnlocksWhenOldestLeaves(t *testing.T) {
	failures := minutesAfter(0, 1, 2, 3, 4)

	// Scenario C: just after the oldest failure ages out the count is 4
	status := EvaluateLockout(failures, epoch.Add(10*time.Minute+time.Second), 10*time.Minute, 5)

	assert.False(t, status.Locked)
	assert.Equal(t, 4, status.FailuresInWindow)
}

func TestEvaluateLockout_MoreThanThreshold(t *testing.T) {
	// Seven failures: lock lifts when the third oldest leaves, not the first
	failures := minutesAfter(0, 1, 2, 3, 4, 5, 6)

	status := EvaluateLockout(failures, epoch.Add(7*time.Minute), 10*time.Minute, 5)

	assert.True(t, status.Locked)
	assert.Equal(t, 7, status.FailuresInWindow)
	assert.Equal(t, 5*time.Minute, status.RetryAfter)
}

func TestEvaluateLockout_IgnoresOutsideWindow(t *testing.T) {
	failures := minutesAfter(-30, -20, 0, 1, 2)

	status := EvaluateLockout(failures, epoch.Add(3*time.Minute), 10*time.Minute, 5)

	assert.False(t, status.Locked)
	assert.Equal(t, 3, status.FailuresInWindow)
}

func TestEvaluateLockout_RetryAfterMonotone(t *testing.T) {
	failures := minutesAfter(0, 0.5, 1, 2, 4)

	previous := time.Duration(1<<63 - 1)
	for now := epoch.Add(4 * time.Minute); now.Before(epoch.Add(11 * time.Minute)); now = now.Add(7 * time.Second) {
		status := EvaluateLockout(failures, now, 10*time.Minute, 5)
		if !status.Locked {
			break
		}
		assert.LessOrEqual(t, status.RetryAfter, previous, "retry_after increased at %v", now)
		previous = status.RetryAfter
	}
}

func TestLockoutPolicy_Check_SkipsTimestampsBelowThreshold(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.FailureTimesFunc = func(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
		t.Fatal("FailureTimes must not be read below the threshold")
		return nil, nil
	}
	ledger.seedFailures("user-1", minutesAfter(0, 1)...)

	policy := NewLockoutPolicy(ledger, LockoutConfig{Window: 10 * time.Minute, Threshold: 5})
	status, err := policy.Check(context.Background(), "user-1", epoch.Add(2*time.Minute))

	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Equal(t, 2, status.FailuresInWindow)
}

func TestLockoutPolicy_Check_Locked(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.seedFailures("user-1", minutesAfter(0, 1, 2, 3, 4)...)

	policy := NewLockoutPolicy(ledger, LockoutConfig{Window: 10 * time.Minute, Threshold: 5})
	status, err := policy.Check(context.Background(), "user-1", epoch.Add(5*time.Minute))

	require.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, 5*time.Minute, status.RetryAfter)
}

func TestLockoutPolicy_Check_PerUser(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.seedFailures("user-1", minutesAfter(0, 1, 2, 3, 4)...)

	policy := NewLockoutPolicy(ledger, LockoutConfig{Window: 10 * time.Minute, Threshold: 5})
	status, err := policy.Check(context.Background(), "user-2", epoch.Add(5*time.Minute))

	require.NoError(t, err)
	assert.False(t, status.Locked)
}

func TestLockoutPolicy_Check_LedgerError(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.CountFailuresFunc = func(ctx context.Context, userID string, since time.Time) (int, error) {
		return 0, errors.New("connection refused")
	}

	policy := NewLockoutPolicy(ledger, LockoutConfig{Window: 10 * time.Minute, Threshold: 5})
	_, err := policy.Check(context.Background(), "user-1", epoch)

	assert.Error(t, err)
}
