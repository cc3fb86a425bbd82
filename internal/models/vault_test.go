package models

import (
	"net/http"
	"testing"
	"time"
)

func TestFailureKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind     FailureKind
		expected int
	}{
		{FailureNone, http.StatusOK},
		{FailureUnauthenticated, http.StatusUnauthorized},
		{FailureForbidden, http.StatusForbidden},
		{FailureLockedOut, http.StatusTooManyRequests},
		{FailureInvalidInput, http.StatusBadRequest},
		{FailureIncorrectSecret, http.StatusUnauthorized},
		{FailureServerMisconfigured, http.StatusInternalServerError},
		{FailureUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		if got := tt.kind.HTTPStatus(); got != tt.expected {
			t.Errorf("%q: got %d, want %d", tt.kind, got, tt.expected)
		}
	}
}

func TestFailureKind_Operational(t *testing.T) {
	if !FailureServerMisconfigured.Operational() || !FailureUnavailable.Operational() {
		t.Error("misconfiguration and unavailability must be operational")
	}
	if FailureLockedOut.Operational() || FailureIncorrectSecret.Operational() {
		t.Error("caller-caused failures must not be operational")
	}
}

func TestUnlockGrant_ValidAt(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	grant := &UnlockGrant{Subject: "user-1", IssuedAt: issued, ExpiresAt: issued.Add(20 * time.Minute)}

	if !grant.ValidAt(issued.Add(19 * time.Minute)) {
		t.Error("grant should be valid before expiry")
	}
	if grant.ValidAt(issued.Add(20 * time.Minute)) {
		t.Error("grant must not be valid at expiry")
	}

	var missing *UnlockGrant
	if missing.ValidAt(issued) {
		t.Error("nil grant must never be valid")
	}
}
