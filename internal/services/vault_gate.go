package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/smartcore/vaultgate/internal/auth"
	"github.com/smartcore/vaultgate/internal/metrics"
	"github.com/smartcore/vaultgate/internal/models"
)

// Messages returned to the client; safe to render verbatim
const (
	msgNotAuthenticated = "Missing auth token."
	msgAuthInvalid      = "Auth invalid."
	msgAdminOnly        = "Admin only."
	msgPinRequired      = "PIN required."
	msgPinTooLong       = "PIN is too long."
	msgIncorrectPin     = "Incorrect PIN."
	msgUnlocked         = "Unlocked."
	msgNotConfigured    = "Server PIN not configured."
	msgServerError      = "Server not configured."
	msgUnavailable      = "Vault temporarily unavailable. Try again."
)

// ledgerWriteTimeout bounds the attempt write after a comparison. The write is
// detached from the request so a client disconnect cannot skip it.
const ledgerWriteTimeout = 3 * time.Second

// SecretVerifier checks a submitted secret against the reference material in constant time
type SecretVerifier interface {
	Verify(submitted string) bool
}

// GrantSigner issues unlock grants
type GrantSigner interface {
	Issue(userID string, now time.Time) (*models.UnlockGrant, error)
}

// VerifyRequest is one unlock attempt
type VerifyRequest struct {
	Credential string
	Secret     string
	IPAddress  string
	UserAgent  string
}

// secretInput is validated after trimming
type secretInput struct {
	Secret string `validate:"required,max=128"`
}

// VaultGateConfig holds gate policy
type VaultGateConfig struct {
	PrivilegedRole string
	RequestTimeout time.Duration
}

// VaultGateDeps are the collaborators of the gate. Secret may be nil when no
// reference secret is provisioned; every privileged attempt then fails as
// ServerMisconfigured.
type VaultGateDeps struct {
	Identities auth.IdentityResolver
	Roles      auth.RoleResolver
	Ledger     AttemptLedger
	Lockout    *LockoutPolicy
	Secret     SecretVerifier
	Grants     GrantSigner
	Timing     *auth.TimingDelay
	Audit      *AuditService
	Metrics    metrics.GateRecorder
}

// VaultGate authorizes, rate-limits and verifies vault unlock attempts
type VaultGate struct {
	deps     VaultGateDeps
	config   VaultGateConfig
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewVaultGate creates a new VaultGate
func NewVaultGate(deps VaultGateDeps, config VaultGateConfig, logger *slog.Logger) *VaultGate {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &VaultGate{
		deps:     deps,
		config:   config,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the gate's time source (tests)
func (g *VaultGate) SetClock(now func() time.Time) {
	g.now = now
}

// Verify runs one unlock attempt through the gate. It never returns an error:
// every outcome, including dependency failures, is a GateResult.
func (g *VaultGate) Verify(ctx context.Context, req VerifyRequest) *models.GateResult {
	start := time.Now()

	if g.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.RequestTimeout)
		defer cancel()
	}

	result := g.verify(ctx, req)

	outcome := string(result.Failure)
	if result.OK() {
		outcome = "unlocked"
	}
	g.deps.Metrics.RecordVerification(outcome, result.Failure.Operational())
	g.deps.Metrics.RecordVerifyLatency(time.Since(start))

	if result.Failure.Operational() {
		g.logger.ErrorContext(ctx, "vault verification failed closed",
			slog.String("failure", string(result.Failure)),
			slog.String("ip_address", req.IPAddress),
		)
	}
	return result
}

func (g *VaultGate) verify(ctx context.Context, req VerifyRequest) *models.GateResult {
	start := time.Now()

	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		return failure(models.FailureUnauthenticated, msgNotAuthenticated)
	}

	if g.config.PrivilegedRole == "" {
		g.logger.ErrorContext(ctx, "privileged role not configured")
		return failure(models.FailureServerMisconfigured, msgServerError)
	}

	identity, err := g.deps.Identities.Resolve(ctx, credential)
	if err != nil {
		if isUnavailable(err) {
			g.logger.ErrorContext(ctx, "identity resolver unavailable", slog.Any("error", err))
			return failure(models.FailureUnavailable, msgUnavailable)
		}
		g.deps.Audit.RecordDenial(ctx, nil, models.FailureUnauthenticated, req.IPAddress)
		return failure(models.FailureUnauthenticated, msgAuthInvalid)
	}

	if result := g.authorize(ctx, identity, req.IPAddress); result != nil {
		return result
	}

	if g.deps.Secret == nil {
		g.logger.ErrorContext(ctx, "vault reference secret not configured",
			slog.String("user_id", identity.UserID))
		return withIdentity(failure(models.FailureServerMisconfigured, msgNotConfigured), identity)
	}

	now := g.now().UTC()
	status, err := g.deps.Lockout.Check(ctx, identity.UserID, now)
	if err != nil {
		g.logger.ErrorContext(ctx, "lockout check failed",
			slog.String("user_id", identity.UserID),
			slog.Any("error", err))
		return withIdentity(g.dependencyFailure(err), identity)
	}
	if status.Locked {
		g.deps.Audit.RecordDenial(ctx, identity, models.FailureLockedOut, req.IPAddress)
		result := failure(models.FailureLockedOut, lockedMessage(status.RetryAfter))
		result.RetryAfter = status.RetryAfter
		return withIdentity(result, identity)
	}

	secret := strings.TrimSpace(req.Secret)
	if err := g.validate.Struct(secretInput{Secret: secret}); err != nil {
		message := msgPinRequired
		if secret != "" {
			message = msgPinTooLong
		}
		return withIdentity(failure(models.FailureInvalidInput, message), identity)
	}

	matched := g.deps.Secret.Verify(secret)

	record := &models.AttemptRecord{
		ID:        uuid.New().String(),
		UserID:    identity.UserID,
		Outcome:   models.AttemptFailed,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		CreatedAt: now,
	}

	if !matched {
		g.appendRecord(ctx, identity, record)

		failures := status.FailuresInWindow + 1
		g.deps.Audit.RecordAttempt(ctx, identity, record, failures)

		if failures >= g.deps.Lockout.Config().Threshold {
			g.deps.Metrics.RecordLockout()
			g.deps.Audit.RecordLockout(ctx, identity, models.LockoutStatus{
				Locked:           true,
				RetryAfter:       g.deps.Lockout.Config().Window,
				FailuresInWindow: failures,
				Threshold:        g.deps.Lockout.Config().Threshold,
			}, req.IPAddress)
		}

		g.deps.Timing.WaitFrom(ctx, start, false)
		return withIdentity(failure(models.FailureIncorrectSecret, msgIncorrectPin), identity)
	}

	record.Outcome = models.AttemptSucceeded

	// Sign first so an unlocked row always has a grant behind it. The
	// comparison is still recorded when signing fails.
	grant, err := g.deps.Grants.Issue(identity.UserID, now)
	g.appendRecord(ctx, identity, record)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to issue unlock grant",
			slog.String("user_id", identity.UserID),
			slog.Any("error", err))
		g.deps.Audit.RecordGrantFailure(ctx, record, err)
		return withIdentity(failure(models.FailureServerMisconfigured, msgServerError), identity)
	}

	g.deps.Audit.RecordAttempt(ctx, identity, record, status.FailuresInWindow)

	g.deps.Timing.WaitFrom(ctx, start, true)
	return &models.GateResult{
		Message:  msgUnlocked,
		Grant:    grant,
		Identity: identity,
	}
}

// authorize resolves the caller's role fresh and requires the privileged role.
// Role-stage rejections are not recorded in the ledger.
func (g *VaultGate) authorize(ctx context.Context, identity *models.Identity, ipAddress string) *models.GateResult {
	role, err := g.deps.Roles.RoleOf(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			g.deps.Audit.RecordDenial(ctx, identity, models.FailureForbidden, ipAddress)
			return withIdentity(failure(models.FailureForbidden, msgAdminOnly), identity)
		}
		g.logger.ErrorContext(ctx, "role lookup failed",
			slog.String("user_id", identity.UserID),
			slog.Any("error", err))
		return withIdentity(g.dependencyFailure(err), identity)
	}

	if !strings.EqualFold(role, g.config.PrivilegedRole) {
		g.deps.Audit.RecordDenial(ctx, identity, models.FailureForbidden, ipAddress)
		return withIdentity(failure(models.FailureForbidden, msgAdminOnly), identity)
	}
	return nil
}

// appendRecord writes the attempt; a failed write is an anomaly, not a verdict
func (g *VaultGate) appendRecord(ctx context.Context, identity *models.Identity, record *models.AttemptRecord) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()

	if err := g.deps.Ledger.Append(writeCtx, record); err != nil {
		g.deps.Metrics.RecordLedgerWriteFailure()
		g.deps.Audit.RecordLedgerFailure(ctx, record, err)
	}
}

// dependencyFailure maps an upstream error onto a fail-closed result
func (g *VaultGate) dependencyFailure(err error) *models.GateResult {
	if isUnavailable(err) {
		return failure(models.FailureUnavailable, msgUnavailable)
	}
	return failure(models.FailureServerMisconfigured, msgServerError)
}

// Status reports the caller's current lockout state without recording anything
func (g *VaultGate) Status(ctx context.Context, identity *models.Identity) (models.LockoutStatus, error) {
	return g.deps.Lockout.Check(ctx, identity.UserID, g.now().UTC())
}

func failure(kind models.FailureKind, message string) *models.GateResult {
	return &models.GateResult{Failure: kind, Message: message}
}

func withIdentity(result *models.GateResult, identity *models.Identity) *models.GateResult {
	result.Identity = identity
	return result
}

func lockedMessage(retryAfter time.Duration) string {
	minutes := int((retryAfter + time.Minute - 1) / time.Minute)
	if minutes <= 1 {
		return "Too many attempts. Locked for 1 more minute."
	}
	return fmt.Sprintf("Too many attempts. Locked for %d more minutes.", minutes)
}

func isUnavailable(err error) bool {
	return errors.Is(err, models.ErrUpstreamUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
