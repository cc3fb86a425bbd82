package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/smartcore/vaultgate/internal/models"
	"github.com/smartcore/vaultgate/pkg/logger"
)

// MemoryLedger is an in-memory AttemptLedger with optional overrides
type MemoryLedger struct {
	mu      sync.Mutex
	records []*models.AttemptRecord

	CountFailuresFunc func(ctx context.Context, userID string, since time.Time) (int, error)
	FailureTimesFunc  func(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
	AppendFunc        func(ctx context.Context, record *models.AttemptRecord) error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) seedFailures(userID string, times ...time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range times {
		m.records = append(m.records, &models.AttemptRecord{
			UserID:    userID,
			Outcome:   models.AttemptFailed,
			CreatedAt: t,
		})
	}
}

func (m *MemoryLedger) failureTimes(userID string, since time.Time) []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, 0)
	for _, r := range m.records {
		if r.UserID == userID && r.Outcome == models.AttemptFailed && !r.CreatedAt.Before(since) {
			out = append(out, r.CreatedAt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (m *MemoryLedger) CountFailures(ctx context.Context, userID string, since time.Time) (int, error) {
	if m.CountFailuresFunc != nil {
		return m.CountFailuresFunc(ctx, userID, since)
	}
	return len(m.failureTimes(userID, since)), nil
}

func (m *MemoryLedger) FailureTimes(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	if m.FailureTimesFunc != nil {
		return m.FailureTimesFunc(ctx, userID, since)
	}
	return m.failureTimes(userID, since), nil
}

func (m *MemoryLedger) Append(ctx context.Context, record *models.AttemptRecord) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

// Records returns a copy of all appended records
func (m *MemoryLedger) Records() []*models.AttemptRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AttemptRecord, len(m.records))
	copy(out, m.records)
	return out
}

// MockIdentityResolver implements auth.IdentityResolver for testing
type MockIdentityResolver struct {
	ResolveFunc func(ctx context.Context, credential string) (*models.Identity, error)
}

func (m *MockIdentityResolver) Resolve(ctx context.Context, credential string) (*models.Identity, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, credential)
	}
	return nil, models.ErrUnauthorized
}

// MockRoleResolver implements auth.RoleResolver for testing
type MockRoleResolver struct {
	RoleOfFunc func(ctx context.Context, identity *models.Identity) (string, error)
}

func (m *MockRoleResolver) RoleOf(ctx context.Context, identity *models.Identity) (string, error) {
	if m.RoleOfFunc != nil {
		return m.RoleOfFunc(ctx, identity)
	}
	return "", models.ErrNotFound
}

// CountingVerifier accepts one secret and counts comparisons
type CountingVerifier struct {
	mu       sync.Mutex
	Accept   string
	Compared int
}

func (v *CountingVerifier) Verify(submitted string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Compared++
	return submitted == v.Accept
}

func (v *CountingVerifier) Comparisons() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Compared
}

// MockGrantSigner implements GrantSigner for testing
type MockGrantSigner struct {
	IssueFunc func(userID string, now time.Time) (*models.UnlockGrant, error)
}

func (m *MockGrantSigner) Issue(userID string, now time.Time) (*models.UnlockGrant, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(userID, now)
	}
	return &models.UnlockGrant{
		Subject:   userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(20 * time.Minute),
		Token:     "grant-" + userID,
	}, nil
}

// MockPublisher records published routing keys
type MockPublisher struct {
	mu          sync.Mutex
	RoutingKeys []string
	PublishErr  error
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RoutingKeys = append(m.RoutingKeys, routingKey)
	return m.PublishErr
}

func (m *MockPublisher) Close() {}

func (m *MockPublisher) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.RoutingKeys))
	copy(out, m.RoutingKeys)
	return out
}

// MockLockoutNotifier records lockout alerts
type MockLockoutNotifier struct {
	mu    sync.Mutex
	Calls []models.LockoutStatus
}

func (m *MockLockoutNotifier) NotifyLockout(ctx context.Context, identity *models.Identity, status models.LockoutStatus, ipAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, status)
	return nil
}

func (m *MockLockoutNotifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockSESClient implements SESClient for testing
type MockSESClient struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params, optFns...)
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

// MockVaultItemRepository implements VaultItemRepository for testing
type MockVaultItemRepository struct {
	ListFunc   func(ctx context.Context) ([]*models.VaultItem, error)
	CreateFunc func(ctx context.Context, item *models.VaultItem, access *models.AttemptRecord) (*models.VaultItem, error)
}

func (m *MockVaultItemRepository) List(ctx context.Context) ([]*models.VaultItem, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return []*models.VaultItem{}, nil
}

func (m *MockVaultItemRepository) Create(ctx context.Context, item *models.VaultItem, access *models.AttemptRecord) (*models.VaultItem, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, item, access)
	}
	created := *item
	created.ID = "item-1"
	return &created, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuditService(publisher *MockPublisher, notifier LockoutNotifier) *AuditService {
	log := discardLogger()
	if publisher == nil {
		publisher = &MockPublisher{}
	}
	return NewAuditService(logger.NewAuditLogger(log, "test"), publisher, notifier, log)
}
