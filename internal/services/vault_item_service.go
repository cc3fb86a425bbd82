package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/smartcore/vaultgate/internal/metrics"
	"github.com/smartcore/vaultgate/internal/models"
)

// VaultItemRepository defines vault item storage
type VaultItemRepository interface {
	List(ctx context.Context) ([]*models.VaultItem, error)
	Create(ctx context.Context, item *models.VaultItem, access *models.AttemptRecord) (*models.VaultItem, error)
}

// CreateVaultItemInput carries already-validated fields for a new item
type CreateVaultItemInput struct {
	ServiceName   string
	URL           string
	UsernameEmail string
	Notes         string
	Tags          []string
}

// AccessContext identifies who is touching the vault and from where
type AccessContext struct {
	Identity  *models.Identity
	IPAddress string
	UserAgent string
}

// VaultItemService serves the guarded vault item list. Callers must already
// hold a verified unlock grant.
type VaultItemService struct {
	repo    VaultItemRepository
	audit   *AuditService
	metrics metrics.GateRecorder
	policy  *bluemonday.Policy
	now     func() time.Time
}

// NewVaultItemService creates a new VaultItemService
func NewVaultItemService(repo VaultItemRepository, audit *AuditService, recorder metrics.GateRecorder) *VaultItemService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &VaultItemService{
		repo:    repo,
		audit:   audit,
		metrics: recorder,
		policy:  bluemonday.StrictPolicy(),
		now:     time.Now,
	}
}

// List returns all vault items ordered by service name
func (s *VaultItemService) List(ctx context.Context, access AccessContext) ([]*models.VaultItem, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vault items: %w", err)
	}

	s.metrics.RecordItemAccess(models.ActionItemsListed)
	s.audit.RecordItemAccess(ctx, access.Identity, models.ActionItemsListed, nil, access.IPAddress)
	return items, nil
}

// Create stores a new vault item together with its item_created ledger row
func (s *VaultItemService) Create(ctx context.Context, access AccessContext, input CreateVaultItemInput) (*models.VaultItem, error) {
	serviceName := s.clean(input.ServiceName)
	if serviceName == "" {
		return nil, fmt.Errorf("%w: service name is required", models.ErrBadRequest)
	}

	item := &models.VaultItem{
		ServiceName:   serviceName,
		URL:           optional(strings.TrimSpace(input.URL)),
		UsernameEmail: optional(strings.TrimSpace(input.UsernameEmail)),
		Notes:         optional(s.clean(input.Notes)),
		Tags:          s.normalizeTags(input.Tags),
		CreatedBy:     access.Identity.UserID,
	}

	record := &models.AttemptRecord{
		UserID:    access.Identity.UserID,
		IPAddress: access.IPAddress,
		UserAgent: access.UserAgent,
		CreatedAt: s.now().UTC(),
	}

	created, err := s.repo.Create(ctx, item, record)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordItemAccess(models.ActionItemCreated)
	s.audit.RecordItemAccess(ctx, access.Identity, models.ActionItemCreated, &created.ID, access.IPAddress)
	return created, nil
}

// clean strips all markup and returns plain text. Entities escaped by the
// policy are decoded again so stored values match what the caller typed.
func (s *VaultItemService) clean(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(value)))
}

// normalizeTags lowercases, strips markup and de-duplicates tags, keeping order
func (s *VaultItemService) normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(s.clean(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
