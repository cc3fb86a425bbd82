package handlers

import (
	"time"

	"github.com/smartcore/vaultgate/internal/models"
)

// Verification DTOs

// VerifyVaultPinRequest is the body of POST /verify-vault-pin.
// "secret" is accepted as an alias of "pin".
type VerifyVaultPinRequest struct {
	Pin    string `json:"pin"`
	Secret string `json:"secret"`
}

// submitted returns the PIN field, falling back to the alias
func (r VerifyVaultPinRequest) submitted() string {
	if r.Pin != "" {
		return r.Pin
	}
	return r.Secret
}

// VerifyVaultPinResponse is returned for every verification outcome
type VerifyVaultPinResponse struct {
	OK                 bool       `json:"ok"`
	Message            string     `json:"message"`
	UnlockedForMinutes int        `json:"unlocked_for_minutes,omitempty"`
	GrantToken         string     `json:"grant_token,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	HTTPStatus         int        `json:"http_status,omitempty"`
	RetryAfterSeconds  int        `json:"retry_after_seconds,omitempty"`
}

// Status DTOs

// VaultStatusResponse reports the caller's lockout state
type VaultStatusResponse struct {
	Locked            bool `json:"locked"`
	RetryAfterSeconds int  `json:"retry_after_seconds"`
	FailuresInWindow  int  `json:"failures_in_window"`
	Threshold         int  `json:"threshold"`
}

// Vault item DTOs

// CreateVaultItemRequest is the body of POST /vault/items
type CreateVaultItemRequest struct {
	ServiceName   string   `json:"service_name" validate:"required,max=255"`
	URL           string   `json:"url" validate:"omitempty,url,max=2048"`
	UsernameEmail string   `json:"username_email" validate:"omitempty,max=255"`
	Notes         string   `json:"notes" validate:"omitempty,max=10000"`
	Tags          []string `json:"tags" validate:"omitempty,max=10,dive,max=50"`
}

// VaultItemResponse is the public form of a vault item
type VaultItemResponse struct {
	ID            string    `json:"id"`
	ServiceName   string    `json:"service_name"`
	URL           *string   `json:"url"`
	UsernameEmail *string   `json:"username_email"`
	Notes         *string   `json:"notes"`
	Tags          []string  `json:"tags"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// VaultItemListResponse wraps a list of vault items
type VaultItemListResponse struct {
	Items []VaultItemResponse `json:"items"`
	Count int                 `json:"count"`
}

func toVaultItemResponse(item *models.VaultItem) VaultItemResponse {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return VaultItemResponse{
		ID:            item.ID,
		ServiceName:   item.ServiceName,
		URL:           item.URL,
		UsernameEmail: item.UsernameEmail,
		Notes:         item.Notes,
		Tags:          tags,
		CreatedBy:     item.CreatedBy,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}
}
