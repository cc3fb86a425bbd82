package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/smartcore/vaultgate/internal/auth"
	"github.com/smartcore/vaultgate/internal/models"
	"github.com/smartcore/vaultgate/internal/services"
	pkghttp "github.com/smartcore/vaultgate/pkg/http"
)

// VaultGateService is the gate surface used by the handler
type VaultGateService interface {
	Verify(ctx context.Context, req services.VerifyRequest) *models.GateResult
	Status(ctx context.Context, identity *models.Identity) (models.LockoutStatus, error)
}

// VaultItemService is the item surface used by the handler
type VaultItemService interface {
	List(ctx context.Context, access services.AccessContext) ([]*models.VaultItem, error)
	Create(ctx context.Context, access services.AccessContext, input services.CreateVaultItemInput) (*models.VaultItem, error)
}

// VaultHandler handles vault unlock and vault item requests
type VaultHandler struct {
	gate     VaultGateService
	items    VaultItemService
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewVaultHandler creates a new vault handler
func NewVaultHandler(gate VaultGateService, items VaultItemService, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{
		gate:     gate,
		items:    items,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// VerifyPin handles POST /verify-vault-pin
func (h *VaultHandler) VerifyPin(w http.ResponseWriter, r *http.Request) {
	var req VerifyVaultPinRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		// An unreadable body is an empty PIN; the gate still checks the credential first
		req = VerifyVaultPinRequest{}
	}

	result := h.gate.Verify(r.Context(), services.VerifyRequest{
		Credential: pkghttp.BearerToken(r),
		Secret:     req.submitted(),
		IPAddress:  pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:  r.UserAgent(),
	})

	if result.OK() {
		expiresAt := result.Grant.ExpiresAt.UTC()
		pkghttp.WriteJSON(w, http.StatusOK, VerifyVaultPinResponse{
			OK:                 true,
			Message:            result.Message,
			UnlockedForMinutes: int(result.Grant.ExpiresAt.Sub(result.Grant.IssuedAt) / time.Minute),
			GrantToken:         result.Grant.Token,
			ExpiresAt:          &expiresAt,
		})
		return
	}

	status := result.Failure.HTTPStatus()
	resp := VerifyVaultPinResponse{
		OK:         false,
		Message:    result.Message,
		HTTPStatus: status,
	}
	if result.Failure == models.FailureLockedOut {
		seconds := retryAfterSeconds(result.RetryAfter)
		resp.RetryAfterSeconds = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	pkghttp.WriteJSON(w, status, resp)
}

// Status handles GET /vault/status
func (h *VaultHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	status, err := h.gate.Status(r.Context(), identity)
	if err != nil {
		h.writeDependencyError(w, "failed to read vault status", identity, err)
		return
	}

	resp := VaultStatusResponse{
		Locked:           status.Locked,
		FailuresInWindow: status.FailuresInWindow,
		Threshold:        status.Threshold,
	}
	if status.Locked {
		resp.RetryAfterSeconds = retryAfterSeconds(status.RetryAfter)
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ListItems handles GET /vault/items
func (h *VaultHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	items, err := h.items.List(r.Context(), h.accessContext(r, identity))
	if err != nil {
		h.writeDependencyError(w, "failed to list vault items", identity, err)
		return
	}

	resp := VaultItemListResponse{
		Items: make([]VaultItemResponse, 0, len(items)),
		Count: len(items),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, toVaultItemResponse(item))
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// CreateItem handles POST /vault/items
func (h *VaultHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	var req CreateVaultItemRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "validation_error", "Invalid vault item", err.Error())
		return
	}

	item, err := h.items.Create(r.Context(), h.accessContext(r, identity), services.CreateVaultItemInput{
		ServiceName:   req.ServiceName,
		URL:           req.URL,
		UsernameEmail: req.UsernameEmail,
		Notes:         req.Notes,
		Tags:          req.Tags,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid vault item")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteError(w, http.StatusConflict, "conflict", "Vault item already exists")
		default:
			h.writeDependencyError(w, "failed to create vault item", identity, err)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toVaultItemResponse(item))
}

func (h *VaultHandler) accessContext(r *http.Request, identity *models.Identity) services.AccessContext {
	return services.AccessContext{
		Identity:  identity,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.UserAgent(),
	}
}

func (h *VaultHandler) writeDependencyError(w http.ResponseWriter, msg string, identity *models.Identity, err error) {
	h.logger.Error(msg, slog.String("user_id", identity.UserID), slog.Any("error", err))
	if errors.Is(err, models.ErrUpstreamUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		pkghttp.WriteServiceUnavailable(w, "Vault temporarily unavailable")
		return
	}
	pkghttp.WriteInternalError(w, "Internal server error")
}

// retryAfterSeconds rounds up to whole seconds, never below one
func retryAfterSeconds(d time.Duration) int {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}
