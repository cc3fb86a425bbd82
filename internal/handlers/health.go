package handlers

import (
	"context"
	"net/http"

	pkghttp "github.com/smartcore/vaultgate/pkg/http"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Vault    string `json:"vault"`
}

// HealthHandler handles GET /health
type HealthHandler struct {
	db              HealthChecker
	secretProvision bool
}

// NewHealthHandler creates a new health handler. secretProvisioned reports
// whether the reference PIN material was loaded at startup.
func NewHealthHandler(db HealthChecker, secretProvisioned bool) *HealthHandler {
	return &HealthHandler{db: db, secretProvision: secretProvisioned}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok", Vault: "ok"}
	status := http.StatusOK

	if err := h.db.HealthCheck(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if !h.secretProvision {
		resp.Status = "degraded"
		resp.Vault = "not_configured"
	}

	pkghttp.WriteJSON(w, status, resp)
}
