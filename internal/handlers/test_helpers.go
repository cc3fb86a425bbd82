package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartcore/vaultgate/internal/auth"
	"github.com/smartcore/vaultgate/internal/models"
	"github.com/smartcore/vaultgate/internal/services"
	pkghttp "github.com/smartcore/vaultgate/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithIdentityContext adds a resolved identity to the request context
func WithIdentityContext(req *http.Request, userID, email string) *http.Request {
	identity := &models.Identity{UserID: userID, Email: email}
	ctx := context.WithValue(req.Context(), auth.IdentityContextKey, identity)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockVaultGate implements VaultGateService for testing
type MockVaultGate struct {
	VerifyFunc func(ctx context.Context, req services.VerifyRequest) *models.GateResult
	StatusFunc func(ctx context.Context, identity *models.Identity) (models.LockoutStatus, error)
}

func (m *MockVaultGate) Verify(ctx context.Context, req services.VerifyRequest) *models.GateResult {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, req)
	}
	return &models.GateResult{Failure: models.FailureServerMisconfigured, Message: "Server not configured."}
}

func (m *MockVaultGate) Status(ctx context.Context, identity *models.Identity) (models.LockoutStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, identity)
	}
	return models.LockoutStatus{}, nil
}

// MockVaultItems implements VaultItemService for testing
type MockVaultItems struct {
	ListFunc   func(ctx context.Context, access services.AccessContext) ([]*models.VaultItem, error)
	CreateFunc func(ctx context.Context, access services.AccessContext, input services.CreateVaultItemInput) (*models.VaultItem, error)
}

func (m *MockVaultItems) List(ctx context.Context, access services.AccessContext) ([]*models.VaultItem, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, access)
	}
	return nil, nil
}

func (m *MockVaultItems) Create(ctx context.Context, access services.AccessContext, input services.CreateVaultItemInput) (*models.VaultItem, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, access, input)
	}
	return nil, models.ErrInternalServer
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	HealthCheckFunc func(ctx context.Context) error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}
