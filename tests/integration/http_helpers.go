package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smartcore/vaultgate/internal/auth"
	"github.com/smartcore/vaultgate/internal/database"
	"github.com/smartcore/vaultgate/internal/handlers"
	"github.com/smartcore/vaultgate/internal/metrics"
	middlewareCustom "github.com/smartcore/vaultgate/internal/middleware"
	"github.com/smartcore/vaultgate/internal/models"
	"github.com/smartcore/vaultgate/internal/repositories"
	"github.com/smartcore/vaultgate/internal/routes"
	"github.com/smartcore/vaultgate/internal/services"
	pkgauth "github.com/smartcore/vaultgate/pkg/auth"
	pkghttp "github.com/smartcore/vaultgate/pkg/http"
	pkglogger "github.com/smartcore/vaultgate/pkg/logger"
)

// PublishedEvent is one captured broker message
type PublishedEvent struct {
	RoutingKey string
	Body       interface{}
}

// CapturingPublisher records audit events instead of sending them to a broker
type CapturingPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

func (p *CapturingPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, PublishedEvent{RoutingKey: routingKey, Body: body})
	return nil
}

func (p *CapturingPublisher) Close() {}

// Count returns how many events were published with routingKey
func (p *CapturingPublisher) Count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.Events {
		if e.RoutingKey == routingKey {
			n++
		}
	}
	return n
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server    *httptest.Server
	DB        *database.DB
	Gate      *services.VaultGate
	Audit     *services.AuditService
	Publisher *CapturingPublisher
	Registry  *prometheus.Registry
}

// NewTestServer initializes the complete HTTP stack against a real database.
// The reference PIN is testPin; timing delays are disabled.
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := discardLogger()

	ledgerRepo := repositories.NewAttemptLedgerRepository(db)
	directoryRepo := repositories.NewLoginDirectoryRepository(db)
	itemRepo := repositories.NewVaultItemRepository(db)

	salt, hash, err := pkgauth.HashSecret(pkgauth.AlgorithmSHA256, testPin)
	if err != nil {
		return nil, fmt.Errorf("hash test pin: %w", err)
	}
	secret, err := pkgauth.NewReferenceSecret(pkgauth.AlgorithmSHA256, salt, hash)
	if err != nil {
		return nil, fmt.Errorf("build reference secret: %w", err)
	}

	identities := auth.NewTokenManager(testPlatformSecret, testAudience, "")
	grants := auth.NewGrantIssuer(testGrantKey, 20*time.Minute)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	publisher := &CapturingPublisher{}
	audit := services.NewAuditService(pkglogger.NewAuditLogger(logger, "test"), publisher, nil, logger)

	gate := services.NewVaultGate(services.VaultGateDeps{
		Identities: identities,
		Roles:      directoryRepo,
		Ledger:     ledgerRepo,
		Lockout: services.NewLockoutPolicy(ledgerRepo, services.LockoutConfig{
			Window:    10 * time.Minute,
			Threshold: testThreshold,
		}),
		Secret:  secret,
		Grants:  grants,
		Timing:  auth.NewTimingDelay(auth.TimingConfig{}),
		Audit:   audit,
		Metrics: collector,
	}, services.VaultGateConfig{
		PrivilegedRole: "admin",
		RequestTimeout: 5 * time.Second,
	}, logger)

	items := services.NewVaultItemService(itemRepo, audit, collector)
	ipConfig := pkghttp.NewIPConfig(nil)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(router, routes.Dependencies{
		Vault:          handlers.NewVaultHandler(gate, items, ipConfig, logger),
		Health:         handlers.NewHealthHandler(db, true),
		Metrics:        metrics.Handler(registry),
		Identities:     identities,
		Roles:          directoryRepo,
		Grants:         grants,
		PrivilegedRole: "admin",
		VerifyLimit:    middlewareCustom.RateLimitConfig{RequestsPerMinute: 1000, IPConfig: ipConfig},
		Logger:         logger,
	})

	return &TestServer{
		Server:    httptest.NewServer(router),
		DB:        db,
		Gate:      gate,
		Audit:     audit,
		Publisher: publisher,
		Registry:  registry,
	}, nil
}

// Close shuts down the server and drains pending audit deliveries
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Audit.Wait()
}

// Do sends a JSON request with optional bearer token and grant, decoding the response into target
func (ts *TestServer) Do(method, path, token, grant string, body, target interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if grant != "" {
		req.Header.Set(auth.GrantHeader, grant)
	}

	resp, err := ts.Server.Client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return resp, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

// Unlock submits pin for the bearer token and returns the decoded result
func (ts *TestServer) Unlock(token, pin string) (*http.Response, *handlers.VerifyVaultPinResponse, error) {
	var out handlers.VerifyVaultPinResponse
	resp, err := ts.Do(http.MethodPost, "/verify-vault-pin", token, "", handlers.VerifyVaultPinRequest{Pin: pin}, &out)
	return resp, &out, err
}

// LedgerActions counts ledger rows for userID after pending writes settle
func (ts *TestServer) LedgerActions(ctx context.Context, userID string, outcome models.AttemptOutcome) (int, error) {
	return CountActions(ctx, ts.DB.Pool, userID, outcome.Action())
}
