package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/smartcore/vaultgate/internal/auth"
	"github.com/smartcore/vaultgate/internal/background"
	"github.com/smartcore/vaultgate/internal/config"
	"github.com/smartcore/vaultgate/internal/database"
	"github.com/smartcore/vaultgate/internal/handlers"
	"github.com/smartcore/vaultgate/internal/metrics"
	middlewareCustom "github.com/smartcore/vaultgate/internal/middleware"
	"github.com/smartcore/vaultgate/internal/repositories"
	"github.com/smartcore/vaultgate/internal/routes"
	"github.com/smartcore/vaultgate/internal/services"
	pkgauth "github.com/smartcore/vaultgate/pkg/auth"
	"github.com/smartcore/vaultgate/pkg/events"
	pkghttp "github.com/smartcore/vaultgate/pkg/http"
	pkglogger "github.com/smartcore/vaultgate/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("identity_mode", cfg.Identity.Mode),
		slog.String("privileged_role", cfg.Vault.PrivilegedRole),
	)

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	ledgerRepo := repositories.NewAttemptLedgerRepository(db)
	directoryRepo := repositories.NewLoginDirectoryRepository(db)
	vaultItemRepo := repositories.NewVaultItemRepository(db)

	identities := newIdentityResolver(cfg.Identity)

	// Reference secret: a missing or broken secret keeps the service up,
	// every unlock attempt then fails as misconfigured
	var secret services.SecretVerifier
	if cfg.Vault.ReferenceSecretConfigured() {
		ref, err := pkgauth.NewReferenceSecret(cfg.Vault.PinAlgorithm, cfg.Vault.PinSalt, cfg.Vault.PinHash)
		if err != nil {
			logger.Error("invalid vault reference secret", slog.Any("error", err))
		} else {
			secret = ref
			logger.Info("vault reference secret loaded", slog.String("algorithm", ref.Algorithm()))
		}
	} else {
		logger.Error("vault reference secret not configured, unlock attempts will fail")
	}

	if cfg.Vault.PrivilegedRole == "" {
		logger.Error("VAULT_PRIVILEGED_ROLE not set, unlock attempts will fail")
	}

	grants := auth.NewGrantIssuer(cfg.Vault.GrantSigningKey, cfg.Vault.GrantTTL)
	logger.Info("vault unlock grants enabled", slog.Duration("ttl", grants.TTL()))

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Vault.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Vault.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Vault.TimingDelayOnSuccess,
	})

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// Audit fan-out: log, broker, lockout alerts
	publisher := events.NewPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
	notifier := services.NewLockoutNotifier(cfg.Alerts.AWSRegion, cfg.Alerts.FromAddress, cfg.Alerts.Recipients, logger)
	auditService := services.NewAuditService(pkglogger.NewAuditLogger(logger, cfg.Server.Env), publisher, notifier, logger)

	lockout := services.NewLockoutPolicy(ledgerRepo, services.LockoutConfig{
		Window:    cfg.Vault.LockoutWindow,
		Threshold: cfg.Vault.LockoutThreshold,
	})

	gate := services.NewVaultGate(services.VaultGateDeps{
		Identities: identities,
		Roles:      directoryRepo,
		Ledger:     ledgerRepo,
		Lockout:    lockout,
		Secret:     secret,
		Grants:     grants,
		Timing:     timingDelay,
		Audit:      auditService,
		Metrics:    collector,
	}, services.VaultGateConfig{
		PrivilegedRole: cfg.Vault.PrivilegedRole,
		RequestTimeout: cfg.Vault.RequestTimeout,
	}, logger)

	itemService := services.NewVaultItemService(vaultItemRepo, auditService, collector)

	// Retention job
	retention := background.NewRetentionManager(ledgerRepo, collector, background.RetentionConfig{
		Schedule:  cfg.Vault.AuditRetentionSchedule,
		Retention: cfg.Vault.AuditRetention,
	}, logger)

	// Initialize handlers
	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	vaultHandler := handlers.NewVaultHandler(gate, itemService, ipConfig, logger)
	healthHandler := handlers.NewHealthHandler(db, secret != nil && cfg.Vault.PrivilegedRole != "")

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	verifyLimit := middlewareCustom.DefaultVerifyRateLimit(ipConfig)
	verifyLimit.RequestsPerMinute = cfg.Server.VerifyRequestsPerMin

	routes.RegisterRoutes(router, routes.Dependencies{
		Vault:          vaultHandler,
		Health:         healthHandler,
		Metrics:        metrics.Handler(registry),
		Identities:     identities,
		Roles:          directoryRepo,
		Grants:         grants,
		PrivilegedRole: cfg.Vault.PrivilegedRole,
		VerifyLimit:    verifyLimit,
		Logger:         logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start retention task
	retentionCtx, retentionCancel := context.WithCancel(context.Background())
	defer retentionCancel()

	if err := retention.Start(retentionCtx); err != nil {
		logger.Error("failed to start retention job", slog.Any("error", err))
		os.Exit(1)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	retentionCancel()
	retention.Stop()

	// Drain in-flight audit deliveries before closing the broker connection
	auditService.Wait()
	publisher.Close()

	logger.Info("server stopped gracefully")
}

func newIdentityResolver(cfg config.IdentityConfig) auth.IdentityResolver {
	if cfg.Mode == "remote" {
		return auth.NewRemoteIdentityResolver(cfg.URL, cfg.APIKey, &http.Client{Timeout: 5 * time.Second})
	}
	return auth.NewTokenManager(cfg.JWTSecret, cfg.Audience, cfg.Issuer)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
