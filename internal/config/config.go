package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Identity IdentityConfig
	Vault    VaultConfig
	Alerts   AlertConfig
	Events   EventsConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	RunMigrations     bool
}

type ServerConfig struct {
	Port                 string
	Env                  string
	LogLevel             string
	AllowedOrigins       []string
	TrustedProxies       []string
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	VerifyRequestsPerMin int
}

// IdentityConfig selects how bearer credentials are resolved to an identity
type IdentityConfig struct {
	Mode      string // "jwt" or "remote"
	JWTSecret string
	Audience  string
	Issuer    string
	URL       string
	APIKey    string
}

// VaultConfig holds the gate policy and the reference secret material
type VaultConfig struct {
	PinSalt          string
	PinHash          string
	PinAlgorithm     string
	PrivilegedRole   string
	GrantSigningKey  string
	GrantTTL         time.Duration
	LockoutWindow    time.Duration
	LockoutThreshold int
	RequestTimeout   time.Duration

	TimingDelayBaseMs    int
	TimingDelayRandomMs  int
	TimingDelayOnSuccess bool

	AuditRetention         time.Duration
	AuditRetentionSchedule string
}

// AlertConfig configures lockout alert emails (disabled when FromAddress is empty)
type AlertConfig struct {
	AWSRegion   string
	FromAddress string
	Recipients  []string
}

// EventsConfig configures audit event publishing (disabled when AMQPURL is empty)
type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "smartcore"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			RunMigrations:     getEnvAsBool("DB_RUN_MIGRATIONS", true),
		},
		Server: ServerConfig{
			Port:                 getEnv("PORT", "8080"),
			Env:                  env,
			LogLevel:             getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:       parseAllowedOrigins(env),
			TrustedProxies:       parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:          getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:         getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:          getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			VerifyRequestsPerMin: getEnvAsInt("VERIFY_REQUESTS_PER_MINUTE", 10),
		},
		Identity: IdentityConfig{
			Mode:      strings.ToLower(getEnv("IDENTITY_MODE", "jwt")),
			JWTSecret: getEnv("IDENTITY_JWT_SECRET", ""),
			Audience:  getEnv("IDENTITY_JWT_AUDIENCE", "authenticated"),
			Issuer:    getEnv("IDENTITY_JWT_ISSUER", ""),
			URL:       strings.TrimRight(getEnv("IDENTITY_URL", ""), "/"),
			APIKey:    getEnv("IDENTITY_API_KEY", ""),
		},
		Vault: VaultConfig{
			PinSalt:          getEnv("VAULT_PIN_SALT", ""),
			PinHash:          getEnv("VAULT_PIN_HASH", ""),
			PinAlgorithm:     strings.ToLower(getEnv("VAULT_PIN_ALGORITHM", "argon2id")),
			PrivilegedRole:   strings.TrimSpace(getEnv("VAULT_PRIVILEGED_ROLE", "")),
			GrantSigningKey:  getEnv("VAULT_GRANT_SIGNING_KEY", ""),
			GrantTTL:         getEnvAsDuration("VAULT_GRANT_TTL", 20*time.Minute),
			LockoutWindow:    getEnvAsDuration("VAULT_LOCKOUT_WINDOW", 10*time.Minute),
			LockoutThreshold: getEnvAsInt("VAULT_LOCKOUT_THRESHOLD", 5),
			RequestTimeout:   getEnvAsDuration("VAULT_REQUEST_TIMEOUT", 5*time.Second),

			TimingDelayBaseMs:    getEnvAsInt("TIMING_DELAY_BASE_MS", 250),
			TimingDelayRandomMs:  getEnvAsInt("TIMING_DELAY_RANDOM_MS", 150),
			TimingDelayOnSuccess: getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),

			AuditRetention:         getEnvAsDuration("VAULT_AUDIT_RETENTION", 90*24*time.Hour),
			AuditRetentionSchedule: getEnv("VAULT_AUDIT_RETENTION_SCHEDULE", "@daily"),
		},
		Alerts: AlertConfig{
			AWSRegion:   getEnv("AWS_REGION", "eu-west-2"),
			FromAddress: getEnv("ALERT_FROM_ADDRESS", ""),
			Recipients:  parseList(getEnv("ALERT_RECIPIENTS", "")),
		},
		Events: EventsConfig{
			AMQPURL:  getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "vault_events"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateIdentity(&cfg.Identity); err != nil {
		return nil, err
	}

	if err := validateSigningKey("VAULT_GRANT_SIGNING_KEY", cfg.Vault.GrantSigningKey, env); err != nil {
		return nil, err
	}

	if err := validateVaultPolicy(&cfg.Vault); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ReferenceSecretConfigured reports whether both halves of the PIN material are present.
// bcrypt hashes embed their own salt.
func (c *VaultConfig) ReferenceSecretConfigured() bool {
	if c.PinHash == "" {
		return false
	}
	return c.PinAlgorithm == "bcrypt" || c.PinSalt != ""
}

func validateIdentity(c *IdentityConfig) error {
	switch c.Mode {
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("IDENTITY_JWT_SECRET is required when IDENTITY_MODE=jwt")
		}
	case "remote":
		if c.URL == "" || c.APIKey == "" {
			return fmt.Errorf("IDENTITY_URL and IDENTITY_API_KEY are required when IDENTITY_MODE=remote")
		}
	default:
		return fmt.Errorf("IDENTITY_MODE must be jwt or remote (got %q)", c.Mode)
	}
	return nil
}

func validateVaultPolicy(c *VaultConfig) error {
	if c.GrantTTL <= 0 {
		return fmt.Errorf("VAULT_GRANT_TTL must be positive")
	}
	if c.LockoutWindow <= 0 {
		return fmt.Errorf("VAULT_LOCKOUT_WINDOW must be positive")
	}
	if c.LockoutThreshold < 1 {
		return fmt.Errorf("VAULT_LOCKOUT_THRESHOLD must be at least 1")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("VAULT_REQUEST_TIMEOUT must be positive")
	}
	// Pruning inside the window would silently lift lockouts
	if c.AuditRetention <= c.LockoutWindow {
		return fmt.Errorf("VAULT_AUDIT_RETENTION must be longer than VAULT_LOCKOUT_WINDOW")
	}
	switch c.PinAlgorithm {
	case "argon2id", "sha256", "bcrypt":
	default:
		return fmt.Errorf("VAULT_PIN_ALGORITHM must be argon2id, sha256 or bcrypt (got %q)", c.PinAlgorithm)
	}
	return nil
}

// validateSigningKey enforces minimum security standards for HMAC signing keys
func validateSigningKey(name, secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:8788", // wrangler pages dev
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:8788",
	}
}
