package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/smartcore/vaultgate/internal/database"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("smartcore"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := database.NewFromPool(pool, discardLogger())

	// Same embedded migrations the service applies at startup
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         db,
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"vault_audit_log",
		"vault_items",
		"smartcore_logins",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// SeedLogin inserts a login directory row
func SeedLogin(ctx context.Context, pool *pgxpool.Pool, id, email, role string) error {
	_, err := pool.Exec(ctx,
		`INSERT INTO smartcore_logins (id, email, role) VALUES ($1, $2, $3)`,
		id, email, role,
	)
	if err != nil {
		return fmt.Errorf("failed to insert login: %w", err)
	}
	return nil
}

// SeedFailures inserts failed unlock attempts for userID at the given times
func SeedFailures(ctx context.Context, pool *pgxpool.Pool, userID string, at ...time.Time) error {
	for _, ts := range at {
		_, err := pool.Exec(ctx, `
			INSERT INTO vault_audit_log (user_id, action, ip_address, user_agent, created_at)
			VALUES ($1, 'unlock_attempt_failed', '127.0.0.1', 'seed', $2)
		`, userID, ts)
		if err != nil {
			return fmt.Errorf("failed to insert attempt: %w", err)
		}
	}
	return nil
}

// CountActions returns the number of ledger rows with the given action for userID
func CountActions(ctx context.Context, pool *pgxpool.Pool, userID, action string) (int, error) {
	var n int
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM vault_audit_log WHERE user_id = $1 AND action = $2`,
		userID, action,
	).Scan(&n)
	return n, err
}
