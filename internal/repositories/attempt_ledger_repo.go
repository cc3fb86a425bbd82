package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smartcore/vaultgate/internal/database"
	"github.com/smartcore/vaultgate/internal/models"
)

// AttemptLedgerRepository stores vault verification attempts in vault_audit_log
type AttemptLedgerRepository struct {
	db *database.DB
}

// NewAttemptLedgerRepository creates a new AttemptLedgerRepository
func NewAttemptLedgerRepository(db *database.DB) *AttemptLedgerRepository {
	return &AttemptLedgerRepository{db: db}
}

// CountFailures returns the number of failed attempts for a user at or after since
func (r *AttemptLedgerRepository) CountFailures(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM vault_audit_log
		WHERE user_id = $1 AND action = $2 AND created_at >= $3
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, userID, models.ActionUnlockFailed, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count vault failures: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// FailureTimes returns failure timestamps at or after since, oldest first
func (r *AttemptLedgerRepository) FailureTimes(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	query := `
		SELECT created_at FROM vault_audit_log
		WHERE user_id = $1 AND action = $2 AND created_at >= $3
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, models.ActionUnlockFailed, since)
	if err != nil {
		return nil, fmt.Errorf("list vault failures: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	times := make([]time.Time, 0)
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan vault failure: %w", database.MapPostgresError(err))
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault failures: %w", database.MapPostgresError(err))
	}

	return times, nil
}

// Append writes one attempt record. The write is visible to subsequent reads on return.
func (r *AttemptLedgerRepository) Append(ctx context.Context, record *models.AttemptRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO vault_audit_log (id, user_id, action, vault_item_id, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.Outcome.Action(),
		record.VaultItemID,
		record.IPAddress,
		record.UserAgent,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append vault attempt: %w", database.MapPostgresError(err))
	}
	return nil
}

// DeleteOlderThan prunes ledger rows created before cutoff and returns the number removed
func (r *AttemptLedgerRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM vault_audit_log WHERE created_at < $1`

	tag, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune vault audit log: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
