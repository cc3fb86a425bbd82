package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"github.com/smartcore/vaultgate/internal/database"
	"github.com/smartcore/vaultgate/internal/models"
)

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// VaultItemRepository handles vault item data access
type VaultItemRepository struct {
	db *database.DB
}

// NewVaultItemRepository creates a new VaultItemRepository
func NewVaultItemRepository(db *database.DB) *VaultItemRepository {
	return &VaultItemRepository{db: db}
}

const vaultItemColumns = `id, service_name, url, username_email, notes, tags, created_by, created_at, updated_at`

func scanVaultItemRow(row rowScanner) (*models.VaultItem, error) {
	var item models.VaultItem

	err := row.Scan(
		&item.ID, &item.ServiceName, &item.URL, &item.UsernameEmail, &item.Notes,
		&item.Tags, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if item.Tags == nil {
		item.Tags = []string{}
	}
	return &item, nil
}

// List returns all vault items ordered by service name
func (r *VaultItemRepository) List(ctx context.Context) ([]*models.VaultItem, error) {
	query := `SELECT ` + vaultItemColumns + ` FROM vault_items ORDER BY service_name ASC, created_at ASC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vault items: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	items := make([]*models.VaultItem, 0)
	for rows.Next() {
		item, err := scanVaultItemRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vault item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vault item rows: %w", err)
	}

	return items, nil
}

// Create inserts a vault item and its item_created ledger row in one transaction
func (r *VaultItemRepository) Create(ctx context.Context, item *models.VaultItem, access *models.AttemptRecord) (*models.VaultItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}

	var created *models.VaultItem
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO vault_items (id, service_name, url, username_email, notes, tags, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING ` + vaultItemColumns

		var err error
		created, err = scanVaultItemRow(tx.QueryRow(ctx, query,
			item.ID, item.ServiceName, item.URL, item.UsernameEmail, item.Notes,
			pq.Array(item.Tags), item.CreatedBy,
		))
		if err != nil {
			return err
		}

		if access == nil {
			return nil
		}
		createdAt := access.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO vault_audit_log (id, user_id, action, vault_item_id, ip_address, user_agent, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.NewString(), access.UserID, models.ActionItemCreated, created.ID,
			access.IPAddress, access.UserAgent, createdAt)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("create vault item: %w", err)
	}

	return created, nil
}
