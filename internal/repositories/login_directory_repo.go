package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/smartcore/vaultgate/internal/database"
	"github.com/smartcore/vaultgate/internal/models"
)

// LoginDirectoryRepository resolves roles from the smartcore_logins table
type LoginDirectoryRepository struct {
	db *database.DB
}

// NewLoginDirectoryRepository creates a new LoginDirectoryRepository
func NewLoginDirectoryRepository(db *database.DB) *LoginDirectoryRepository {
	return &LoginDirectoryRepository{db: db}
}

func scanDirectoryRow(row rowScanner) (*models.DirectoryEntry, error) {
	var entry models.DirectoryEntry
	if err := row.Scan(&entry.ID, &entry.Email, &entry.Role); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &entry, nil
}

// GetByID looks up a directory row by identity id
func (r *LoginDirectoryRepository) GetByID(ctx context.Context, id string) (*models.DirectoryEntry, error) {
	query := `SELECT id, email, role FROM smartcore_logins WHERE id = $1`
	return scanDirectoryRow(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByEmail looks up a directory row by email, ignoring case
func (r *LoginDirectoryRepository) GetByEmail(ctx context.Context, email string) (*models.DirectoryEntry, error) {
	query := `SELECT id, email, role FROM smartcore_logins WHERE LOWER(email) = LOWER($1) LIMIT 1`
	return scanDirectoryRow(r.db.Pool.QueryRow(ctx, query, email))
}

// RoleOf resolves the caller's role by id, falling back to email when no row carries the id.
// Returns models.ErrNotFound when neither lookup matches.
func (r *LoginDirectoryRepository) RoleOf(ctx context.Context, identity *models.Identity) (string, error) {
	entry, err := r.GetByID(ctx, identity.UserID)
	if err == nil {
		return entry.Role, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("resolve role by id: %w", err)
	}

	if identity.Email == "" {
		return "", models.ErrNotFound
	}

	entry, err = r.GetByEmail(ctx, identity.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrNotFound
		}
		return "", fmt.Errorf("resolve role by email: %w", err)
	}
	return entry.Role, nil
}
