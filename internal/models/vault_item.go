package models

import "time"

// VaultItem is a stored credential reference in the vault
type VaultItem struct {
	ID            string
	ServiceName   string
	URL           *string
	UsernameEmail *string
	Notes         *string
	Tags          []string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
