package repository

import (
	"context"
	"database/sql"
	"fmt"

	"capture-relay-api/internal/model"
)

// MySQLAccountRepository reads the main SaaS account directory over
// MySQL. It is read-only: tier changes and signups happen in the
// surrounding product, not here.
type MySQLAccountRepository struct {
	db *sql.DB
}

// NewMySQLAccountRepository creates a new MySQL account repository.
func NewMySQLAccountRepository(db *sql.DB) *MySQLAccountRepository {
	return &MySQLAccountRepository{db: db}
}

// GetAccount finds an account by id.
func (r *MySQLAccountRepository) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	query := `SELECT id, COALESCE(image_tier, 'free'), created_at FROM accounts WHERE id = ? LIMIT 1`

	var account model.Account
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&account.ID, &account.Tier, &account.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// Ensure MySQLAccountRepository implements AccountRepository
var _ AccountRepository = (*MySQLAccountRepository)(nil)
