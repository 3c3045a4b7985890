package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// CredentialsRepository handles password credential persistence.
type CredentialsRepository struct {
	db *sql.DB
}

// NewCredentialsRepository creates a new credentials repository.
func NewCredentialsRepository(db *sql.DB) *CredentialsRepository {
	return &CredentialsRepository{db: db}
}

// GetByAccountID retrieves the password credential for an account.
func (r *CredentialsRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.AccountCredential, error) {
	query := `
		SELECT account_id, password_hash, password_updated_at
		FROM account_credentials
		WHERE account_id = $1
	`
	cred := &domain.AccountCredential{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&cred.AccountID, &cred.PasswordHash, &cred.PasswordUpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// Update replaces the password hash for an account.
func (r *CredentialsRepository) Update(ctx context.Context, cred *domain.AccountCredential) error {
	query := `
		UPDATE account_credentials
		SET password_hash = $2, password_updated_at = NOW()
		WHERE account_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, cred.AccountID, cred.PasswordHash)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// DeleteByAccountID removes the password credential for an account.
func (r *CredentialsRepository) DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM account_credentials WHERE account_id = $1`, accountID)
	return err
}
