package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// IdentitiesRepository handles external identity persistence.
type IdentitiesRepository struct {
	db *sql.DB
}

// NewIdentitiesRepository creates a new identities repository.
func NewIdentitiesRepository(db *sql.DB) *IdentitiesRepository {
	return &IdentitiesRepository{db: db}
}

// Create links a provider subject to an account.
func (r *IdentitiesRepository) Create(ctx context.Context, identity *domain.AccountIdentity) error {
	return r.CreateTx(ctx, r.db, identity)
}

// CreateTx links a provider subject to an account within a transaction.
func (r *IdentitiesRepository) CreateTx(ctx context.Context, q Querier, identity *domain.AccountIdentity) error {
	query := `
		INSERT INTO account_identities (id, account_id, provider, provider_subject, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := q.ExecContext(ctx, query,
		identity.ID, identity.AccountID, identity.Provider,
		identity.ProviderSubject, identity.Email, identity.CreatedAt,
	)
	return err
}

// GetByProviderSubject retrieves an identity by provider and subject.
func (r *IdentitiesRepository) GetByProviderSubject(ctx context.Context, provider domain.AuthMethod, subject string) (*domain.AccountIdentity, error) {
	query := `
		SELECT id, account_id, provider, provider_subject, email, created_at
		FROM account_identities
		WHERE provider = $1 AND provider_subject = $2
	`
	identity := &domain.AccountIdentity{}
	err := r.db.QueryRowContext(ctx, query, provider, subject).Scan(
		&identity.ID, &identity.AccountID, &identity.Provider,
		&identity.ProviderSubject, &identity.Email, &identity.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// DeleteByAccountID removes all identities linked to an account.
func (r *IdentitiesRepository) DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM account_identities WHERE account_id = $1`, accountID)
	return err
}
