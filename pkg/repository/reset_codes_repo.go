package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// ResetCodesRepository handles password reset code persistence.
type ResetCodesRepository struct {
	db *sql.DB
}

// NewResetCodesRepository creates a new reset codes repository.
func NewResetCodesRepository(db *sql.DB) *ResetCodesRepository {
	return &ResetCodesRepository{db: db}
}

// Issue invalidates any active codes for the account and stores the new one
// in a single transaction, so only the most recent code is ever usable.
func (r *ResetCodesRepository) Issue(ctx context.Context, code *domain.ResetCode) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.InvalidateActiveTx(ctx, tx, code.AccountID); err != nil {
			return err
		}
		return r.CreateTx(ctx, tx, code)
	})
}

// CreateTx stores a reset code within a transaction.
func (r *ResetCodesRepository) CreateTx(ctx context.Context, q Querier, code *domain.ResetCode) error {
	query := `
		INSERT INTO reset_codes (id, account_id, code_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.ExecContext(ctx, query,
		code.ID, code.AccountID, code.CodeHash, code.CreatedAt, code.ExpiresAt,
	)
	return err
}

// GetByAccountAndHash retrieves a reset code for an account by code hash.
func (r *ResetCodesRepository) GetByAccountAndHash(ctx context.Context, accountID uuid.UUID, codeHash string) (*domain.ResetCode, error) {
	query := `
		SELECT id, account_id, code_hash, created_at, expires_at, consumed_at
		FROM reset_codes
		WHERE account_id = $1 AND code_hash = $2
	`
	code := &domain.ResetCode{}
	err := r.db.QueryRowContext(ctx, query, accountID, codeHash).Scan(
		&code.ID, &code.AccountID, &code.CodeHash,
		&code.CreatedAt, &code.ExpiresAt, &code.ConsumedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrResetCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return code, nil
}

// InvalidateActiveTx marks all unconsumed codes for an account as consumed,
// so only the most recently issued code is ever usable.
func (r *ResetCodesRepository) InvalidateActiveTx(ctx context.Context, q Querier, accountID uuid.UUID) error {
	query := `UPDATE reset_codes SET consumed_at = NOW() WHERE account_id = $1 AND consumed_at IS NULL`
	_, err := q.ExecContext(ctx, query, accountID)
	return err
}

// MarkConsumed marks a reset code as used.
func (r *ResetCodesRepository) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	return r.MarkConsumedTx(ctx, r.db, id)
}

// MarkConsumedTx marks a reset code as used within a transaction.
func (r *ResetCodesRepository) MarkConsumedTx(ctx context.Context, q Querier, id uuid.UUID) error {
	query := `UPDATE reset_codes SET consumed_at = NOW() WHERE id = $1 AND consumed_at IS NULL`
	_, err := q.ExecContext(ctx, query, id)
	return err
}

// DeleteByAccountID removes all reset codes for an account.
func (r *ResetCodesRepository) DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reset_codes WHERE account_id = $1`, accountID)
	return err
}
