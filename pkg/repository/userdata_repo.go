package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// UploadsRepository gives the auth subsystem delete access to the upload
// records owned by the file ingestion pipeline. The guest sweep removes
// them before deleting the owning account so no orphaned rows remain.
type UploadsRepository struct {
	db *sql.DB
}

// NewUploadsRepository creates a new uploads repository.
func NewUploadsRepository(db *sql.DB) *UploadsRepository {
	return &UploadsRepository{db: db}
}

// DeleteByAccountID removes all uploads owned by an account.
func (r *UploadsRepository) DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE account_id = $1`, accountID)
	return err
}

// AnalysesRepository gives the auth subsystem delete access to analysis
// results owned by the fault-classification pipeline.
type AnalysesRepository struct {
	db *sql.DB
}

// NewAnalysesRepository creates a new analyses repository.
func NewAnalysesRepository(db *sql.DB) *AnalysesRepository {
	return &AnalysesRepository{db: db}
}

// DeleteByAccountID removes all analyses owned by an account.
func (r *AnalysesRepository) DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM analyses WHERE account_id = $1`, accountID)
	return err
}
