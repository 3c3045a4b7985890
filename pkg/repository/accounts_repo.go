package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// Constraint names from migrations. The unique indexes on LOWER(username)
// and LOWER(email) are what make allocation atomic under concurrent writers.
const (
	usernameConstraint = "accounts_username_lower_key"
	emailConstraint    = "accounts_email_lower_key"
)

// AccountsRepository handles account persistence.
type AccountsRepository struct {
	db *sql.DB
}

// NewAccountsRepository creates a new accounts repository.
func NewAccountsRepository(db *sql.DB) *AccountsRepository {
	return &AccountsRepository{db: db}
}

const accountColumns = `
	id, email, username, display_name, picture_url, auth_method, is_guest,
	expires_at, failed_login_attempts, locked_until, last_login_at,
	created_at, updated_at
`

func scanAccount(row *sql.Row) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.Username, &a.DisplayName, &a.PictureURL,
		&a.AuthMethod, &a.IsGuest, &a.ExpiresAt, &a.FailedLoginAttempts,
		&a.LockedUntil, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new account. Returns domain.ErrUsernameTaken or
// domain.ErrEmailTaken on a uniqueness conflict.
func (r *AccountsRepository) Create(ctx context.Context, account *domain.Account) error {
	return r.CreateTx(ctx, r.db, account)
}

// CreateTx inserts a new account within a transaction.
func (r *AccountsRepository) CreateTx(ctx context.Context, q Querier, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, email, username, display_name, picture_url,
			auth_method, is_guest, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := q.ExecContext(ctx, query,
		account.ID, account.Email, account.Username, account.DisplayName,
		account.PictureURL, account.AuthMethod, account.IsGuest,
		account.ExpiresAt, account.CreatedAt, account.UpdatedAt,
	)
	return mapConflict(err)
}

func mapConflict(err error) error {
	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err, usernameConstraint):
		return domain.ErrUsernameTaken
	case IsUniqueViolation(err, emailConstraint):
		return domain.ErrEmailTaken
	default:
		return err
	}
}

// GetByID retrieves an account by ID.
func (r *AccountsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves an account by email, case-insensitively.
func (r *AccountsRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

// GetByUsername retrieves an account by username, case-insensitively.
func (r *AccountsRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(username) = LOWER($1)`
	return scanAccount(r.db.QueryRowContext(ctx, query, username))
}

// ExistsByEmail checks if an account holds the given email, case-insensitively.
func (r *AccountsRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE LOWER(email) = LOWER($1))`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	return exists, err
}

// ExistsByUsername checks if any account, guest or permanent, holds the
// given username, case-insensitively.
func (r *AccountsRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE LOWER(username) = LOWER($1))`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, username).Scan(&exists)
	return exists, err
}

// CreateWithPassword inserts an account and its password credential in one
// transaction, so a credential row never exists without its account and a
// username conflict rolls back both.
func (r *AccountsRepository) CreateWithPassword(ctx context.Context, account *domain.Account, passwordHash string) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.CreateTx(ctx, tx, account); err != nil {
			return err
		}
		query := `
			INSERT INTO account_credentials (account_id, password_hash, password_updated_at)
			VALUES ($1, $2, $3)
		`
		_, err := tx.ExecContext(ctx, query, account.ID, passwordHash, account.CreatedAt)
		return err
	})
}

// ConvertToPassword atomically turns a guest account into a permanent
// password account: sets the email and auth method, clears the guest flag
// and expiry, and stores the password hash. The id and username are not
// touched. Returns domain.ErrNotGuest if the account is not currently a
// guest and domain.ErrEmailTaken if the email is already claimed.
func (r *AccountsRepository) ConvertToPassword(ctx context.Context, id uuid.UUID, email, passwordHash string) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			UPDATE accounts
			SET email = $2, auth_method = $3, is_guest = FALSE, expires_at = NULL,
			    failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
			WHERE id = $1 AND is_guest = TRUE
		`
		result, err := tx.ExecContext(ctx, query, id, email, domain.AuthMethodPassword)
		if err != nil {
			return mapConflict(err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			// Zero rows means the account is gone or not a guest; tell the
			// two apart so a guest swept mid-request maps to not-found
			// rather than a precondition failure.
			var exists bool
			existsQuery := `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`
			if err := tx.QueryRowContext(ctx, existsQuery, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrAccountNotFound
			}
			return domain.ErrNotGuest
		}

		credQuery := `
			INSERT INTO account_credentials (account_id, password_hash, password_updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (account_id) DO UPDATE
			SET password_hash = EXCLUDED.password_hash, password_updated_at = NOW()
		`
		_, err = tx.ExecContext(ctx, credQuery, id, passwordHash)
		return err
	})
}

// UpdateProfile updates the mutable profile fields.
func (r *AccountsRepository) UpdateProfile(ctx context.Context, id uuid.UUID, displayName string, pictureURL *string) error {
	query := `
		UPDATE accounts
		SET display_name = $2, picture_url = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, displayName, pictureURL)
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

// TouchLastLogin records a successful authentication.
func (r *AccountsRepository) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE accounts SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// IncrementFailedLoginAttempts increments the failed login counter and
// locks the account once maxAttempts is reached.
func (r *AccountsRepository) IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN NOW() + ($3 * interval '1 second')
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, maxAttempts, lockoutDuration.Seconds())
	return err
}

// ResetFailedLoginAttempts resets the failed login counter and clears any lockout.
func (r *AccountsRepository) ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// ListExpiredGuests returns guest accounts whose TTL elapsed at or before
// cutoff. The predicate is idempotent: an account stays selectable until it
// is actually deleted, so a failed sweep retries next run.
func (r *AccountsRepository) ListExpiredGuests(ctx context.Context, cutoff time.Time) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE is_guest = TRUE AND expires_at <= $1`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		a := &domain.Account{}
		err := rows.Scan(
			&a.ID, &a.Email, &a.Username, &a.DisplayName, &a.PictureURL,
			&a.AuthMethod, &a.IsGuest, &a.ExpiresAt, &a.FailedLoginAttempts,
			&a.LockedUntil, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Delete permanently deletes an account. Dependent rows are expected to be
// deleted first by the caller.
func (r *AccountsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
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
