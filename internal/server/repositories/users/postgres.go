package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/dbx"
	"github.com/dmitrijs2005/privylock/internal/server/models"
)

const userColumns = `id, username, email, mobile_number, password_hash, recovery_key_hash,
		google_id, auth_provider, email_verified, email_verification_selector,
		email_verification_hash, subscription_tier, storage_used, created_at, last_login_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.MobileNumber, &u.PasswordHash, &u.RecoveryKeyHash,
		&u.GoogleID, &u.AuthProvider, &u.EmailVerified, &u.VerificationSelector,
		&u.VerificationHash, &u.SubscriptionTier, &u.StorageUsed, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, email, mobile_number, password_hash, recovery_key_hash,
			google_id, auth_provider, email_verified, email_verification_selector,
			email_verification_hash, subscription_tier, storage_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		u.ID, u.Username, u.Email, u.MobileNumber, u.PasswordHash, u.RecoveryKeyHash,
		u.GoogleID, u.AuthProvider, u.EmailVerified, u.VerificationSelector,
		u.VerificationHash, u.SubscriptionTier, u.StorageUsed,
	).Scan(&u.CreatedAt)
	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: %s", common.ErrorAlreadyExists, constraint)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) getBy(ctx context.Context, column, value string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *PostgresRepository) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return r.getBy(ctx, "google_id", googleID)
}

func (r *PostgresRepository) GetByVerificationSelector(ctx context.Context, selector string) (*models.User, error) {
	return r.getBy(ctx, "email_verification_selector", selector)
}

func (r *PostgresRepository) Exists(ctx context.Context, field, value string) (bool, error) {
	switch field {
	case FieldUsername, FieldEmail, FieldMobile:
	default:
		return false, fmt.Errorf("unsupported lookup field %q", field)
	}

	query := `SELECT EXISTS (SELECT 1 FROM users WHERE ` + field + ` = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok {
			return fmt.Errorf("%w: %s", common.ErrorAlreadyExists, constraint)
		}
		return fmt.Errorf("db error: %w", err)
	}
	switch dbx.RowsAffected(res) {
	case 0:
		return common.ErrorNotFound
	case 1:
		return nil
	default:
		return common.ErrorInternal
	}
}

func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
}

func (r *PostgresRepository) SetVerificationToken(ctx context.Context, id, selector, hash string) error {
	return r.execOne(ctx,
		`UPDATE users SET email_verification_selector = $2, email_verification_hash = $3 WHERE id = $1`,
		id, selector, hash)
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.execOne(ctx, `
		UPDATE users
		SET email_verified = TRUE, email_verification_selector = NULL, email_verification_hash = NULL
		WHERE id = $1`, id)
}

func (r *PostgresRepository) LinkGoogleID(ctx context.Context, id, googleID string) error {
	return r.execOne(ctx, `UPDATE users SET google_id = $2 WHERE id = $1`, id, googleID)
}

func (r *PostgresRepository) AdjustStorage(ctx context.Context, id string, delta int64) (int64, error) {
	query := `
		UPDATE users SET storage_used = GREATEST(storage_used + $2, 0)
		WHERE id = $1
		RETURNING storage_used
	`
	var used int64
	if err := r.db.QueryRowContext(ctx, query, id, delta).Scan(&used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return used, nil
}

func (r *PostgresRepository) ListWithStorage(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE storage_used > 0 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
