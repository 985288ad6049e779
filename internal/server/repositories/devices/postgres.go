package devices

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

const deviceColumns = `id, user_id, device_id, device_name, device_type, is_trusted, last_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanDevice(row rowScanner) (*models.Device, error) {
	d := &models.Device{}
	if err := row.Scan(&d.ID, &d.UserID, &d.DeviceID, &d.DeviceName, &d.DeviceType, &d.IsTrusted, &d.LastActive, &d.CreatedAt); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepository) Create(ctx context.Context, d *models.Device) (*models.Device, error) {
	query := `
		INSERT INTO devices (id, user_id, device_id, device_name, device_type, is_trusted)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING last_active, created_at
	`
	err := r.db.QueryRowContext(ctx, query, d.ID, d.UserID, d.DeviceID, d.DeviceName, d.DeviceType, d.IsTrusted).
		Scan(&d.LastActive, &d.CreatedAt)
	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: %s", common.ErrorAlreadyExists, constraint)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) GetByDeviceID(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	return r.getOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Device, error) {
	return r.getOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 AND id = $2`, userID, id)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 ORDER BY last_active DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE devices SET last_active = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if dbx.RowsAffected(res) == 0 {
		return common.ErrorNotFound
	}
	return nil
}
