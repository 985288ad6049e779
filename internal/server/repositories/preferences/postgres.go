package preferences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/dbx"
	"github.com/dmitrijs2005/privylock/internal/server/models"
)

const preferenceColumns = `user_id, in_app_enabled,
		email_enabled, email_expiry_alerts, email_storage_alerts, email_security_alerts,
		push_enabled, push_expiry_alerts, push_storage_alerts, push_security_alerts,
		alert_30_days, alert_15_days, alert_7_days, alert_1_day, alert_on_expiry,
		storage_warning_threshold, storage_critical_threshold, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanPreference(row rowScanner) (*models.NotificationPreference, error) {
	p := &models.NotificationPreference{}
	err := row.Scan(&p.UserID, &p.InAppEnabled,
		&p.EmailEnabled, &p.EmailExpiryAlerts, &p.EmailStorageAlerts, &p.EmailSecurityAlerts,
		&p.PushEnabled, &p.PushExpiryAlerts, &p.PushStorageAlerts, &p.PushSecurityAlerts,
		&p.Alert30Days, &p.Alert15Days, &p.Alert7Days, &p.Alert1Day, &p.AlertOnExpiry,
		&p.StorageWarningThreshold, &p.StorageCriticalThreshold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func values(p *models.NotificationPreference) []any {
	return []any{p.UserID, p.InAppEnabled,
		p.EmailEnabled, p.EmailExpiryAlerts, p.EmailStorageAlerts, p.EmailSecurityAlerts,
		p.PushEnabled, p.PushExpiryAlerts, p.PushStorageAlerts, p.PushSecurityAlerts,
		p.Alert30Days, p.Alert15Days, p.Alert7Days, p.Alert1Day, p.AlertOnExpiry,
		p.StorageWarningThreshold, p.StorageCriticalThreshold}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	p, err := scanPreference(r.db.QueryRowContext(ctx,
		`SELECT `+preferenceColumns+` FROM notification_preferences WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.NotificationPreference) (*models.NotificationPreference, error) {
	query := `
		INSERT INTO notification_preferences (user_id, in_app_enabled,
			email_enabled, email_expiry_alerts, email_storage_alerts, email_security_alerts,
			push_enabled, push_expiry_alerts, push_storage_alerts, push_security_alerts,
			alert_30_days, alert_15_days, alert_7_days, alert_1_day, alert_on_expiry,
			storage_warning_threshold, storage_critical_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, values(p)...); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.Get(ctx, p.UserID)
}

func (r *PostgresRepository) Update(ctx context.Context, p *models.NotificationPreference) (*models.NotificationPreference, error) {
	query := `
		UPDATE notification_preferences
		SET in_app_enabled = $2,
			email_enabled = $3, email_expiry_alerts = $4, email_storage_alerts = $5, email_security_alerts = $6,
			push_enabled = $7, push_expiry_alerts = $8, push_storage_alerts = $9, push_security_alerts = $10,
			alert_30_days = $11, alert_15_days = $12, alert_7_days = $13, alert_1_day = $14, alert_on_expiry = $15,
			storage_warning_threshold = $16, storage_critical_threshold = $17, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + preferenceColumns

	out, err := scanPreference(r.db.QueryRowContext(ctx, query, values(p)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
