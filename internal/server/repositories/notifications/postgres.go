package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/dbx"
	"github.com/dmitrijs2005/privylock/internal/server/models"
)

const notificationColumns = `n.id, n.user_id, n.notification_type, n.priority, n.encrypted_title,
		n.encrypted_body, n.document_id, n.device_id, n.is_read, n.read_at, n.email_sent,
		n.email_sent_at, n.push_sent, n.push_sent_at, n.action_url, n.expires_at,
		n.created_at, n.updated_at, doc.encrypted_title, dev.device_name`

const notificationFrom = ` FROM notifications n
		LEFT JOIN documents doc ON doc.id = n.document_id
		LEFT JOIN devices dev ON dev.id = n.device_id `

type rowScanner interface {
	Scan(dest ...any) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	n := &models.Notification{}
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Priority, &n.EncryptedTitle,
		&n.EncryptedBody, &n.DocumentID, &n.DeviceID, &n.IsRead, &n.ReadAt, &n.EmailSent,
		&n.EmailSentAt, &n.PushSent, &n.PushSentAt, &n.ActionURL, &n.ExpiresAt,
		&n.CreatedAt, &n.UpdatedAt, &n.DocumentTitle, &n.DeviceName)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func idArgs(head []any, ids []string) ([]any, string) {
	args := append([]any{}, head...)
	p := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		p[i] = fmt.Sprintf("$%d", len(args))
	}
	return args, strings.Join(p, ", ")
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res), nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	n, err := r.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	switch n {
	case 0:
		return common.ErrorNotFound
	case 1:
		return nil
	default:
		return common.ErrorInternal
	}
}

func (r *PostgresRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	query := `
		INSERT INTO notifications (id, user_id, notification_type, priority, encrypted_title,
			encrypted_body, document_id, device_id, action_url, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		n.ID, n.UserID, n.Type, n.Priority, n.EncryptedTitle,
		n.EncryptedBody, n.DocumentID, n.DeviceID, n.ActionURL, n.ExpiresAt,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + notificationFrom + `WHERE n.user_id = $1 AND n.id = $2`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, q models.NotificationQuery, now time.Time) ([]*models.Notification, error) {
	where := []string{"n.user_id = $1", "(n.expires_at IS NULL OR n.expires_at > $2)"}
	args := []any{userID, now}

	if q.UnreadOnly {
		where = append(where, "n.is_read = FALSE")
	}
	if q.Type != "" {
		args = append(args, q.Type)
		where = append(where, fmt.Sprintf("n.notification_type = $%d", len(args)))
	}
	if q.Priority != "" {
		args = append(args, q.Priority)
		where = append(where, fmt.Sprintf("n.priority = $%d", len(args)))
	}

	query := `SELECT ` + notificationColumns + notificationFrom +
		`WHERE ` + strings.Join(where, " AND ") + ` ORDER BY n.created_at DESC`
	return r.queryNotifications(ctx, query, args...)
}

func (r *PostgresRepository) queryNotifications(ctx context.Context, query string, args ...any) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) SetRead(ctx context.Context, userID, id string, read bool, at time.Time) error {
	if read {
		return r.execOne(ctx, `
			UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, $3), updated_at = $3
			WHERE user_id = $1 AND id = $2`, userID, id, at)
	}
	return r.execOne(ctx, `
		UPDATE notifications SET is_read = FALSE, read_at = NULL, updated_at = $3
		WHERE user_id = $1 AND id = $2`, userID, id, at)
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	return r.execOne(ctx, `DELETE FROM notifications WHERE user_id = $1 AND id = $2`, userID, id)
}

func (r *PostgresRepository) OwnedIDs(ctx context.Context, userID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args, in := idArgs([]any{userID}, ids)
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM notifications WHERE user_id = $1 AND id IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var owned []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		owned = append(owned, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return owned, nil
}

func (r *PostgresRepository) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args, in := idArgs([]any{userID, at}, ids)
	return r.exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $2, updated_at = $2
		WHERE user_id = $1 AND is_read = FALSE AND id IN (`+in+`)`, args...)
}

func (r *PostgresRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	return r.exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $2, updated_at = $2
		WHERE user_id = $1 AND is_read = FALSE`, userID, at)
}

func (r *PostgresRepository) DeleteAllRead(ctx context.Context, userID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM notifications WHERE user_id = $1 AND is_read = TRUE`, userID)
}

func (r *PostgresRepository) UnreadCount(ctx context.Context, userID string, now time.Time) (int64, error) {
	return r.count(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND is_read = FALSE AND (expires_at IS NULL OR expires_at > $2)`, userID, now)
}

func (r *PostgresRepository) ExistsForDocumentSince(ctx context.Context, documentID string, t models.NotificationType, since time.Time) (bool, error) {
	return r.exists(ctx, `
		SELECT EXISTS (SELECT 1 FROM notifications
		WHERE document_id = $1 AND notification_type = $2 AND created_at >= $3)`, documentID, t, since)
}

func (r *PostgresRepository) ExistsUnreadForDocument(ctx context.Context, documentID string, t models.NotificationType) (bool, error) {
	return r.exists(ctx, `
		SELECT EXISTS (SELECT 1 FROM notifications
		WHERE document_id = $1 AND notification_type = $2 AND is_read = FALSE)`, documentID, t)
}

func (r *PostgresRepository) ExistsUnreadSince(ctx context.Context, userID string, t models.NotificationType, since time.Time) (bool, error) {
	return r.exists(ctx, `
		SELECT EXISTS (SELECT 1 FROM notifications
		WHERE user_id = $1 AND notification_type = $2 AND is_read = FALSE AND created_at >= $3)`, userID, t, since)
}

func (r *PostgresRepository) DeleteUnreadExpiryAlerts(ctx context.Context, documentID string) (int64, error) {
	return r.exec(ctx, `
		DELETE FROM notifications
		WHERE document_id = $1 AND is_read = FALSE AND notification_type IN ($2, $3)`,
		documentID, models.NotificationDocumentExpiry, models.NotificationDocumentExpired)
}

func (r *PostgresRepository) listPending(ctx context.Context, flag string, since, now time.Time, limit int) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + notificationFrom + `
		WHERE n.` + flag + ` = FALSE AND n.is_read = FALSE AND n.created_at >= $1 AND (n.expires_at IS NULL OR n.expires_at > $2)
		ORDER BY n.created_at
		LIMIT $3`
	return r.queryNotifications(ctx, query, since, now, limit)
}

func (r *PostgresRepository) ListPendingEmail(ctx context.Context, since, now time.Time, limit int) ([]*models.Notification, error) {
	return r.listPending(ctx, "email_sent", since, now, limit)
}

func (r *PostgresRepository) ListPendingPush(ctx context.Context, since, now time.Time, limit int) ([]*models.Notification, error) {
	return r.listPending(ctx, "push_sent", since, now, limit)
}

func (r *PostgresRepository) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, `
		UPDATE notifications SET email_sent = TRUE, email_sent_at = $2, updated_at = $2
		WHERE id = $1 AND email_sent = FALSE`, id, at)
}

func (r *PostgresRepository) MarkPushSent(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, `
		UPDATE notifications SET push_sent = TRUE, push_sent_at = $2, updated_at = $2
		WHERE id = $1 AND push_sent = FALSE`, id, at)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
}

func (r *PostgresRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM notifications WHERE is_read = TRUE AND read_at < $1`, cutoff)
}
