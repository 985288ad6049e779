package documents

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

const documentColumns = `d.id, d.user_id, d.category_id, d.folder_id, d.encrypted_title,
		d.encrypted_description, d.encrypted_doc_type, d.encrypted_issue_date,
		d.encrypted_expiry_date, d.file_key, d.file_size, d.file_extension, d.mime_type,
		d.file_hash, d.has_expiry, d.notification_trigger_timestamp, d.is_deleted,
		d.deleted_at, d.created_at, d.updated_at, f.encrypted_name`

const documentFrom = ` FROM documents d LEFT JOIN folders f ON f.id = d.folder_id `

var orderings = map[string]string{
	models.OrderCreatedAsc:  "d.created_at ASC",
	models.OrderCreatedDesc: "d.created_at DESC",
	models.OrderSizeAsc:     "d.file_size ASC",
	models.OrderSizeDesc:    "d.file_size DESC",
}

type rowScanner interface {
	Scan(dest ...any) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanDocument(row rowScanner) (*models.Document, error) {
	d := &models.Document{}
	err := row.Scan(&d.ID, &d.UserID, &d.CategoryID, &d.FolderID, &d.EncryptedTitle,
		&d.EncryptedDescription, &d.EncryptedDocType, &d.EncryptedIssueDate,
		&d.EncryptedExpiryDate, &d.FileKey, &d.FileSize, &d.FileExtension, &d.MimeType,
		&d.FileHash, &d.HasExpiry, &d.NotificationTriggerTimestamp, &d.IsDeleted,
		&d.DeletedAt, &d.CreatedAt, &d.UpdatedAt, &d.FolderName)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// placeholders returns "$from, $from+1, ..." for n values.
func placeholders(from, n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(p, ", ")
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func (r *PostgresRepository) Create(ctx context.Context, d *models.Document) (*models.Document, error) {
	query := `
		INSERT INTO documents (id, user_id, category_id, folder_id, encrypted_title,
			encrypted_description, encrypted_doc_type, encrypted_issue_date,
			encrypted_expiry_date, file_key, file_size, file_extension, mime_type,
			file_hash, has_expiry, notification_trigger_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		d.ID, d.UserID, d.CategoryID, d.FolderID, d.EncryptedTitle,
		d.EncryptedDescription, d.EncryptedDocType, d.EncryptedIssueDate,
		d.EncryptedExpiryDate, d.FileKey, d.FileSize, d.FileExtension, d.MimeType,
		d.FileHash, d.HasExpiry, d.NotificationTriggerTimestamp,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + documentFrom +
		`WHERE d.user_id = $1 AND d.id = $2 AND d.is_deleted = FALSE`

	d, err := scanDocument(r.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, q models.DocumentQuery) ([]*models.Document, error) {
	where := []string{"d.user_id = $1", "d.is_deleted = FALSE"}
	args := []any{userID}

	if q.CategoryID != nil {
		args = append(args, *q.CategoryID)
		where = append(where, fmt.Sprintf("d.category_id = $%d", len(args)))
	}
	switch {
	case q.RootOnly:
		where = append(where, "d.folder_id IS NULL")
	case q.FolderID != nil:
		args = append(args, *q.FolderID)
		where = append(where, fmt.Sprintf("d.folder_id = $%d", len(args)))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		args = append(args, likePattern(s))
		n := len(args)
		where = append(where, fmt.Sprintf("(d.encrypted_title ILIKE $%d OR d.encrypted_doc_type ILIKE $%d)", n, n))
	}

	order, ok := orderings[q.Ordering]
	if !ok {
		order = orderings[models.OrderCreatedDesc]
	}

	query := `SELECT ` + documentColumns + documentFrom +
		`WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ` + order
	return r.queryDocuments(ctx, query, args...)
}

func (r *PostgresRepository) ListByFolders(ctx context.Context, userID string, folderIDs []string) ([]*models.Document, error) {
	if len(folderIDs) == 0 {
		return []*models.Document{}, nil
	}
	args := []any{userID}
	for _, id := range folderIDs {
		args = append(args, id)
	}
	query := `SELECT ` + documentColumns + documentFrom +
		`WHERE d.user_id = $1 AND d.is_deleted = FALSE AND d.folder_id IN (` + placeholders(2, len(folderIDs)) + `)
		ORDER BY d.created_at DESC`
	return r.queryDocuments(ctx, query, args...)
}

func (r *PostgresRepository) ListWithExpiry(ctx context.Context) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + documentFrom +
		`WHERE d.has_expiry = TRUE AND d.is_deleted = FALSE AND d.encrypted_expiry_date <> ''
		ORDER BY d.user_id, d.id`
	return r.queryDocuments(ctx, query)
}

func (r *PostgresRepository) queryDocuments(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
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

func (r *PostgresRepository) Update(ctx context.Context, d *models.Document) (*models.Document, error) {
	query := `
		UPDATE documents
		SET category_id = $3, folder_id = $4, encrypted_title = $5, encrypted_description = $6,
			encrypted_doc_type = $7, encrypted_issue_date = $8, encrypted_expiry_date = $9,
			file_key = $10, file_size = $11, file_extension = $12, mime_type = $13,
			file_hash = $14, has_expiry = $15, notification_trigger_timestamp = $16,
			updated_at = NOW()
		WHERE user_id = $1 AND id = $2 AND is_deleted = FALSE
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		d.UserID, d.ID, d.CategoryID, d.FolderID, d.EncryptedTitle, d.EncryptedDescription,
		d.EncryptedDocType, d.EncryptedIssueDate, d.EncryptedExpiryDate,
		d.FileKey, d.FileSize, d.FileExtension, d.MimeType,
		d.FileHash, d.HasExpiry, d.NotificationTriggerTimestamp,
	).Scan(&d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, userID, id string, at time.Time) error {
	query := `
		UPDATE documents SET is_deleted = TRUE, deleted_at = $3, updated_at = $3
		WHERE user_id = $1 AND id = $2 AND is_deleted = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, userID, id, at)
	if err != nil {
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

func (r *PostgresRepository) CountOwned(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{userID}
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT COUNT(*) FROM documents
		WHERE user_id = $1 AND is_deleted = FALSE AND id IN (` + placeholders(2, len(ids)) + `)`

	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Move(ctx context.Context, userID string, ids []string, folderID *string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{userID, folderID}
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE documents SET folder_id = $2, updated_at = NOW()
		WHERE user_id = $1 AND is_deleted = FALSE AND id IN (` + placeholders(3, len(ids)) + `)`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res), nil
}
