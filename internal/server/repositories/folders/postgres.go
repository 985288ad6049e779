package folders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/dbx"
	"github.com/dmitrijs2005/privylock/internal/server/models"
)

const folderColumns = `id, user_id, category_id, encrypted_name, parent_id, color, icon, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanFolder(row rowScanner) (*models.Folder, error) {
	f := &models.Folder{}
	if err := row.Scan(&f.ID, &f.UserID, &f.CategoryID, &f.EncryptedName, &f.ParentID, &f.Color, &f.Icon, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *PostgresRepository) Create(ctx context.Context, f *models.Folder) (*models.Folder, error) {
	query := `
		INSERT INTO folders (id, user_id, category_id, encrypted_name, parent_id, color, icon)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, f.ID, f.UserID, f.CategoryID, f.EncryptedName, f.ParentID, f.Color, f.Icon).
		Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Folder, error) {
	f, err := scanFolder(r.db.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE user_id = $1 AND id = $2`, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, q models.FolderQuery) ([]*models.Folder, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}

	if q.CategoryID != nil {
		args = append(args, *q.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	switch {
	case q.RootOnly:
		where = append(where, "parent_id IS NULL")
	case q.ParentID != nil:
		args = append(args, *q.ParentID)
		where = append(where, fmt.Sprintf("parent_id = $%d", len(args)))
	}

	query := `SELECT ` + folderColumns + ` FROM folders WHERE ` + strings.Join(where, " AND ") + ` ORDER BY encrypted_name`
	return r.queryFolders(ctx, query, args...)
}

func (r *PostgresRepository) queryFolders(ctx context.Context, query string, args ...any) ([]*models.Folder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Folder, 0)
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Update(ctx context.Context, f *models.Folder) (*models.Folder, error) {
	query := `
		UPDATE folders
		SET category_id = $3, encrypted_name = $4, parent_id = $5, color = $6, icon = $7, updated_at = NOW()
		WHERE user_id = $1 AND id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query, f.UserID, f.ID, f.CategoryID, f.EncryptedName, f.ParentID, f.Color, f.Icon).
		Scan(&f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if dbx.RowsAffected(res) == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Subtree(ctx context.Context, userID, rootID string) ([]*models.Folder, error) {
	// UNION (not UNION ALL) drops rows already produced, so a parent cycle
	// terminates instead of recursing forever.
	query := `
		WITH RECURSIVE tree AS (
			SELECT ` + folderColumns + ` FROM folders WHERE user_id = $1 AND id = $2
			UNION
			SELECT f.id, f.user_id, f.category_id, f.encrypted_name, f.parent_id, f.color, f.icon, f.created_at, f.updated_at
			FROM folders f JOIN tree t ON f.parent_id = t.id
			WHERE f.user_id = $1
		)
		SELECT ` + folderColumns + ` FROM tree ORDER BY encrypted_name
	`
	out, err := r.queryFolders(ctx, query, userID, rootID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.ErrorNotFound
	}
	return out, nil
}

func (r *PostgresRepository) HasContent(ctx context.Context, id string) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM folders WHERE parent_id = $1)
		    OR EXISTS (SELECT 1 FROM documents WHERE folder_id = $1 AND is_deleted = FALSE)
	`
	var has bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&has); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return has, nil
}

func (r *PostgresRepository) DirectDocumentCounts(ctx context.Context, userID string) (map[string]int64, error) {
	query := `
		SELECT folder_id, COUNT(*)
		FROM documents
		WHERE user_id = $1 AND is_deleted = FALSE AND folder_id IS NOT NULL
		GROUP BY folder_id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return counts, nil
}
