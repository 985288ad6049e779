package categories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/dbx"
	"github.com/dmitrijs2005/privylock/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, icon, display_order FROM document_categories ORDER BY display_order, name`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Category, 0)
	for rows.Next() {
		c := &models.Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.DisplayOrder); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	c := &models.Category{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, icon, display_order FROM document_categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Icon, &c.DisplayOrder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) DocumentCounts(ctx context.Context, userID string) (map[int64]int64, error) {
	query := `
		SELECT category_id, COUNT(*)
		FROM documents
		WHERE user_id = $1 AND is_deleted = FALSE AND category_id IS NOT NULL
		GROUP BY category_id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var id, n int64
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

func (r *PostgresRepository) GetOrCreate(ctx context.Context, c *models.Category) (bool, error) {
	query := `
		INSERT INTO document_categories (name, icon, display_order)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, c.Name, c.Icon, c.DisplayOrder).Scan(&c.ID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("db error: %w", err)
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT id FROM document_categories WHERE name = $1`, c.Name).Scan(&c.ID); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return false, nil
}
