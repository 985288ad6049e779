// Package categories reads and seeds the document category reference table.
package categories

import (
	"context"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

type Repository interface {
	// List returns all categories ordered by display_order, then name.
	List(ctx context.Context) ([]*models.Category, error)
	GetByID(ctx context.Context, id int64) (*models.Category, error)
	// DocumentCounts maps category id to the number of the user's
	// non-deleted documents in it. Categories without documents are absent.
	DocumentCounts(ctx context.Context, userID string) (map[int64]int64, error)
	// GetOrCreate inserts c unless a category with the same name exists.
	// c.ID is filled either way; created reports whether a row was inserted.
	GetOrCreate(ctx context.Context, c *models.Category) (created bool, err error)
}
