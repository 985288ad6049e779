// Package documents persists document metadata. Blob bytes live in the
// blob store under Document.FileKey.
package documents

import (
	"context"
	"time"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, d *models.Document) (*models.Document, error)
	// GetByID returns a non-deleted document owned by userID.
	GetByID(ctx context.Context, userID, id string) (*models.Document, error)
	// List returns the user's non-deleted documents matching q.
	List(ctx context.Context, userID string, q models.DocumentQuery) ([]*models.Document, error)
	// ListByFolders returns non-deleted documents directly inside any of folderIDs.
	ListByFolders(ctx context.Context, userID string, folderIDs []string) ([]*models.Document, error)
	Update(ctx context.Context, d *models.Document) (*models.Document, error)
	SoftDelete(ctx context.Context, userID, id string, at time.Time) error

	// CountOwned counts the ids that name non-deleted documents of userID.
	CountOwned(ctx context.Context, userID string, ids []string) (int64, error)
	// Move sets folder_id (nil for no folder) on the user's non-deleted
	// documents among ids and returns how many rows changed.
	Move(ctx context.Context, userID string, ids []string, folderID *string) (int64, error)

	// ListWithExpiry returns every non-deleted document that tracks expiry.
	ListWithExpiry(ctx context.Context) ([]*models.Document, error)
}
