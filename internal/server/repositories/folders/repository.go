// Package folders persists the per-user folder tree.
package folders

import (
	"context"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, f *models.Folder) (*models.Folder, error)
	GetByID(ctx context.Context, userID, id string) (*models.Folder, error)
	// List returns the user's folders matching q, ordered by encrypted_name.
	List(ctx context.Context, userID string, q models.FolderQuery) ([]*models.Folder, error)
	Update(ctx context.Context, f *models.Folder) (*models.Folder, error)
	// Delete removes the folder; subfolders cascade and documents are
	// detached by the schema.
	Delete(ctx context.Context, userID, id string) error

	// Subtree returns rootID and all of its descendants. A malformed parent
	// chain is visited once per folder.
	Subtree(ctx context.Context, userID, rootID string) ([]*models.Folder, error)
	// HasContent reports whether the folder has subfolders or non-deleted documents.
	HasContent(ctx context.Context, id string) (bool, error)
	// DirectDocumentCounts maps folder id to the number of non-deleted
	// documents directly inside it.
	DirectDocumentCounts(ctx context.Context, userID string) (map[string]int64, error)
}
