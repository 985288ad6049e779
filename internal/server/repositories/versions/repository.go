// Package versions stores the upload history of documents.
package versions

import (
	"context"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

type Repository interface {
	// Create inserts v. A duplicate (document, version_number) pair is
	// reported as common.ErrorAlreadyExists.
	Create(ctx context.Context, v *models.DocumentVersion) (*models.DocumentVersion, error)
	// ListByDocument returns versions newest first.
	ListByDocument(ctx context.Context, documentID string) ([]*models.DocumentVersion, error)
	// MaxVersion returns the highest version number, or 0 when none exist.
	MaxVersion(ctx context.Context, documentID string) (int, error)
}
