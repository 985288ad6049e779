// Package preferences stores one notification preference row per user.
package preferences

import (
	"context"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when the user has no row yet.
	Get(ctx context.Context, userID string) (*models.NotificationPreference, error)
	// Create inserts p unless a row exists and returns the stored row.
	Create(ctx context.Context, p *models.NotificationPreference) (*models.NotificationPreference, error)
	Update(ctx context.Context, p *models.NotificationPreference) (*models.NotificationPreference, error)
}
